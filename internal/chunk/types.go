// Package chunk splits extracted document text into overlapping windows and
// derives the stable identifiers and content fingerprints used for change
// and duplicate detection.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Chunk is the atomic indexed unit. Offsets are rune positions in the
// extracted source text.
type Chunk struct {
	// ID is derived from the source path and offset range. Re-chunking the
	// same range of an unchanged document yields the same ID.
	ID string

	// Path is the owning document's filesystem path.
	Path string

	// Start and End are the rune offsets of this chunk in the source text,
	// half-open [Start, End).
	Start int
	End   int

	// Text is the chunk content.
	Text string

	// Fingerprint is the hash of the normalized chunk text.
	Fingerprint string

	// ModTime is the source document's modification time.
	ModTime time.Time

	// Ext is the source file's extension, lowercased with leading dot.
	Ext string
}

// ChunkID derives the stable identifier for a chunk of path at [start, end).
func ChunkID(path string, start, end int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%d\x00%d", path, start, end)
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// Fingerprint hashes the whitespace-normalized text. Runs of whitespace
// collapse to a single space so formatting-only edits do not change the
// fingerprint.
func Fingerprint(text string) string {
	normalized := strings.Join(strings.Fields(text), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
