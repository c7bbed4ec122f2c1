// Package store holds the persistent index state: chunk metadata and
// fingerprints in SQLite, the BM25 sparse index with its on-disk cache,
// and the HNSW dense vector store.
package store

import "fmt"

// Classification is the outcome of comparing a freshly produced chunk
// against the fingerprint store.
type Classification int

const (
	// ClassNew means the chunk identifier has never been indexed.
	ClassNew Classification = iota
	// ClassUnchanged means the chunk exists with the same fingerprint.
	ClassUnchanged
	// ClassChanged means the chunk exists but its content fingerprint
	// differs from the stored one.
	ClassChanged
	// ClassDuplicate means a different chunk identifier already maps to
	// the same content fingerprint.
	ClassDuplicate
)

func (c Classification) String() string {
	switch c {
	case ClassNew:
		return "new"
	case ClassUnchanged:
		return "unchanged"
	case ClassChanged:
		return "changed"
	case ClassDuplicate:
		return "duplicate"
	default:
		return fmt.Sprintf("classification(%d)", int(c))
	}
}

// SparseResult is one BM25 hit.
type SparseResult struct {
	ChunkID string
	Score   float64
}

// DenseResult is one vector similarity hit. Score is cosine similarity
// mapped to [0,1].
type DenseResult struct {
	ChunkID string
	Score   float64
}

// FileState records a file's last indexed modification time and size,
// used to short-circuit unchanged files before extraction.
type FileState struct {
	Path    string
	ModTime int64
	Size    int64
}
