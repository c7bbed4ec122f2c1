package chunk

import (
	"fmt"
	"time"

	kerrors "github.com/knowtools/know/internal/errors"
)

// snapWindow is how far past the nominal window end the splitter looks for
// a sentence boundary before giving up and cutting mid-sentence.
const snapWindow = 100

// Splitter produces overlapping chunk windows from document text. Size and
// Overlap are rune counts.
type Splitter struct {
	Size    int
	Overlap int
}

// NewSplitter validates the window parameters.
func NewSplitter(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, kerrors.New(kerrors.ErrCodeInvalidChunk,
			fmt.Sprintf("chunk size must be positive, got %d", size), nil)
	}
	if overlap < 0 || overlap >= size {
		return nil, kerrors.New(kerrors.ErrCodeInvalidChunk,
			fmt.Sprintf("overlap must satisfy 0 <= overlap < size, got overlap=%d size=%d",
				overlap, size), nil)
	}
	return &Splitter{Size: size, Overlap: overlap}, nil
}

// Sequence is a lazy, restartable iterator over the chunks of one document.
type Sequence struct {
	s       *Splitter
	path    string
	ext     string
	modTime time.Time
	runes   []rune
	start   int
}

// Chunks returns a lazy sequence over the chunks of text. The sequence is
// finite and can be restarted with Reset.
func (s *Splitter) Chunks(path, text string, modTime time.Time, ext string) *Sequence {
	return &Sequence{
		s:       s,
		path:    path,
		ext:     ext,
		modTime: modTime,
		runes:   []rune(text),
	}
}

// Next returns the next chunk, or false when the sequence is exhausted.
func (q *Sequence) Next() (Chunk, bool) {
	if q.start >= len(q.runes) {
		return Chunk{}, false
	}
	start := q.start
	end := start + q.s.Size
	if end >= len(q.runes) {
		end = len(q.runes)
	} else {
		end = snapToSentence(q.runes, end)
	}

	text := string(q.runes[start:end])
	c := Chunk{
		ID:          ChunkID(q.path, start, end),
		Path:        q.path,
		Start:       start,
		End:         end,
		Text:        text,
		Fingerprint: Fingerprint(text),
		ModTime:     q.modTime,
		Ext:         q.ext,
	}

	// The next window starts a fixed stride from the current window's
	// start, independent of sentence snapping, so coverage has no gaps.
	q.start = start + q.s.Size - q.s.Overlap
	if end == len(q.runes) {
		q.start = len(q.runes)
	}
	return c, true
}

// Reset restarts the sequence from the beginning of the document.
func (q *Sequence) Reset() {
	q.start = 0
}

// Split collects all chunks of text into a slice.
func (s *Splitter) Split(path, text string, modTime time.Time, ext string) []Chunk {
	seq := s.Chunks(path, text, modTime, ext)
	var chunks []Chunk
	for {
		c, ok := seq.Next()
		if !ok {
			return chunks
		}
		chunks = append(chunks, c)
	}
}

// snapToSentence extends a window end forward to just past the nearest
// sentence terminator, scanning at most snapWindow runes. Without a
// terminator in range the nominal end stands.
func snapToSentence(runes []rune, end int) int {
	limit := end + snapWindow
	if limit > len(runes) {
		limit = len(runes)
	}
	for i := end; i < limit; i++ {
		switch runes[i] {
		case '.', '!', '?', '\n':
			return i + 1
		}
	}
	return end
}
