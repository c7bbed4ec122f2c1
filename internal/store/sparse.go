package store

import (
	"encoding/gob"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	kerrors "github.com/knowtools/know/internal/errors"
)

// SparseDoc is one chunk's contribution to the sparse index.
type SparseDoc struct {
	ID   string
	Text string
}

// Stamp is the cache validity check for a persisted sparse index. It must
// match the authoritative chunk set and scoring parameters before a cached
// index can be trusted.
type Stamp struct {
	ChunkCount int
	MaxModTime int64
	K1         float64
	B          float64
}

// SparseIndex is an in-memory BM25 inverted index over chunk texts. It is a
// derived artifact: fully reconstructible from the metadata store, cached on
// disk to skip rebuilds between runs.
//
// Update is equivalent to a full rebuild over the resulting chunk set; the
// incremental path adjusts the same statistics Build computes from scratch.
type SparseIndex struct {
	mu       sync.RWMutex
	analyzer *Analyzer
	k1       float64
	b        float64

	postings map[string]map[string]int // term -> chunk ID -> term frequency
	docTerms map[string][]string       // chunk ID -> unique terms, for removal
	docLen   map[string]int            // chunk ID -> token count
	totalLen int

	stamp Stamp
}

// NewSparseIndex returns an empty index with the given BM25 parameters.
func NewSparseIndex(analyzer *Analyzer, k1, b float64) *SparseIndex {
	return &SparseIndex{
		analyzer: analyzer,
		k1:       k1,
		b:        b,
		postings: make(map[string]map[string]int),
		docTerms: make(map[string][]string),
		docLen:   make(map[string]int),
	}
}

// Build replaces the index contents with a full rebuild over docs.
func (s *SparseIndex) Build(docs []SparseDoc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.postings = make(map[string]map[string]int)
	s.docTerms = make(map[string][]string)
	s.docLen = make(map[string]int)
	s.totalLen = 0

	for _, doc := range docs {
		s.addLocked(doc)
	}
}

// Update applies an incremental batch: removals first, then additions, so a
// chunk appearing in both lists ends up with its new content.
func (s *SparseIndex) Update(added []SparseDoc, removedIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range removedIDs {
		s.removeLocked(id)
	}
	for _, doc := range added {
		// Re-adding an existing ID replaces its statistics.
		s.removeLocked(doc.ID)
		s.addLocked(doc)
	}
}

func (s *SparseIndex) addLocked(doc SparseDoc) {
	terms := s.analyzer.Tokens(doc.Text)

	tf := make(map[string]int, len(terms))
	for _, term := range terms {
		tf[term]++
	}

	unique := make([]string, 0, len(tf))
	for term, count := range tf {
		posting, ok := s.postings[term]
		if !ok {
			posting = make(map[string]int)
			s.postings[term] = posting
		}
		posting[doc.ID] = count
		unique = append(unique, term)
	}

	s.docTerms[doc.ID] = unique
	s.docLen[doc.ID] = len(terms)
	s.totalLen += len(terms)
}

func (s *SparseIndex) removeLocked(id string) {
	terms, ok := s.docTerms[id]
	if !ok {
		return
	}
	for _, term := range terms {
		posting := s.postings[term]
		delete(posting, id)
		if len(posting) == 0 {
			delete(s.postings, term)
		}
	}
	s.totalLen -= s.docLen[id]
	delete(s.docLen, id)
	delete(s.docTerms, id)
}

// Score runs a BM25 query and returns hits sorted by score descending, ties
// broken by chunk ID ascending. Chunks containing no query term are omitted.
func (s *SparseIndex) Score(query string) []SparseResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.docLen)
	if n == 0 {
		return nil
	}

	terms := s.analyzer.Tokens(query)
	if len(terms) == 0 {
		return nil
	}
	avgLen := float64(s.totalLen) / float64(n)

	scores := make(map[string]float64)
	for _, term := range terms {
		posting, ok := s.postings[term]
		if !ok {
			continue
		}
		df := len(posting)
		idf := math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
		for id, tf := range posting {
			dl := float64(s.docLen[id])
			num := float64(tf) * (s.k1 + 1)
			den := float64(tf) + s.k1*(1-s.b+s.b*dl/avgLen)
			scores[id] += idf * num / den
		}
	}

	results := make([]SparseResult, 0, len(scores))
	for id, score := range scores {
		results = append(results, SparseResult{ChunkID: id, Score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	return results
}

// Len returns the number of indexed chunks.
func (s *SparseIndex) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docLen)
}

// SetStamp records the validity stamp to persist alongside the index.
func (s *SparseIndex) SetStamp(stamp Stamp) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp = stamp
}

// persistedSparse is the gob wire form of the index.
type persistedSparse struct {
	Postings map[string]map[string]int
	DocTerms map[string][]string
	DocLen   map[string]int
	TotalLen int
	Stamp    Stamp
}

// Save writes the index atomically to path.
func (s *SparseIndex) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return kerrors.StoreUnavailable("cannot create cache directory", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return kerrors.StoreUnavailable("cannot create sparse cache", err)
	}

	enc := gob.NewEncoder(f)
	err = enc.Encode(persistedSparse{
		Postings: s.postings,
		DocTerms: s.docTerms,
		DocLen:   s.docLen,
		TotalLen: s.totalLen,
		Stamp:    s.stamp,
	})
	if err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return kerrors.StoreUnavailable("cannot encode sparse cache", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return kerrors.StoreUnavailable("cannot write sparse cache", err)
	}
	return os.Rename(tmp, path)
}

// Load restores the index from path and validates its stamp against the
// authoritative chunk set. A missing file, decode failure, or stamp mismatch
// yields an index-corrupt error; callers respond with a full rebuild.
func (s *SparseIndex) Load(path string, expect Stamp) error {
	f, err := os.Open(path)
	if err != nil {
		return kerrors.IndexCorrupt("sparse cache missing", err)
	}
	defer f.Close()

	var p persistedSparse
	if err := gob.NewDecoder(f).Decode(&p); err != nil {
		return kerrors.IndexCorrupt("sparse cache unreadable", err)
	}
	if p.Stamp != expect {
		return kerrors.IndexCorrupt("sparse cache stale", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.postings = p.Postings
	s.docTerms = p.DocTerms
	s.docLen = p.DocLen
	s.totalLen = p.TotalLen
	s.stamp = p.Stamp
	if s.postings == nil {
		s.postings = make(map[string]map[string]int)
	}
	if s.docTerms == nil {
		s.docTerms = make(map[string][]string)
	}
	if s.docLen == nil {
		s.docLen = make(map[string]int)
	}
	return nil
}
