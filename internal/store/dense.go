package store

import (
	"bufio"
	"encoding/gob"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	kerrors "github.com/knowtools/know/internal/errors"
)

// VectorConfig configures the dense store.
type VectorConfig struct {
	Dimensions int
	M          int
	EfSearch   int
}

// VectorStore is the dense index adapter over an HNSW graph. Similarity is
// cosine; vectors are normalized on insert and query so graph distance maps
// to a [0,1] score.
type VectorStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorConfig

	// Chunk IDs map to internal uint64 keys. Deletion is lazy: the mapping
	// is dropped and the graph node orphaned, which sidesteps graph
	// breakage when removing the last node.
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	closed bool
}

// vectorMetadata is the gob sidecar persisted next to the graph file.
type vectorMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  VectorConfig
}

// NewVectorStore creates an empty dense store.
func NewVectorStore(cfg VectorConfig) *VectorStore {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &VectorStore{
		graph:  graph,
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
}

// Upsert inserts or replaces vectors keyed by chunk ID.
func (s *VectorStore) Upsert(ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return kerrors.New(kerrors.ErrCodeInternal, "ids and vectors length mismatch", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kerrors.StoreUnavailable("vector store is closed", nil)
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return kerrors.New(kerrors.ErrCodeInternal, "vector dimension mismatch", nil)
		}
	}

	for i, id := range ids {
		if existing, ok := s.idMap[id]; ok {
			delete(s.keyMap, existing)
			delete(s.idMap, id)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeInPlace(vec)

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[id] = key
		s.keyMap[key] = id
	}
	return nil
}

// Query returns up to k nearest chunks by cosine similarity, best first.
// Orphaned nodes are skipped, so slightly more than k neighbors are fetched.
func (s *VectorStore) Query(query []float32, k int) ([]DenseResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, kerrors.StoreUnavailable("vector store is closed", nil)
	}
	if len(query) != s.config.Dimensions {
		return nil, kerrors.New(kerrors.ErrCodeInternal, "query dimension mismatch", nil)
	}
	if s.graph.Len() == 0 {
		return nil, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalizeInPlace(q)

	orphans := s.graph.Len() - len(s.idMap)
	nodes := s.graph.Search(q, k+orphans)

	results := make([]DenseResult, 0, k)
	for _, node := range nodes {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue
		}
		distance := s.graph.Distance(q, node.Value)
		results = append(results, DenseResult{
			ChunkID: id,
			// Cosine distance spans [0,2]; map to a [0,1] similarity.
			Score: float64(1 - distance/2),
		})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// Delete removes chunks by ID.
func (s *VectorStore) Delete(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	for _, id := range ids {
		if key, ok := s.idMap[id]; ok {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
	}
}

// Contains reports whether a chunk ID has a live vector.
func (s *VectorStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.idMap[id]
	return ok
}

// Count returns the number of live vectors.
func (s *VectorStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idMap)
}

// Reset discards all vectors.
func (s *VectorStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = s.config.M
	graph.EfSearch = s.config.EfSearch
	graph.Ml = 0.25

	s.graph = graph
	s.idMap = make(map[string]uint64)
	s.keyMap = make(map[uint64]string)
	s.nextKey = 0
}

// Save persists the graph and ID mappings atomically (temp file + rename).
// The mappings go to a gob sidecar at path + ".meta".
func (s *VectorStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return kerrors.StoreUnavailable("vector store is closed", nil)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return kerrors.StoreUnavailable("cannot create index directory", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return kerrors.StoreUnavailable("cannot create vector file", err)
	}
	if err := s.graph.Export(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return kerrors.StoreUnavailable("cannot export vector graph", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return kerrors.StoreUnavailable("cannot write vector file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return kerrors.StoreUnavailable("cannot finalize vector file", err)
	}

	return s.saveMetadata(path + ".meta")
}

func (s *VectorStore) saveMetadata(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return kerrors.StoreUnavailable("cannot create vector metadata", err)
	}

	meta := vectorMetadata{
		IDMap:   s.idMap,
		NextKey: s.nextKey,
		Config:  s.config,
	}
	if err := gob.NewEncoder(f).Encode(meta); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return kerrors.StoreUnavailable("cannot encode vector metadata", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return kerrors.StoreUnavailable("cannot write vector metadata", err)
	}
	return os.Rename(tmp, path)
}

// Load restores the graph and mappings from disk.
func (s *VectorStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kerrors.StoreUnavailable("vector store is closed", nil)
	}

	if err := s.loadMetadata(path + ".meta"); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return kerrors.IndexCorrupt("cannot open vector file", err)
	}
	defer f.Close()

	// Import requires an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(f)); err != nil {
		return kerrors.IndexCorrupt("cannot import vector graph", err)
	}
	return nil
}

func (s *VectorStore) loadMetadata(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return kerrors.IndexCorrupt("cannot open vector metadata", err)
	}
	defer f.Close()

	var meta vectorMetadata
	if err := gob.NewDecoder(f).Decode(&meta); err != nil {
		return kerrors.IndexCorrupt("cannot decode vector metadata", err)
	}

	s.idMap = meta.IDMap
	s.nextKey = meta.NextKey
	s.config = meta.Config
	s.keyMap = make(map[uint64]string, len(meta.IDMap))
	for id, key := range meta.IDMap {
		s.keyMap[key] = id
	}
	return nil
}

// Close releases the store.
func (s *VectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
