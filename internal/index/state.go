package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/knowtools/know/internal/config"
	kerrors "github.com/knowtools/know/internal/errors"
	"github.com/knowtools/know/internal/store"
)

// Artifact names under the index root.
const (
	metadataFile = "metadata.db"
	vectorFile   = "vectors.hnsw"
	sparseFile   = "bm25"
	lockFile     = ".lock"
)

// State bundles the three index artifacts: the authoritative metadata
// store, the dense vector store, and the derived sparse index with its
// on-disk cache.
type State struct {
	Root   string
	Meta   *store.Metadata
	Sparse *store.SparseIndex
	Dense  *store.VectorStore

	k1, b float64
	lock  *flock.Flock
}

// Open opens or creates the index under cfg.IndexRoot. The dense store is
// loaded from disk when present; a corrupt dense file starts fresh with a
// warning, since vectors are rebuilt on the next pipeline run.
func Open(cfg *config.Config) (*State, error) {
	root := cfg.IndexRoot
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, kerrors.StoreUnavailable("cannot create index root", err)
	}

	meta, err := store.OpenMetadata(filepath.Join(root, metadataFile))
	if err != nil {
		return nil, err
	}

	analyzer, err := store.NewAnalyzer()
	if err != nil {
		_ = meta.Close()
		return nil, err
	}

	dense := store.NewVectorStore(store.VectorConfig{Dimensions: cfg.Embeddings.Dimensions})
	vectorPath := filepath.Join(root, vectorFile)
	if _, statErr := os.Stat(vectorPath); statErr == nil {
		if err := dense.Load(vectorPath); err != nil {
			slog.Warn("dense index unreadable, starting fresh",
				slog.String("path", vectorPath),
				slog.String("error", err.Error()))
			dense = store.NewVectorStore(store.VectorConfig{Dimensions: cfg.Embeddings.Dimensions})
		}
	}

	return &State{
		Root:   root,
		Meta:   meta,
		Sparse: store.NewSparseIndex(analyzer, cfg.Sparse.K1, cfg.Sparse.B),
		Dense:  dense,
		k1:     cfg.Sparse.K1,
		b:      cfg.Sparse.B,
		lock:   flock.New(filepath.Join(root, lockFile)),
	}, nil
}

// AcquireLock takes the single-writer lock for a pipeline run. A held lock
// means another run is in progress.
func (s *State) AcquireLock() error {
	locked, err := s.lock.TryLock()
	if err != nil {
		return kerrors.StoreUnavailable("cannot acquire index lock", err)
	}
	if !locked {
		return kerrors.New(kerrors.ErrCodeIndexLocked,
			"another indexing run is in progress", nil).
			WithSuggestion("wait for the other run to finish and retry")
	}
	return nil
}

// ReleaseLock releases the pipeline lock.
func (s *State) ReleaseLock() {
	_ = s.lock.Unlock()
}

// stamp derives the sparse cache validity stamp from the authoritative
// chunk set.
func (s *State) stamp(ctx context.Context) (store.Stamp, error) {
	count, maxMod, err := s.Meta.Stats(ctx)
	if err != nil {
		return store.Stamp{}, err
	}
	return store.Stamp{ChunkCount: count, MaxModTime: maxMod, K1: s.k1, B: s.b}, nil
}

// EnsureSparse makes the sparse index consistent with the stored chunk set
// before any sparse or hybrid query. It tries the disk cache first; a
// missing, unreadable, or stale cache triggers a silent full rebuild.
func (s *State) EnsureSparse(ctx context.Context) error {
	expect, err := s.stamp(ctx)
	if err != nil {
		return err
	}

	path := filepath.Join(s.Root, sparseFile)
	if err := s.Sparse.Load(path, expect); err == nil {
		return nil
	} else if !kerrors.IsFatal(err) {
		slog.Debug("sparse cache invalid, rebuilding", slog.String("error", err.Error()))
	}

	return s.RebuildSparse(ctx)
}

// RebuildSparse rebuilds the sparse index from all stored chunks and writes
// a fresh cache.
func (s *State) RebuildSparse(ctx context.Context) error {
	chunks, err := s.Meta.AllChunks(ctx)
	if err != nil {
		return err
	}

	docs := make([]store.SparseDoc, len(chunks))
	for i, c := range chunks {
		docs[i] = store.SparseDoc{ID: c.ID, Text: c.Text}
	}
	s.Sparse.Build(docs)
	return s.SaveSparse(ctx)
}

// SaveSparse stamps and persists the sparse cache.
func (s *State) SaveSparse(ctx context.Context) error {
	stamp, err := s.stamp(ctx)
	if err != nil {
		return err
	}
	s.Sparse.SetStamp(stamp)
	return s.Sparse.Save(filepath.Join(s.Root, sparseFile))
}

// SaveDense persists the dense store.
func (s *State) SaveDense() error {
	return s.Dense.Save(filepath.Join(s.Root, vectorFile))
}

// Reset clears all chunks, fingerprints, file state, vectors, and the
// sparse cache.
func (s *State) Reset(ctx context.Context) error {
	if err := s.Meta.Reset(ctx); err != nil {
		return err
	}
	s.Dense.Reset()
	s.Sparse.Build(nil)

	for _, name := range []string{sparseFile, vectorFile, vectorFile + ".meta"} {
		if err := os.Remove(filepath.Join(s.Root, name)); err != nil && !os.IsNotExist(err) {
			return kerrors.StoreUnavailable("cannot remove index artifact "+name, err)
		}
	}
	return nil
}

// Close closes all stores.
func (s *State) Close() error {
	err := s.Meta.Close()
	if denseErr := s.Dense.Close(); err == nil {
		err = denseErr
	}
	return err
}
