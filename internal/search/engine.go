package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/knowtools/know/internal/chunk"
	"github.com/knowtools/know/internal/embed"
	kerrors "github.com/knowtools/know/internal/errors"
	"github.com/knowtools/know/internal/index"
	"github.com/knowtools/know/internal/store"
)

// Mode selects the retrieval path.
type Mode int

const (
	// ModeHybrid fuses dense and sparse rankings.
	ModeHybrid Mode = iota
	// ModeDense ranks by vector similarity only.
	ModeDense
	// ModeSparse ranks by BM25 only.
	ModeSparse
)

func (m Mode) String() string {
	switch m {
	case ModeDense:
		return "dense"
	case ModeSparse:
		return "sparse"
	default:
		return "hybrid"
	}
}

// Options controls one query.
type Options struct {
	Limit  int
	Mode   Mode
	Filter index.Filter

	DenseWeight  float64
	SparseWeight float64
}

// Result is one ranked hit with enough of the chunk to render a preview.
type Result struct {
	Chunk chunk.Chunk
	Score float64
	Rank  int

	// Per-path normalized scores, populated in hybrid mode.
	DenseScore  float64
	SparseScore float64
}

// Engine executes queries against an open index. Queries are read-only and
// safe to run concurrently with each other.
type Engine struct {
	state    *index.State
	embedder embed.Embedder
	logger   *slog.Logger

	sparseOnce sync.Once
	sparseErr  error
}

// NewEngine creates a query engine over the index state.
func NewEngine(state *index.State, embedder embed.Embedder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{state: state, embedder: embedder, logger: logger}
}

// Search runs a query and returns up to opts.Limit ranked results.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, kerrors.New(kerrors.ErrCodeInvalidQuery, "query is empty", nil)
	}
	if opts.Limit <= 0 {
		opts.Limit = 5
	}
	if opts.DenseWeight == 0 && opts.SparseWeight == 0 {
		opts.DenseWeight, opts.SparseWeight = 0.5, 0.5
	}

	// Both paths retrieve a larger pool so fusion has re-ranking headroom
	pool := opts.Limit * 4
	if pool < 20 {
		pool = 20
	}

	switch opts.Mode {
	case ModeDense:
		hits, err := e.denseCandidates(ctx, query, pool, opts.Filter)
		if err != nil {
			return nil, err
		}
		return e.hydrateDense(ctx, hits, opts.Limit)

	case ModeSparse:
		hits, err := e.sparseCandidates(ctx, query, pool, opts.Filter)
		if err != nil {
			return nil, err
		}
		return e.hydrateSparse(ctx, hits, opts.Limit)

	default:
		return e.hybrid(ctx, query, pool, opts)
	}
}

// Benchmark runs the dense and sparse paths independently and returns both
// ranked lists unfused, for side-by-side comparison.
func (e *Engine) Benchmark(ctx context.Context, query string, opts Options) (dense, sparse []Result, err error) {
	denseOpts := opts
	denseOpts.Mode = ModeDense
	dense, err = e.Search(ctx, query, denseOpts)
	if err != nil {
		return nil, nil, err
	}

	sparseOpts := opts
	sparseOpts.Mode = ModeSparse
	sparse, err = e.Search(ctx, query, sparseOpts)
	if err != nil {
		return nil, nil, err
	}
	return dense, sparse, nil
}

func (e *Engine) hybrid(ctx context.Context, query string, pool int, opts Options) ([]Result, error) {
	var denseHits []store.DenseResult
	var sparseHits []store.SparseResult

	// The two retrieval paths are independent
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := e.denseCandidates(gctx, query, pool, opts.Filter)
		denseHits = hits
		return err
	})
	g.Go(func() error {
		hits, err := e.sparseCandidates(gctx, query, pool, opts.Filter)
		sparseHits = hits
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := fuse(denseHits, sparseHits, opts.DenseWeight, opts.SparseWeight, opts.Limit)

	ids := make([]string, len(fused))
	for i, f := range fused {
		ids[i] = f.ID
	}
	chunks, err := e.state.Meta.Chunks(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(fused))
	for _, f := range fused {
		c, ok := chunks[f.ID]
		if !ok {
			continue
		}
		results = append(results, Result{
			Chunk:       c,
			Score:       f.Score,
			Rank:        len(results) + 1,
			DenseScore:  f.DenseScore,
			SparseScore: f.SparseScore,
		})
	}
	return results, nil
}

// denseCandidates embeds the query and retrieves the filtered dense pool.
func (e *Engine) denseCandidates(ctx context.Context, query string, pool int, filter index.Filter) ([]store.DenseResult, error) {
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := e.state.Dense.Query(vec, pool)
	if err != nil {
		return nil, err
	}
	return filterDense(ctx, e.state, hits, filter)
}

// sparseCandidates makes the sparse index consistent with the chunk set,
// scores the query, and returns the filtered pool.
func (e *Engine) sparseCandidates(ctx context.Context, query string, pool int, filter index.Filter) ([]store.SparseResult, error) {
	e.sparseOnce.Do(func() {
		e.sparseErr = e.state.EnsureSparse(ctx)
	})
	if e.sparseErr != nil {
		return nil, e.sparseErr
	}

	hits := e.state.Sparse.Score(query)
	if len(hits) > pool {
		hits = hits[:pool]
	}
	return filterSparse(ctx, e.state, hits, filter)
}

// Filters apply identically to both retrieval paths before fusion, so mode
// never changes filter semantics.
func filterDense(ctx context.Context, state *index.State, hits []store.DenseResult, filter index.Filter) ([]store.DenseResult, error) {
	if filterIsEmpty(filter) {
		return hits, nil
	}
	allowed, err := allowedIDs(ctx, state, denseIDs(hits), filter)
	if err != nil {
		return nil, err
	}
	kept := hits[:0]
	for _, h := range hits {
		if _, ok := allowed[h.ChunkID]; ok {
			kept = append(kept, h)
		}
	}
	return kept, nil
}

func filterSparse(ctx context.Context, state *index.State, hits []store.SparseResult, filter index.Filter) ([]store.SparseResult, error) {
	if filterIsEmpty(filter) {
		return hits, nil
	}
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}
	allowed, err := allowedIDs(ctx, state, ids, filter)
	if err != nil {
		return nil, err
	}
	kept := hits[:0]
	for _, h := range hits {
		if _, ok := allowed[h.ChunkID]; ok {
			kept = append(kept, h)
		}
	}
	return kept, nil
}

func allowedIDs(ctx context.Context, state *index.State, ids []string, filter index.Filter) (map[string]struct{}, error) {
	chunks, err := state.Meta.Chunks(ctx, ids)
	if err != nil {
		return nil, err
	}
	allowed := make(map[string]struct{}, len(chunks))
	for id, c := range chunks {
		if filter.MatchFile(c.Path, c.ModTime) {
			allowed[id] = struct{}{}
		}
	}
	return allowed, nil
}

func filterIsEmpty(f index.Filter) bool {
	return len(f.Extensions) == 0 && len(f.Globs) == 0 && f.Since.IsZero()
}

func denseIDs(hits []store.DenseResult) []string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}
	return ids
}

func (e *Engine) hydrateDense(ctx context.Context, hits []store.DenseResult, limit int) ([]Result, error) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}

	ids := denseIDs(hits)
	chunks, err := e.state.Meta.Chunks(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		c, ok := chunks[h.ChunkID]
		if !ok {
			continue
		}
		results = append(results, Result{Chunk: c, Score: h.Score, Rank: len(results) + 1})
	}
	return results, nil
}

func (e *Engine) hydrateSparse(ctx context.Context, hits []store.SparseResult, limit int) ([]Result, error) {
	if len(hits) > limit {
		hits = hits[:limit]
	}
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}
	chunks, err := e.state.Meta.Chunks(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		c, ok := chunks[h.ChunkID]
		if !ok {
			continue
		}
		results = append(results, Result{Chunk: c, Score: h.Score, Rank: len(results) + 1})
	}
	return results, nil
}
