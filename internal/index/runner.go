package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/knowtools/know/internal/chunk"
	"github.com/knowtools/know/internal/embed"
	kerrors "github.com/knowtools/know/internal/errors"
	"github.com/knowtools/know/internal/extract"
	"github.com/knowtools/know/internal/store"
)

// Options controls one pipeline run.
type Options struct {
	Filter    Filter
	ChunkSize int
	Overlap   int
	Recursive bool

	// Force clears all stored chunks, fingerprints, vectors, and the
	// sparse cache before re-indexing.
	Force bool
	// DryRun computes classifications without mutating any store.
	DryRun bool
	// Prune removes chunks whose source files no longer exist.
	Prune bool

	ReportPath string

	// Workers bounds concurrent embedding batches.
	Workers   int
	BatchSize int
}

// Runner orchestrates extraction, chunking, classification, and the dense
// and sparse index updates. One Runner serves one pipeline run at a time;
// the index lock enforces a single writer across processes.
type Runner struct {
	state    *State
	embedder embed.Embedder
	logger   *slog.Logger
}

// NewRunner creates a pipeline runner over the open index state.
func NewRunner(state *State, embedder embed.Embedder, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{state: state, embedder: embedder, logger: logger}
}

// pending is a chunk awaiting embedding and upsert.
type pending struct {
	chunk chunk.Chunk
	index int // chunk position within its document, for report entries
}

// Run indexes the given directories. It always returns a report, even when
// individual documents fail; only infrastructure failures (lock, metadata
// store) abort the run.
func (r *Runner) Run(ctx context.Context, dirs []string, opts Options) (*Report, error) {
	splitter, err := chunk.NewSplitter(opts.ChunkSize, opts.Overlap)
	if err != nil {
		return nil, err
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = embed.DefaultBatchSize
	}

	report := &Report{StartedAt: time.Now(), DryRun: opts.DryRun}
	defer func() { report.Duration = time.Since(report.StartedAt) }()

	if !opts.DryRun {
		if err := r.state.AcquireLock(); err != nil {
			return nil, err
		}
		defer r.state.ReleaseLock()
	}

	if opts.Force && !opts.DryRun {
		if err := r.state.Reset(ctx); err != nil {
			return nil, err
		}
	}

	if !opts.DryRun {
		// Incremental sparse updates need the prior postings in memory.
		if err := r.state.EnsureSparse(ctx); err != nil {
			return nil, err
		}
	}

	files, err := r.collectFiles(dirs, opts)
	if err != nil {
		return nil, err
	}

	var toEmbed []pending
	var sparseAdds []store.SparseDoc
	var removedIDs []string
	seen := make(map[string]struct{}, len(files))

	// Fingerprints of chunks queued this run reach the store only after
	// embedding, so within-run duplicates need a run-local map.
	runFPs := make(map[string]string)

	for _, path := range files {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}
		seen[path] = struct{}{}

		adds, removals, err := r.processFile(ctx, path, splitter, opts, report, &toEmbed, runFPs)
		if err != nil {
			// Per-document failures are recorded, not fatal
			report.Errors++
			report.addEntry(path, 0, err.Error(), "")
			r.logger.Warn("document skipped",
				slog.String("path", path),
				slog.String("error", err.Error()))
			continue
		}
		sparseAdds = append(sparseAdds, adds...)
		removedIDs = append(removedIDs, removals...)
	}

	if opts.Prune && !opts.DryRun {
		pruned, err := r.prune(ctx, seen)
		if err != nil {
			return report, err
		}
		report.Pruned = len(pruned)
		removedIDs = append(removedIDs, pruned...)
	}

	if !opts.DryRun {
		failed := r.embedAndUpsert(ctx, toEmbed, opts, report)
		// Chunks that failed to embed stay out of every store
		sparseAdds = filterDocs(sparseAdds, failed)

		// One batched sparse update per run, regardless of how many
		// documents contributed
		r.state.Sparse.Update(sparseAdds, removedIDs)
		if err := r.state.SaveSparse(ctx); err != nil {
			return report, err
		}
		if err := r.state.SaveDense(); err != nil {
			return report, err
		}
	}

	if opts.ReportPath != "" {
		if err := report.Write(opts.ReportPath); err != nil {
			r.logger.Warn("cannot write report",
				slog.String("path", opts.ReportPath),
				slog.String("error", err.Error()))
		}
	}

	r.logger.Info("indexing finished",
		slog.Int("files", report.Files),
		slog.Int("new", report.New),
		slog.Int("changed", report.Changed),
		slog.Int("unchanged", report.Unchanged),
		slog.Int("duplicate", report.Duplicate),
		slog.Int("errors", report.Errors),
		slog.Bool("dry_run", opts.DryRun))
	return report, nil
}

// collectFiles walks the directories and returns eligible file paths.
func (r *Runner) collectFiles(dirs []string, opts Options) ([]string, error) {
	var files []string
	for _, dir := range dirs {
		root := filepath.Clean(dir)
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				r.logger.Warn("walk error", slog.String("path", path), slog.String("error", err.Error()))
				return nil
			}
			if d.IsDir() {
				if strings.HasPrefix(d.Name(), ".") && path != root {
					return fs.SkipDir
				}
				if !opts.Recursive && path != root {
					return fs.SkipDir
				}
				return nil
			}

			ext := strings.ToLower(filepath.Ext(path))
			if !extract.Supported(ext) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			if !opts.Filter.MatchFile(path, info.ModTime()) {
				return nil
			}
			files = append(files, path)
			return nil
		})
		if err != nil {
			return nil, kerrors.New(kerrors.ErrCodeFileNotFound, "cannot walk "+dir, err)
		}
	}
	return files, nil
}

// processFile chunks and classifies one document. It returns the sparse
// additions and stale chunk removals the batched update will apply.
func (r *Runner) processFile(ctx context.Context, path string, splitter *chunk.Splitter,
	opts Options, report *Report, toEmbed *[]pending, runFPs map[string]string) ([]store.SparseDoc, []string, error) {

	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, kerrors.ExtractionError(path, err)
	}
	report.Files++

	// Unchanged files skip extraction entirely
	if !opts.Force {
		fstate, ok, err := r.state.Meta.FileState(ctx, path)
		if err != nil {
			return nil, nil, err
		}
		if ok && fstate.ModTime == info.ModTime().Unix() && fstate.Size == info.Size() {
			ids, err := r.state.Meta.ChunkIDsByPath(ctx, path)
			if err != nil {
				return nil, nil, err
			}
			report.Unchanged += len(ids)
			report.Skipped++
			return nil, nil, nil
		}
	}

	ext := strings.ToLower(filepath.Ext(path))
	text, err := extract.Extract(path, ext)
	if err != nil {
		return nil, nil, err
	}

	chunks := splitter.Split(path, text, info.ModTime(), ext)

	previous, err := r.state.Meta.ChunkIDsByPath(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	current := make(map[string]struct{}, len(chunks))

	var adds []store.SparseDoc
	var storeNow []chunk.Chunk

	for i, c := range chunks {
		current[c.ID] = struct{}{}

		cls, existingID, err := r.state.Meta.Classify(ctx, c)
		if err != nil {
			return nil, nil, err
		}
		if cls == store.ClassNew {
			if prior, ok := runFPs[c.Fingerprint]; ok {
				cls, existingID = store.ClassDuplicate, prior
			}
		}

		switch cls {
		case store.ClassNew:
			report.New++
			runFPs[c.Fingerprint] = c.ID
			if !opts.DryRun {
				*toEmbed = append(*toEmbed, pending{chunk: c, index: i})
				adds = append(adds, store.SparseDoc{ID: c.ID, Text: c.Text})
			}
		case store.ClassChanged:
			report.Changed++
			runFPs[c.Fingerprint] = c.ID
			if !opts.DryRun {
				*toEmbed = append(*toEmbed, pending{chunk: c, index: i})
				adds = append(adds, store.SparseDoc{ID: c.ID, Text: c.Text})
			}
		case store.ClassUnchanged:
			report.Unchanged++
		case store.ClassDuplicate:
			// Duplicates are stored and sparse-indexed but never
			// re-embedded: the original chunk already represents this
			// content in the dense index.
			report.Duplicate++
			report.addEntry(path, i, "duplicate content", existingID)
			if !opts.DryRun {
				storeNow = append(storeNow, c)
				adds = append(adds, store.SparseDoc{ID: c.ID, Text: c.Text})
			}
		}
	}

	// Chunks from a previous shape of this file that no longer exist
	var removals []string
	for _, id := range previous {
		if _, ok := current[id]; !ok {
			removals = append(removals, id)
		}
	}

	if opts.DryRun {
		return nil, nil, nil
	}

	if len(storeNow) > 0 {
		if err := r.state.Meta.UpsertChunks(ctx, storeNow); err != nil {
			return nil, nil, err
		}
	}
	if len(removals) > 0 {
		if err := r.state.Meta.DeleteChunks(ctx, removals); err != nil {
			return nil, nil, err
		}
		r.state.Dense.Delete(removals)
	}

	if err := r.state.Meta.RecordFile(ctx, store.FileState{
		Path:    path,
		ModTime: info.ModTime().Unix(),
		Size:    info.Size(),
	}); err != nil {
		return nil, nil, err
	}

	return adds, removals, nil
}

// embedAndUpsert embeds pending chunks in parallel batches and applies the
// metadata and dense upserts. Embedding failures mark their chunks failed
// and recorded; other batches proceed.
func (r *Runner) embedAndUpsert(ctx context.Context, items []pending, opts Options, report *Report) map[string]struct{} {
	failed := make(map[string]struct{})
	if len(items) == 0 {
		return failed
	}

	type batch struct {
		items   []pending
		vectors [][]float32
		err     error
	}

	var batches []*batch
	for start := 0; start < len(items); start += opts.BatchSize {
		end := start + opts.BatchSize
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, &batch{items: items[start:end]})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for _, b := range batches {
		g.Go(func() error {
			texts := make([]string, len(b.items))
			for i, it := range b.items {
				texts[i] = it.chunk.Text
			}
			b.vectors, b.err = r.embedder.EmbedBatch(gctx, texts)
			return nil
		})
	}
	_ = g.Wait()

	// Results apply sequentially so store writes stay single-threaded
	for _, b := range batches {
		if b.err != nil {
			for _, it := range b.items {
				failed[it.chunk.ID] = struct{}{}
				report.Errors++
				report.addEntry(it.chunk.Path, it.index, "embedding failed: "+b.err.Error(), "")
			}
			continue
		}

		ids := make([]string, len(b.items))
		vectors := make([][]float32, len(b.items))
		chunks := make([]chunk.Chunk, len(b.items))
		for i, it := range b.items {
			ids[i] = it.chunk.ID
			vectors[i] = b.vectors[i]
			chunks[i] = it.chunk
		}

		if err := r.state.Meta.UpsertChunks(ctx, chunks); err != nil {
			r.markFailed(b.items, err, failed, report)
			continue
		}
		if err := r.state.Dense.Upsert(ids, vectors); err != nil {
			r.markFailed(b.items, err, failed, report)
			continue
		}
	}
	return failed
}

func (r *Runner) markFailed(items []pending, err error, failed map[string]struct{}, report *Report) {
	for _, it := range items {
		failed[it.chunk.ID] = struct{}{}
		report.Errors++
		report.addEntry(it.chunk.Path, it.index, err.Error(), "")
	}
}

// prune removes chunks whose source files are gone, returning their IDs so
// the batched sparse update drops them too.
func (r *Runner) prune(ctx context.Context, seen map[string]struct{}) ([]string, error) {
	paths, err := r.state.Meta.AllPaths(ctx)
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, path := range paths {
		if _, ok := seen[path]; ok {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			// File exists outside this run's directories; leave it
			continue
		}

		ids, err := r.state.Meta.ChunkIDsByPath(ctx, path)
		if err != nil {
			return nil, err
		}
		if err := r.state.Meta.DeleteChunks(ctx, ids); err != nil {
			return nil, err
		}
		if err := r.state.Meta.DeleteFile(ctx, path); err != nil {
			return nil, err
		}
		r.state.Dense.Delete(ids)
		removed = append(removed, ids...)

		r.logger.Info("pruned missing file",
			slog.String("path", path), slog.Int("chunks", len(ids)))
	}
	return removed, nil
}

func filterDocs(docs []store.SparseDoc, failed map[string]struct{}) []store.SparseDoc {
	if len(failed) == 0 {
		return docs
	}
	kept := docs[:0]
	for _, d := range docs {
		if _, ok := failed[d.ID]; !ok {
			kept = append(kept, d)
		}
	}
	return kept
}
