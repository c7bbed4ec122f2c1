package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowtools/know/internal/config"
	"github.com/knowtools/know/internal/embed"
)

func newTestState(t *testing.T) *State {
	t.Helper()
	cfg := config.Default()
	cfg.IndexRoot = filepath.Join(t.TempDir(), "index")

	state, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = state.Close() })
	return state
}

func newTestRunner(t *testing.T, state *State) *Runner {
	t.Helper()
	return NewRunner(state, embed.NewStaticEmbedder(), nil)
}

func defaultOptions() Options {
	return Options{ChunkSize: 512, Overlap: 50, Recursive: true}
}

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRun_IndexesNewFiles(t *testing.T) {
	state := newTestState(t)
	runner := newTestRunner(t, state)
	dir := t.TempDir()
	writeDoc(t, dir, "a.txt", "the quick brown fox jumps over the lazy dog")
	writeDoc(t, dir, "b.md", "search engines rank documents by relevance")

	report, err := runner.Run(context.Background(), []string{dir}, defaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Files)
	assert.Equal(t, 2, report.New)
	assert.Zero(t, report.Changed)
	assert.Zero(t, report.Errors)

	assert.Equal(t, 2, state.Dense.Count())
	assert.Equal(t, 2, state.Sparse.Len())
	count, _, err := state.Meta.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRun_SecondRunIsIdempotent(t *testing.T) {
	state := newTestState(t)
	runner := newTestRunner(t, state)
	dir := t.TempDir()
	writeDoc(t, dir, "a.txt", "stable content that does not change")

	ctx := context.Background()
	first, err := runner.Run(ctx, []string{dir}, defaultOptions())
	require.NoError(t, err)
	require.Equal(t, 1, first.New)

	second, err := runner.Run(ctx, []string{dir}, defaultOptions())
	require.NoError(t, err)
	assert.Zero(t, second.New)
	assert.Zero(t, second.Changed)
	assert.Equal(t, 1, second.Unchanged)
	assert.Equal(t, 1, second.Skipped)

	assert.Equal(t, 1, state.Dense.Count())
	assert.Equal(t, 1, state.Sparse.Len())
}

func TestRun_DetectsChangedContent(t *testing.T) {
	state := newTestState(t)
	runner := newTestRunner(t, state)
	dir := t.TempDir()
	path := writeDoc(t, dir, "a.txt", "original content of the document")
	ctx := context.Background()

	_, err := runner.Run(ctx, []string{dir}, defaultOptions())
	require.NoError(t, err)

	// Rewrite with different content and a different mtime
	require.NoError(t, os.WriteFile(path, []byte("rewritten content of the document"), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	report, err := runner.Run(ctx, []string{dir}, defaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Changed)
	assert.Zero(t, report.New)
}

func TestRun_WhitespaceOnlyEditIsUnchanged(t *testing.T) {
	state := newTestState(t)
	runner := newTestRunner(t, state)
	dir := t.TempDir()
	path := writeDoc(t, dir, "a.txt", "hello world")
	ctx := context.Background()

	_, err := runner.Run(ctx, []string{dir}, defaultOptions())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("hello  world"), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	report, err := runner.Run(ctx, []string{dir}, defaultOptions())
	require.NoError(t, err)
	assert.Zero(t, report.New)
	// Chunk offsets shifted by one rune, so the ID changed while the
	// normalized fingerprint did not: the content registers as duplicate,
	// never as a fresh embed
	assert.Zero(t, report.Changed)
}

func TestRun_DuplicateAcrossFiles(t *testing.T) {
	state := newTestState(t)
	runner := newTestRunner(t, state)
	dir := t.TempDir()
	writeDoc(t, dir, "a.txt", "identical content shared between files")
	ctx := context.Background()

	_, err := runner.Run(ctx, []string{dir}, defaultOptions())
	require.NoError(t, err)

	writeDoc(t, dir, "b.txt", "identical content shared between files")
	report, err := runner.Run(ctx, []string{dir}, defaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Duplicate)
	assert.Zero(t, report.New)
	require.Len(t, report.Entries, 1)
	assert.Equal(t, "duplicate content", report.Entries[0].Reason)
	assert.NotEmpty(t, report.Entries[0].CollidesWith)

	// The duplicate is indexed for sparse search but not re-embedded
	assert.Equal(t, 2, state.Sparse.Len())
	assert.Equal(t, 1, state.Dense.Count())
}

func TestRun_DuplicateWithinSingleRun(t *testing.T) {
	state := newTestState(t)
	runner := newTestRunner(t, state)
	dir := t.TempDir()
	writeDoc(t, dir, "a.txt", "identical content shared between files")
	writeDoc(t, dir, "b.txt", "identical content shared between files")

	// Both files arrive in the same run, before any fingerprint is stored
	report, err := runner.Run(context.Background(), []string{dir}, defaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 1, report.New)
	assert.Equal(t, 1, report.Duplicate)
	require.Len(t, report.Entries, 1)
	assert.Equal(t, "duplicate content", report.Entries[0].Reason)
	assert.NotEmpty(t, report.Entries[0].CollidesWith)

	// The duplicate is indexed for sparse search but not re-embedded
	assert.Equal(t, 2, state.Sparse.Len())
	assert.Equal(t, 1, state.Dense.Count())
	count, _, err := state.Meta.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRun_DryRunMutatesNothing(t *testing.T) {
	state := newTestState(t)
	runner := newTestRunner(t, state)
	dir := t.TempDir()
	writeDoc(t, dir, "a.txt", "content that would be indexed")

	opts := defaultOptions()
	opts.DryRun = true
	report, err := runner.Run(context.Background(), []string{dir}, opts)
	require.NoError(t, err)

	assert.Equal(t, 1, report.New)
	assert.True(t, report.DryRun)
	assert.Zero(t, state.Dense.Count())
	assert.Zero(t, state.Sparse.Len())
	count, _, err := state.Meta.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRun_ForceReindexesEverything(t *testing.T) {
	state := newTestState(t)
	runner := newTestRunner(t, state)
	dir := t.TempDir()
	writeDoc(t, dir, "a.txt", "first document text")
	writeDoc(t, dir, "b.txt", "second document text")
	ctx := context.Background()

	_, err := runner.Run(ctx, []string{dir}, defaultOptions())
	require.NoError(t, err)

	opts := defaultOptions()
	opts.Force = true
	report, err := runner.Run(ctx, []string{dir}, opts)
	require.NoError(t, err)

	assert.Equal(t, 2, report.New)
	assert.Zero(t, report.Unchanged)
}

func TestRun_ExtensionFilter(t *testing.T) {
	state := newTestState(t)
	runner := newTestRunner(t, state)
	dir := t.TempDir()
	writeDoc(t, dir, "a.md", "markdown document")
	writeDoc(t, dir, "b.py", "python source file")

	opts := defaultOptions()
	opts.Filter.Extensions = NormalizeExtensions([]string{"md"})
	report, err := runner.Run(context.Background(), []string{dir}, opts)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Files)
	assert.Equal(t, 1, report.New)
}

func TestRun_NonRecursiveSkipsSubdirs(t *testing.T) {
	state := newTestState(t)
	runner := newTestRunner(t, state)
	dir := t.TempDir()
	writeDoc(t, dir, "top.txt", "top level file")
	writeDoc(t, dir, "sub/nested.txt", "nested file")

	opts := defaultOptions()
	opts.Recursive = false
	report, err := runner.Run(context.Background(), []string{dir}, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Files)
}

func TestRun_ExtractionFailureDoesNotAbort(t *testing.T) {
	state := newTestState(t)
	runner := newTestRunner(t, state)
	dir := t.TempDir()
	writeDoc(t, dir, "good.txt", "readable content")
	// Invalid UTF-8 fails extraction
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.txt"), []byte{0xff, 0xfe}, 0o644))

	report, err := runner.Run(context.Background(), []string{dir}, defaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 1, report.New)
	assert.Equal(t, 1, report.Errors)
	require.NotEmpty(t, report.Entries)
}

func TestRun_PruneRemovesDeletedFiles(t *testing.T) {
	state := newTestState(t)
	runner := newTestRunner(t, state)
	dir := t.TempDir()
	keep := writeDoc(t, dir, "keep.txt", "this file stays")
	gone := writeDoc(t, dir, "gone.txt", "this file disappears")
	ctx := context.Background()

	_, err := runner.Run(ctx, []string{dir}, defaultOptions())
	require.NoError(t, err)
	require.NoError(t, os.Remove(gone))

	opts := defaultOptions()
	opts.Prune = true
	report, err := runner.Run(ctx, []string{dir}, opts)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Pruned)
	assert.Equal(t, 1, state.Sparse.Len())
	assert.Equal(t, 1, state.Dense.Count())

	paths, err := state.Meta.AllPaths(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{keep}, paths)
}

func TestRun_ShrunkFileDropsStaleChunks(t *testing.T) {
	state := newTestState(t)
	runner := newTestRunner(t, state)
	dir := t.TempDir()
	// Long enough for several chunks
	long := ""
	for i := 0; i < 30; i++ {
		long += "sentence number with plenty of filler words to pad things out. "
	}
	path := writeDoc(t, dir, "a.txt", long)
	ctx := context.Background()

	opts := defaultOptions()
	opts.ChunkSize = 256
	opts.Overlap = 32
	first, err := runner.Run(ctx, []string{dir}, opts)
	require.NoError(t, err)
	require.Greater(t, first.New, 1)

	require.NoError(t, os.WriteFile(path, []byte("now a tiny file."), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	_, err = runner.Run(ctx, []string{dir}, opts)
	require.NoError(t, err)

	ctxCount, _, err := state.Meta.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, ctxCount)
	assert.Equal(t, 1, state.Sparse.Len())
}

func TestRun_WritesReportFile(t *testing.T) {
	state := newTestState(t)
	runner := newTestRunner(t, state)
	dir := t.TempDir()
	writeDoc(t, dir, "a.txt", "reportable content")

	opts := defaultOptions()
	opts.ReportPath = filepath.Join(t.TempDir(), "report.json")
	_, err := runner.Run(context.Background(), []string{dir}, opts)
	require.NoError(t, err)

	data, err := os.ReadFile(opts.ReportPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"new": 1`)
}

func TestRun_InvalidChunkConfig(t *testing.T) {
	state := newTestState(t)
	runner := newTestRunner(t, state)

	opts := defaultOptions()
	opts.Overlap = 600
	_, err := runner.Run(context.Background(), []string{t.TempDir()}, opts)
	require.Error(t, err)
}

func TestRun_SparseMatchesRebuildAfterIncrementalRuns(t *testing.T) {
	state := newTestState(t)
	runner := newTestRunner(t, state)
	dir := t.TempDir()
	writeDoc(t, dir, "a.txt", "the quick brown fox jumps over the lazy dog")
	ctx := context.Background()

	_, err := runner.Run(ctx, []string{dir}, defaultOptions())
	require.NoError(t, err)
	writeDoc(t, dir, "b.txt", "a fast brown fox outpaces a sleepy hound")
	_, err = runner.Run(ctx, []string{dir}, defaultOptions())
	require.NoError(t, err)

	incremental := state.Sparse.Score("brown fox")

	// A forced rebuild over the same chunk set must score identically
	require.NoError(t, state.RebuildSparse(ctx))
	rebuilt := state.Sparse.Score("brown fox")

	require.Len(t, incremental, len(rebuilt))
	for i := range rebuilt {
		assert.Equal(t, rebuilt[i].ChunkID, incremental[i].ChunkID)
		assert.InDelta(t, rebuilt[i].Score, incremental[i].Score, 1e-9)
	}
}
