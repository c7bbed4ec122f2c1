package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowtools/know/internal/config"
	"github.com/knowtools/know/internal/index"
	"github.com/knowtools/know/internal/search"
)

func writeCorpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"golang.md":  "Go is a compiled language with goroutines and channels for concurrency.",
		"python.md":  "Python is an interpreted language popular for scripting and data science.",
		"notes.txt":  "The deployment checklist covers database migrations and cache warmup.",
		"binary.png": "\x89PNG not really text",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestIndexCmd_EndToEnd(t *testing.T) {
	t.Setenv("KNOW_HOME", t.TempDir())
	docs := writeCorpus(t)

	// Given: a watched directory with a few documents
	_, err := run(t, "add", docs)
	require.NoError(t, err)

	// When: indexing
	out, err := run(t, "index")

	// Then: the supported files should be indexed
	require.NoError(t, err)
	assert.Contains(t, out, "indexed 3 files")
	assert.Contains(t, out, "new 3")

	// When: indexing again without changes
	out, err = run(t, "index")

	// Then: everything should classify as unchanged
	require.NoError(t, err)
	assert.Contains(t, out, "unchanged 3")
	assert.Contains(t, out, "new 0")
}

func TestIndexCmd_DryRunWritesNothing(t *testing.T) {
	home := t.TempDir()
	t.Setenv("KNOW_HOME", home)
	docs := writeCorpus(t)

	// When: a dry run over an explicit directory
	out, err := run(t, "index", docs, "--dry-run")

	// Then: it should report what it would do
	require.NoError(t, err)
	assert.Contains(t, out, "would index")

	// Then: no vectors or sparse cache should exist
	_, err = os.Stat(filepath.Join(home, "index", "vectors.hnsw"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(home, "index", "bm25"))
	assert.True(t, os.IsNotExist(err))
}

func TestIndexCmd_ReportArtifact(t *testing.T) {
	t.Setenv("KNOW_HOME", t.TempDir())
	docs := writeCorpus(t)
	reportPath := filepath.Join(t.TempDir(), "report.json")

	// When: indexing with --report
	_, err := run(t, "index", docs, "--report", reportPath)
	require.NoError(t, err)

	// Then: the report should be valid JSON with run counts
	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)

	var report index.Report
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, 3, report.Files)
	assert.Equal(t, 3, report.New)
}

func TestIndexCmd_ExtensionFilter(t *testing.T) {
	t.Setenv("KNOW_HOME", t.TempDir())
	docs := writeCorpus(t)

	// When: indexing only markdown
	out, err := run(t, "index", docs, "--ext", "md")

	// Then: the txt file should be excluded
	require.NoError(t, err)
	assert.Contains(t, out, "indexed 2 files")
}

func TestIndexCmd_NothingToIndex(t *testing.T) {
	t.Setenv("KNOW_HOME", t.TempDir())

	// When: indexing with an empty watch list and no args
	_, err := run(t, "index")

	// Then: it should fail with a hint
	require.Error(t, err)
	assert.Contains(t, err.Error(), "know add")
}

func TestSearchCmd_EndToEnd(t *testing.T) {
	t.Setenv("KNOW_HOME", t.TempDir())
	docs := writeCorpus(t)

	_, err := run(t, "index", docs)
	require.NoError(t, err)

	// When: searching for a term unique to one document
	out, err := run(t, "search", "goroutines channels concurrency", "--plain")

	// Then: the matching file should rank
	require.NoError(t, err)
	assert.Contains(t, out, "golang.md")
}

func TestSearchCmd_JSONOutput(t *testing.T) {
	t.Setenv("KNOW_HOME", t.TempDir())
	docs := writeCorpus(t)

	_, err := run(t, "index", docs)
	require.NoError(t, err)

	// When: searching with --json
	out, err := run(t, "search", "deployment checklist", "--json")

	// Then: the output should be a JSON array of results
	require.NoError(t, err)
	var results []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.NotEmpty(t, results)
	assert.Contains(t, results[0]["path"], "notes.txt")
}

func TestSearchCmd_ModeSelection(t *testing.T) {
	cfg := config.Default()

	// Given: no mode flags

	// When: building search options

	// Then: semantic ranking should be the default
	opts, err := buildSearchOptions(cfg, searchOptions{limit: 5})
	require.NoError(t, err)
	assert.Equal(t, search.ModeDense, opts.Mode)

	// Then: --bm25 should select keyword-only ranking
	opts, err = buildSearchOptions(cfg, searchOptions{limit: 5, bm25Only: true})
	require.NoError(t, err)
	assert.Equal(t, search.ModeSparse, opts.Mode)

	// Then: --hybrid should select fusion
	opts, err = buildSearchOptions(cfg, searchOptions{limit: 5, hybrid: true})
	require.NoError(t, err)
	assert.Equal(t, search.ModeHybrid, opts.Mode)
}

func TestSearchCmd_HybridFlag(t *testing.T) {
	t.Setenv("KNOW_HOME", t.TempDir())
	docs := writeCorpus(t)

	_, err := run(t, "index", docs)
	require.NoError(t, err)

	// When: searching with fusion enabled
	out, err := run(t, "search", "goroutines channels concurrency", "--hybrid", "--plain")

	// Then: the matching file should still rank
	require.NoError(t, err)
	assert.Contains(t, out, "golang.md")
}

func TestSearchCmd_PlainAndJSONConflict(t *testing.T) {
	t.Setenv("KNOW_HOME", t.TempDir())

	// When: requesting both plain and JSON output
	_, err := run(t, "search", "anything", "--plain", "--json")

	// Then: the combination should be rejected
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestSearchCmd_NoIndex_Fails(t *testing.T) {
	t.Setenv("KNOW_HOME", t.TempDir())

	// When: searching before any index exists
	_, err := run(t, "search", "anything")

	// Then: it should fail with a hint
	require.Error(t, err)
	assert.Contains(t, err.Error(), "know index")
}

func TestResetCmd_ClearsIndex(t *testing.T) {
	home := t.TempDir()
	t.Setenv("KNOW_HOME", home)
	docs := writeCorpus(t)

	_, err := run(t, "index", docs)
	require.NoError(t, err)

	// When: resetting with --yes
	out, err := run(t, "reset", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "index cleared")

	// Then: a fresh search should find nothing
	out, err = run(t, "search", "goroutines", "--plain")
	require.NoError(t, err)
	assert.NotContains(t, out, "golang.md")
}
