package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/knowtools/know/internal/config"
	"github.com/knowtools/know/internal/embed"
	"github.com/knowtools/know/internal/index"
	"github.com/knowtools/know/internal/output"
	"github.com/knowtools/know/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit     int
	exts      []string
	globs     []string
	since     string
	bm25Only  bool
	hybrid    bool
	benchmark bool
	plain     bool
	jsonOut   bool
	jsonFile  string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed files",
		Long: `Search the indexed files. Results are ranked by semantic embedding
similarity by default; --bm25 switches to keyword ranking and --hybrid
fuses both with a weighted sum.

Examples:
  know search "error handling in the uploader"
  know search "retention policy" --glob 'docs/**' -n 10
  know search "timeout" --bm25
  know search "connection pooling" --hybrid
  know search "garbage collection" --benchmark`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 5, "Maximum number of results")
	cmd.Flags().StringSliceVarP(&opts.exts, "ext", "e", nil, "Only match these extensions (repeatable)")
	cmd.Flags().StringSliceVarP(&opts.globs, "glob", "g", nil, "Only match paths matching these patterns (repeatable)")
	cmd.Flags().StringVar(&opts.since, "since", "", "Only match files modified since (30m, 12h, 7d, 2w, 2026-01-15, or RFC 3339)")
	cmd.Flags().BoolVar(&opts.bm25Only, "bm25", false, "Keyword ranking only, skip the embedding path")
	cmd.Flags().BoolVar(&opts.hybrid, "hybrid", false, "Fuse keyword and semantic rankings")
	cmd.Flags().BoolVar(&opts.benchmark, "benchmark", false, "Show the dense and sparse rankings side by side, unfused")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Plain text output without styling")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Output results as JSON")
	cmd.Flags().StringVar(&opts.jsonFile, "json-out", "", "Write results as JSON to this path")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	if opts.bm25Only && opts.hybrid {
		return fmt.Errorf("--bm25 and --hybrid are mutually exclusive")
	}
	if opts.plain && opts.jsonOut {
		return fmt.Errorf("--plain and --json are mutually exclusive")
	}

	cfg, err := config.LoadDefault()
	if err != nil {
		return err
	}

	if _, err := os.Stat(filepath.Join(cfg.IndexRoot, "metadata.db")); os.IsNotExist(err) {
		return fmt.Errorf("no index found. Run 'know index' first")
	}

	searchOpts, err := buildSearchOptions(cfg, opts)
	if err != nil {
		return err
	}

	state, err := index.Open(cfg)
	if err != nil {
		return err
	}
	defer state.Close()

	embedder, err := embed.New(ctx, cfg.Embeddings)
	if err != nil {
		return err
	}
	defer embedder.Close()

	engine := search.NewEngine(state, embedder, slog.Default())
	out := output.New(cmd.OutOrStdout())
	if opts.plain {
		out = output.NewPlain(cmd.OutOrStdout())
	}

	if opts.benchmark {
		dense, sparse, err := engine.Benchmark(ctx, query, searchOpts)
		if err != nil {
			return err
		}
		out.WriteBenchmark(query, dense, sparse)
		return nil
	}

	results, err := engine.Search(ctx, query, searchOpts)
	if err != nil {
		return err
	}

	if opts.jsonFile != "" {
		return output.WriteResultsJSONFile(opts.jsonFile, results)
	}
	if opts.jsonOut {
		return output.WriteResultsJSON(cmd.OutOrStdout(), results)
	}
	out.WriteResults(query, results)
	return nil
}

// buildSearchOptions merges config defaults with CLI flag overrides.
func buildSearchOptions(cfg *config.Config, opts searchOptions) (search.Options, error) {
	since, err := index.ParseSince(opts.since, time.Now())
	if err != nil {
		return search.Options{}, err
	}

	limit := opts.limit
	if limit > cfg.Search.MaxResults {
		limit = cfg.Search.MaxResults
	}

	// Semantic ranking is the default; --hybrid opts into fusion and
	// --bm25 into keyword-only ranking.
	mode := search.ModeDense
	switch {
	case opts.bm25Only:
		mode = search.ModeSparse
	case opts.hybrid:
		mode = search.ModeHybrid
	}

	return search.Options{
		Limit: limit,
		Mode:  mode,
		Filter: index.Filter{
			Extensions: index.NormalizeExtensions(opts.exts),
			Globs:      opts.globs,
			Since:      since,
		},
		DenseWeight:  cfg.Search.DenseWeight,
		SparseWeight: cfg.Search.SparseWeight,
	}, nil
}
