package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/knowtools/know/internal/config"
	"github.com/knowtools/know/internal/embed"
	"github.com/knowtools/know/internal/index"
	"github.com/knowtools/know/internal/output"
)

// indexOptions holds CLI flags for index.
type indexOptions struct {
	exts      []string
	globs     []string
	since     string
	chunkSize int
	overlap   int
	recursive bool
	force     bool
	dryRun    bool
	prune     bool
	report    string
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index [dir...]",
		Short: "Index watched directories",
		Long: `Index the watched directories (or the given directories) for search.

Files are chunked, fingerprinted, and embedded. Unchanged chunks are
skipped, duplicates are detected across files, and stale chunks from
changed files are removed, so re-running is cheap.

Examples:
  know index
  know index ~/notes --ext md,txt
  know index --glob 'docs/**/*.md' --since 7d
  know index --dry-run --report report.json`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Ctrl+C cancels the run; partial progress is kept.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runIndex(ctx, cmd, args, opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.exts, "ext", "e", nil, "Only index these extensions (repeatable, e.g. -e md,txt)")
	cmd.Flags().StringSliceVarP(&opts.globs, "glob", "g", nil, "Only index paths matching these patterns (repeatable, ** crosses directories)")
	cmd.Flags().StringVar(&opts.since, "since", "", "Only index files modified since (30m, 12h, 7d, 2w, 2026-01-15, or RFC 3339)")
	cmd.Flags().IntVarP(&opts.chunkSize, "chunk-size", "c", 0, "Chunk size in characters (default from config)")
	cmd.Flags().IntVarP(&opts.overlap, "overlap", "o", -1, "Chunk overlap in characters (default from config)")
	cmd.Flags().BoolVarP(&opts.recursive, "recursive", "r", true, "Descend into subdirectories")
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "Clear the index and rebuild from scratch")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Classify chunks without writing anything")
	cmd.Flags().BoolVar(&opts.prune, "prune", false, "Remove chunks whose source files no longer exist")
	cmd.Flags().StringVar(&opts.report, "report", "", "Write a JSON run report to this path")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, args []string, opts indexOptions) error {
	out := output.New(cmd.OutOrStdout())

	cfg, err := config.LoadDefault()
	if err != nil {
		return err
	}

	dirs := args
	if len(dirs) == 0 {
		dirs, err = watchList().Dirs()
		if err != nil {
			return err
		}
		if len(dirs) == 0 {
			return fmt.Errorf("nothing to index. Add a directory with 'know add <dir>' or pass one explicitly")
		}
	}

	runOpts, err := buildRunOptions(cfg, opts)
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

	runner := index.NewRunner(state, embedder, slog.Default())
	report, err := runner.Run(ctx, dirs, runOpts)
	if err != nil {
		return err
	}

	writeIndexSummary(out, report)
	if opts.report != "" {
		out.Printf("report written to %s\n", opts.report)
	}
	return nil
}

// buildRunOptions merges config defaults with CLI flag overrides.
func buildRunOptions(cfg *config.Config, opts indexOptions) (index.Options, error) {
	since, err := index.ParseSince(opts.since, time.Now())
	if err != nil {
		return index.Options{}, err
	}

	chunkSize := cfg.Chunking.Size
	if opts.chunkSize > 0 {
		chunkSize = opts.chunkSize
	}
	overlap := cfg.Chunking.Overlap
	if opts.overlap >= 0 {
		overlap = opts.overlap
	}

	return index.Options{
		Filter: index.Filter{
			Extensions: index.NormalizeExtensions(opts.exts),
			Globs:      opts.globs,
			Since:      since,
		},
		ChunkSize:  chunkSize,
		Overlap:    overlap,
		Recursive:  opts.recursive,
		Force:      opts.force,
		DryRun:     opts.dryRun,
		Prune:      opts.prune,
		ReportPath: opts.report,
		Workers:    cfg.Embeddings.Workers,
		BatchSize:  cfg.Embeddings.BatchSize,
	}, nil
}

func writeIndexSummary(out *output.Writer, report *index.Report) {
	verb := "indexed"
	if report.DryRun {
		verb = "would index"
	}
	out.Successf("%s %d files in %s", verb, report.Files, report.Duration.Round(time.Millisecond))
	out.Printf("  new %d, changed %d, unchanged %d, duplicate %d\n",
		report.New, report.Changed, report.Unchanged, report.Duplicate)
	if report.Pruned > 0 {
		out.Printf("  pruned %d stale chunks\n", report.Pruned)
	}
	if report.Errors > 0 {
		out.Warningf("%d documents failed, see the log for details", report.Errors)
	}
}
