// Package cmd provides the CLI commands for know.
package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/knowtools/know/internal/logging"
	"github.com/knowtools/know/pkg/version"
)

// Verbose logging flag
var (
	verboseLog     bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the know CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "know",
		Short: "Local hybrid search over your own files",
		Long: `know indexes directories on your machine and answers queries with
hybrid search: BM25 keyword ranking fused with semantic embeddings.

Everything runs locally. Add directories with 'know add', build the
index with 'know index', then query with 'know search' or simply
'know <your question>'.`,
		Version:      version.Version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	// Set version template
	cmd.SetVersionTemplate("know version {{.Version}}\n")

	cmd.PersistentFlags().BoolVarP(&verboseLog, "log", "l", false, "Verbose logging to stderr and ~/.know/logs/")

	// Setup logging hooks
	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	// Add subcommands
	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newRemoveCmd())
	cmd.AddCommand(newDirsCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newResetCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging initializes file logging, at debug level when --log is set.
func startLogging(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	if verboseLog {
		cfg = logging.VerboseConfig()
	}
	if logger, cleanup, err := logging.Setup(cfg); err == nil {
		loggingCleanup = cleanup
		slog.SetDefault(logger)
	}
	return nil
}

// stopLogging closes the log file opened by startLogging.
func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command. A first argument that is neither a flag
// nor a known subcommand is treated as a search query, so 'know http
// timeouts' behaves like 'know search http timeouts'.
func Execute() error {
	root := NewRootCmd()
	root.SetArgs(prefixSearch(root, os.Args[1:]))
	return root.Execute()
}

// prefixSearch inserts the search subcommand in front of bare queries.
func prefixSearch(root *cobra.Command, args []string) []string {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return args
	}
	if args[0] == "help" || args[0] == "completion" {
		return args
	}
	for _, sub := range root.Commands() {
		if sub.Name() == args[0] || sub.HasAlias(args[0]) {
			return args
		}
	}
	return append([]string{"search"}, args...)
}
