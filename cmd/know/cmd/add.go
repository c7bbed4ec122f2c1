package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/knowtools/know/internal/output"
)

func newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <dir>",
		Short: "Add a directory to the watch list",
		Long: `Add a directory to the watch list. Watched directories are indexed
by 'know index'. The path is stored in absolute form.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())

			abs, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			added, err := watchList().Add(abs)
			if err != nil {
				return err
			}
			if added {
				out.Successf("watching %s", abs)
			} else {
				out.Printf("already watching %s\n", abs)
			}
			return nil
		},
	}
}
