package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/knowtools/know/internal/output"
)

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <dir>",
		Short: "Remove a directory from the watch list",
		Long: `Remove a directory from the watch list. Chunks already indexed from
it remain searchable until 'know index --prune' or 'know reset'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())

			abs, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			removed, err := watchList().Remove(abs)
			if err != nil {
				return err
			}
			if removed {
				out.Successf("no longer watching %s", abs)
			} else {
				out.Printf("not watching %s\n", abs)
			}
			return nil
		},
	}
}
