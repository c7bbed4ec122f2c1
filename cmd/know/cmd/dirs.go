package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/knowtools/know/internal/config"
	"github.com/knowtools/know/internal/output"
	"github.com/knowtools/know/internal/watch"
)

// watchList returns the persistent watch list stored under the know home
// directory.
func watchList() *watch.List {
	return watch.NewList(filepath.Join(config.Home(), "dirs"))
}

func newDirsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dirs",
		Short: "List watched directories",
		Long:  `List the directories that 'know index' scans, in the order they were added.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())

			dirs, err := watchList().Dirs()
			if err != nil {
				return err
			}
			if len(dirs) == 0 {
				out.Printf("no watched directories. Add one with 'know add <dir>'\n")
				return nil
			}
			for _, dir := range dirs {
				out.Println(dir)
			}
			return nil
		},
	}
}
