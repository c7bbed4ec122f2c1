package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/knowtools/know/internal/config"
	"github.com/knowtools/know/internal/index"
	"github.com/knowtools/know/internal/output"
)

func newResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the entire index",
		Long: `Delete all indexed chunks, fingerprints, vectors, and caches.
The watch list is kept; 'know index' rebuilds from scratch.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())

			cfg, err := config.LoadDefault()
			if err != nil {
				return err
			}

			if !yes {
				out.Printf("delete the index at %s? [y/N] ", cfg.IndexRoot)
				reader := bufio.NewReader(cmd.InOrStdin())
				line, _ := reader.ReadString('\n')
				if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
					return fmt.Errorf("aborted")
				}
			}

			state, err := index.Open(cfg)
			if err != nil {
				return err
			}
			defer state.Close()

			if err := state.AcquireLock(); err != nil {
				return err
			}
			defer state.ReleaseLock()

			if err := state.Reset(cmd.Context()); err != nil {
				return err
			}
			out.Successf("index cleared")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}
