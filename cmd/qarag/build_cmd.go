package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"qarag/internal/app"
	"qarag/internal/log"
)

func newBuildCmd() *cobra.Command {
	var progress bool
	cmd := &cobra.Command{
		Use:   "build-db",
		Short: "Build the vector collection from the Q&A files in the data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}
			logger := log.WithComponent("cli")
			logger.Info().
				Str("event", "build.started").
				Str("data_dir", cfg.Data.Dir).
				Str("collection", cfg.VectorStore.Collection).
				Str("store", cfg.VectorStore.Type).
				Msg("building collection")

			var bar io.Writer
			if progress {
				bar = cmd.ErrOrStderr()
			}
			b, store, err := app.NewBuilder(cfg, bar)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := b.BuildDir(cmd.Context(), cfg.Data.Dir)
			if err != nil {
				return fmt.Errorf("build-db: %w", err)
			}
			if stats.Skipped > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render(fmt.Sprintf("Skipped %d unreadable file(s), see the log for details.", stats.Skipped)))
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf(
				"Success! Built DB '%s' with %d chunks from %d unique questions.",
				cfg.VectorStore.Collection, stats.Chunks, stats.Questions)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&progress, "progress", false, "show an embedding progress bar")
	return cmd
}
