package main

import (
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"qarag/internal/app"
	"qarag/internal/log"
	"qarag/internal/tui"
)

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive terminal chat over the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}
			a, err := app.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.RAG.Count(cmd.Context())
			if err != nil {
				return err
			}
			summary := fmt.Sprintf("Collection %s · %d chunks · %s", cfg.VectorStore.Collection, n, a.Generator.Name())

			// Log lines would tear the alternate screen.
			log.Configure(log.Config{Level: "error", Output: io.Discard})
			m := tui.New(cmd.Context(), a.RAG, summary)
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
}
