package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"qarag/internal/app"
	"qarag/internal/domain"
)

func newAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question...>",
		Short: "Answer one question and print its sources",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}
			a, err := app.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			var sources []domain.SearchResult
			ans, err := a.RAG.Ask(cmd.Context(), strings.Join(args, " "), domain.HandlerFuncs{
				Sources: func(results []domain.SearchResult) error {
					sources = results
					return nil
				},
				Token: func(text string) error {
					_, err := fmt.Fprint(out, text)
					return err
				},
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			if len(sources) == 0 {
				return nil
			}
			heading := "Sources"
			if ans.Cached {
				heading += " (cached)"
			}
			fmt.Fprintln(out, "\n"+titleStyle.Render(heading))
			for i, s := range sources {
				fmt.Fprintf(out, "  [%d] %s %s\n", i+1, s.Chunk.Source, mutedStyle.Render(fmt.Sprintf("%.3f", s.Score)))
			}
			return nil
		},
	}
}
