package cmd

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aura-dev/aura/internal/core"
)

var (
	searchWorkspace string
	searchK         int
	searchLanguage  string
	searchFQN       string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search indexed chunks across a workspace",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := initApp()
		if err != nil {
			return err
		}
		defer app.Close()

		ws, err := app.resolveWorkspace(cmd.Context(), searchWorkspace)
		if err != nil {
			return err
		}

		var filter *core.ChunkFilter
		if searchLanguage != "" || searchFQN != "" {
			filter = &core.ChunkFilter{Language: searchLanguage, FQNPrefix: searchFQN}
		}

		query := strings.Join(args, " ")
		hits, err := app.IndexStore.SearchChunks(cmd.Context(), query, []string{ws.ID}, searchK, filter)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(hits)
		}
		if len(hits) == 0 {
			printf("No results.\n")
			return nil
		}
		for _, hit := range hits {
			loc := hit.Chunk.SourcePath
			if hit.Chunk.StartLine > 0 {
				loc = loc + ":" + strconv.Itoa(hit.Chunk.StartLine) + "-" + strconv.Itoa(hit.Chunk.EndLine)
			}
			if hit.Chunk.SymbolName != "" {
				loc += " (" + hit.Chunk.SymbolName + ")"
			}
			printf("%.3f  %s\n", hit.LexicalScore+hit.CosineScore, loc)
			printf("       %s\n", truncateString(hit.Chunk.Text, 160))
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVarP(&searchWorkspace, "workspace", "w", "", "workspace ID, alias or path")
	searchCmd.Flags().IntVarP(&searchK, "limit", "k", 5, "maximum number of results")
	searchCmd.Flags().StringVar(&searchLanguage, "lang", "", "restrict to a language")
	searchCmd.Flags().StringVar(&searchFQN, "fqn", "", "restrict to a fully qualified name prefix")
	rootCmd.AddCommand(searchCmd)
}
