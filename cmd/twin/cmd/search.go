package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	searchCategory string
	searchTopK     int
	searchJSON     bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the profile without generating an answer",
	Long: `Retrieve the profile chunks closest to a query.

Examples:
  twin search "cloud platforms"
  twin search --category technical --top-k 5 "languages"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchCategory, "category", "", "Only return chunks of this category")
	searchCmd.Flags().IntVar(&searchTopK, "top-k", 0, "Number of results (defaults to RAG_TOP_K)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Print results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.twin.Search(cmd.Context(), strings.Join(args, " "), searchCategory, searchTopK)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if searchJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	if len(results) == 0 {
		fmt.Fprintln(out, dimStyle.Render("No matching profile chunks."))
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(out, "%s %s %s\n", titleStyle.Render(fmt.Sprintf("%d.", i+1)), titleStyle.Render(r.Title),
			dimStyle.Render(fmt.Sprintf("(%s, score %.3f)", r.ID, r.Score)))
		fmt.Fprintln(out, "   "+answerStyle.Render(r.Content))
	}
	return nil
}
