package main

import (
	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-tracker/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "List the papers a run would process",
	Long: `Search runs the same arXiv query as run, recent or classic, including the
citation filter when enabled, and prints the matching papers as a table
without downloading or analysing them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		classic, _ := cmd.Flags().GetBool("classic")
		found, err := findPapers(cmd.Context(), classic, retryPolicy(nil))
		if err != nil {
			return err
		}
		search.FormatTable(found, cmd.OutOrStdout())
		return nil
	},
}

func init() {
	addSearchFlags(searchCmd)

	rootCmd.AddCommand(searchCmd)
}
