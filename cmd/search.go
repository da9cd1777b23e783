package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/apicon/sneakerdb/internal/store"
)

// newSearchCmd creates the 'search' subcommand: a full-text query against a
// previously published store.
func newSearchCmd() *cobra.Command {
	var (
		dbPath string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over a published sneaker database",
		Long: `Runs an FTS5 match over brand, name, silhouette, colorway and sku.
Quote a term to match it exactly, e.g. sneakerdb search '"DD1391-100"'.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := store.Search(cmd.Context(), dbPath, strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Println("no matches")
				return nil
			}
			for _, r := range results {
				fmt.Printf("%-16s %-12s %s (%s)\n", r.SKU, r.Brand, r.Name, r.Colorway)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "sneakers.db", "path to the published database")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of matches")
	return cmd
}
