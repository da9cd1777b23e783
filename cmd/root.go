// Package cmd defines the CLI commands for the sneakerdb executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sneakerdb",
		Short: "Builds a queryable sneaker catalog database from a paginated REST API.",
		Long: `sneakerdb ingests the full sneaker catalog of a third-party REST API,
normalizes and validates every record against the provider's brand and gender
vocabularies, and publishes a single SQLite file with a full-text search
index over the result.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional; env vars and defaults otherwise)")

	cmd.AddCommand(newBuildCmd())
	cmd.AddCommand(newSearchCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	// Credentials commonly live in a local .env during development.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
