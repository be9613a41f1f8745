// Package main provides the cronograma-export CLI: offline rendering,
// month ranges and database administration.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cronograma/internal/cli"
	"cronograma/internal/config"
	"cronograma/internal/log"
)

func main() {
	cli.LoadEnvFile()
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cronograma-export",
		Short: "Render schedules and manage the cronograma database",
		Long: `Offline companion to the cronograma server. Reads the same environment
(DATA_BACKEND, SQLITE_DB_PATH, POSTGRES_DSN, ...) as the server.

Examples:
  cronograma-export render --client acme --project tower --format xlsx
  cronograma-export months --ref 202603 --count 6 --lang en-US
  cronograma-export migrate
  cronograma-export seed --dir ./seed
`,
		SilenceUsage: true,
	}

	cmd.AddCommand(renderCmd())
	cmd.AddCommand(monthsCmd())
	cmd.AddCommand(migrateCmd())
	cmd.AddCommand(seedCmd())

	return cmd
}

// loadConfig is the error-returning variant of cli.LoadAndValidateConfig;
// cobra reports the failure.
func loadConfig() (*config.Config, *log.Logger, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("configuration: %w", err)
	}
	return cfg, cli.SetupLogger(cfg, "export-cli"), nil
}
