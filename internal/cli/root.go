// Package cli implements the reconcile command-line tool.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/subidb/DMS-Dashboard/internal/app"
	"github.com/subidb/DMS-Dashboard/internal/config"
	"github.com/subidb/DMS-Dashboard/internal/logging"
)

type globalFlags struct {
	dbPath     string
	configPath string
	verbose    bool
}

// NewRootCmd builds the command tree. Each call returns an independent
// tree so tests can run commands in isolation.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Document reconciliation engine",
		Long: `reconcile links purchase orders, invoices and service agreements,
tracks PO consumption and raises alerts for anomalies.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&g.dbPath, "db", "", "SQLite database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(newRefreshCmd(g))
	rootCmd.AddCommand(newIngestCmd(g))
	rootCmd.AddCommand(newExportCmd(g))
	rootCmd.AddCommand(newConsumptionCmd(g))

	return rootCmd
}

// Execute runs the root command
func Execute(version string) error {
	rootCmd := NewRootCmd()
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// open loads configuration and wires the application for one command.
func (g *globalFlags) open(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.dbPath != "" {
		cfg.DBPath = g.dbPath
	}

	level := "warn"
	if g.verbose {
		level = "debug"
	}
	logger := logging.NewWithOutput(os.Stderr, level, "text")

	return app.Open(ctx, cfg, logger)
}
