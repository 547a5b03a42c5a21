// Package cli provides the shodh developer command-line interface: a thin
// wrapper over internal/engine for local testing and scripting, not the
// production HTTP surface (SPEC_FULL.md §6a).
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shodh/memory-engine/internal/config"
	"github.com/shodh/memory-engine/internal/engine"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	userID string

	cfg config.Config
	eng *engine.Engine
)

var rootCmd = &cobra.Command{
	Use:   "shodh",
	Short: "Local offline memory engine for edge-device agents",
	Long: `shodh is a developer CLI over the local memory engine: a Vamana ANN
index, a Hebbian knowledge graph, and a density-dependent hybrid retriever,
all running fully offline against a per-user on-disk store.

This CLI talks to the same engine an embedded agent runtime would; it exists
for local testing and scripting, not as the production request surface.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger, _ := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
		eng, err = engine.New(cfg, logger)
		if err != nil {
			return fmt.Errorf("construct engine: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if eng == nil {
			return nil
		}
		return eng.Close()
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "default", "user namespace to operate on")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(retrieveCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(serveCmd)
}

func exitWithError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// cliContext is a convenience background context; the CLI is a short-lived
// process so there is no outer cancellation to thread through.
func cliContext() context.Context {
	return context.Background()
}
