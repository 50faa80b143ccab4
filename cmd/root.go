// Package cmd contains the specharvest CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/orefield/specharvest/internal/config"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "specharvest",
		Short: "Harvests and reconciles mining equipment specifications.",
		Long: `specharvest collects published specification sheets for mining
equipment, extracts structured parameters from them, and reconciles
conflicting values into a single validated record per machine.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./specharvest.yaml)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newHarvestCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
