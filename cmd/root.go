// Package cmd holds the command line entry points.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"conference-central/config"
)

var (
	version = "dev"
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:           "conference-central",
	Short:         "Conference registration backend",
	Long:          `Serves profiles, conferences and seat registration over HTTP.
Without a subcommand it runs serve.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: $CONFIG_PATH or ./config.yaml)")
}

func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadFile(cfgFile)
	}
	return config.Load()
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
