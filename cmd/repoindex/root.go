package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/repoindex/internal/storage"
)

var (
	flagConfig   string
	flagDataDir  string
	flagLogLevel string
	flagProvider string
)

var rootCmd = &cobra.Command{
	Use:           "repoindex",
	Short:         "Incremental semantic index of source repositories",
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"repoindex %s\nBuild Time: %s\nBuild Mode: %s\nSQLite Driver: %s\n",
		version, buildTime, storage.BuildMode, storage.DriverName))

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "YAML config file (default $REPOINDEX_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "index directory (default ~/.repoindex/indices)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagProvider, "provider", "", "embedding provider: gemini, openai, jina, local")
}
