// Package main provides the unified CLI entry point for the vitals services.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "vitals",
		Short: "Wristband vitals monitor",
		Long: `A wristband vitals monitor with three commands:
- serve: Ingests wristband readings and serves the patient and volunteer portals
- seed: Creates the demo patient and inserts demo readings
- simulate: Runs fake wristbands against the ingestion endpoint`,
		Version: "1.0.0",
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return closeLogFiles()
		},
	}
)

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or /etc/vitals/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-file", "", "also write logs to this file, rotated by size")

	// Bind flags to viper
	if err := viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		log.Fatalf("failed to bind log-level flag: %v", err)
	}
	if err := viper.BindPFlag("log.file", rootCmd.PersistentFlags().Lookup("log-file")); err != nil {
		log.Fatalf("failed to bind log-file flag: %v", err)
	}
}

// initConfig reads in .env files, the config file and ENV variables if set.
func initConfig() {
	if err := LoadDotEnv(".env.local", ".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading env file: %v\n", err)
		os.Exit(1)
	}

	if err := InitConfig(cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Log config file being used
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}
