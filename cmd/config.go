package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"procodus.dev/vitals/pkg/logger"
)

// LoadDotEnv loads the given env files in order, skipping missing ones. Variables that are
// already set win, so earlier files take precedence over later ones.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// InitConfig initializes Viper configuration.
// It supports reading from config files (config.yaml) and environment variables.
func InitConfig(cfgFile string) error {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in current directory and /etc/vitals/
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/vitals/")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Environment variables, e.g. VITALS_SERVE_DB_PASSWORD
	viper.SetEnvPrefix("VITALS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		var configNotFoundErr viper.ConfigFileNotFoundError
		if errors.As(err, &configNotFoundErr) {
			// Config file not found; rely on env vars and defaults
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

var logFiles []io.Closer

// GetLogger creates a slog.Logger based on configuration. When log.file is set, output is
// also written to a rotated file that is closed after the command finishes.
func GetLogger() *slog.Logger {
	cfg := logger.DefaultConfig()
	cfg.Level = logger.ParseLevel(viper.GetString("log.level"))
	if path := viper.GetString("log.file"); path != "" {
		cfg.File = logger.DefaultFileConfig(path)
	}

	log, closer := logger.Open(cfg)
	logFiles = append(logFiles, closer)
	return log
}

func closeLogFiles() error {
	var errs []error
	for _, c := range logFiles {
		errs = append(errs, c.Close())
	}
	logFiles = nil
	return errors.Join(errs...)
}
