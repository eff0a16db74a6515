package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zero-bot/codecoder/internal/config"
	"github.com/zero-bot/codecoder/internal/logging"
)

// configDirFlag overrides config.DefaultConfigDir() ("" keeps the
// default ~/.codecoder).
var configDirFlag string

var rootCmd = &cobra.Command{
	Use:   "codecoder",
	Short: "codecoder — a personal agent platform gateway, HitL engine, and channel bus",
	Long: `codecoder fans inbound chat-platform messages into a single agent
pipeline, gates risky actions behind a human-in-the-loop approval
engine, and exposes an API gateway with per-user auth and quota
enforcement.

Configuration is read from ~/.codecoder/config.{json|toml} (override
with --config-dir), layered under environment variable overrides.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDirFlag, "config-dir", "", "configuration directory (default ~/.codecoder)")
}

// Execute runs the root command, exiting non-zero on failure per
// spec.md §6.3.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads the effective configuration, translating a missing
// config directory into actionable error text rather than a bare
// "file not found" (spec.md §6.3).
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configDirFlag)
	if err != nil {
		dir := configDirFlag
		if dir == "" {
			if d, derr := config.DefaultConfigDir(); derr == nil {
				dir = d
			}
		}
		return nil, fmt.Errorf("load configuration: %w (expected %s/config.json or config.toml; run `codecoder onboard` to create one)", err, dir)
	}
	return cfg, nil
}

// newLogger builds a component-aware production logger writing JSON to
// stdout, matching the teacher's logging.NewProductionLogger convention.
func newLogger(component string) logging.Logger {
	logger := logging.NewProductionLogger(logging.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, logging.DevelopmentConfig{}, "codecoder")
	if cal, ok := logger.(logging.ComponentAwareLogger); ok {
		return cal.WithComponent(component)
	}
	return logger
}
