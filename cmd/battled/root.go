package main

import (
	"fmt"
	"os"

	"github.com/neo/battlearena/internal/config"
	"github.com/neo/battlearena/internal/logging"
	"github.com/spf13/cobra"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "battled",
	Short: "Battle Arena - daily debate battles",
	Long: `battled keeps exactly one debate battle running at a time. It generates
topics, lets players join a side and submit arguments, judges the battle at
expiry, awards points and starts the next one.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
}

// loadConfig reads the environment and configures the default logger
func loadConfig(prefix string) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if err := logging.InitDefaultLogger(logging.Config{
		Level:       level,
		Prefix:      prefix,
		Colored:     os.Getenv("NO_COLOR") == "",
		LogToFile:   cfg.LogFile != "",
		LogFilePath: cfg.LogFile,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}
