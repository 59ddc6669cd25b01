package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"sitedex/pkg/config"
	"sitedex/pkg/logging"
)

var rootCmd = &cobra.Command{
	Use:   "sitedex",
	Short: "Index and search document repository metadata",
	Long: `Sitedex crawls a remote document repository - sites, folders, files
and email attachments - into a searchable in-memory metadata index,
and serves it over an HTTP API.

Examples:
  sitedex serve              # Start the API server
  sitedex serve --addr :9000 # Listen on a different port
  sitedex version            # Show version information

Credentials come from the config file or SITEDEX_AZURE_* environment
variables; see the serve command help for details.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// loadConfig loads configuration and initializes logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	writer := io.Writer(os.Stderr)
	if cfg.Logging.File != "" {
		f, err := openLogFile(cfg.Logging.File)
		if err != nil {
			return nil, err
		}
		writer = f
	}

	if err := logging.Init(logging.Config{
		Level:      cfg.Logging.Level,
		Components: cfg.Logging.Components,
		Writer:     writer,
	}); err != nil {
		return nil, fmt.Errorf("configuring logging: %w", err)
	}
	return cfg, nil
}

// openLogFile opens the log file for appending, creating its directory
// first. The handle stays open for the life of the process.
func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}
