// Package cli holds the flag handling shared by the commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/shardann"
	"github.com/hupe1980/shardann/config"
)

// AddFlags registers --config, --workers, --log-level and --log-format.
func AddFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "YAML configuration file")
	cmd.Flags().Int("workers", 0, "Total worker goroutines (0 uses the CPU affinity count)")
	cmd.Flags().String("log-level", "", "Log level: debug, info, warn, error")
	cmd.Flags().String("log-format", "", "Log format: text or json")
}

// Setup loads the configuration, applies the flags on top and builds the
// logger writing to w.
func Setup(cmd *cobra.Command, w io.Writer) (*config.Config, *shardann.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	if cmd.Flags().Changed("workers") {
		cfg.Resources.Workers, _ = cmd.Flags().GetInt("workers")
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.Logging.Format = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger, err := shardann.NewLoggerFor(w, cfg.Logging.Format, cfg.Logging.Level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// Main runs cmd with a context canceled on SIGINT or SIGTERM and exits 1 on
// error.
func Main(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
