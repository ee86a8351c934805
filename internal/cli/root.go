// Package cli implements the ek-scraper command tree.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jonasehrlich/ek-scraper/internal/config"
	"github.com/jonasehrlich/ek-scraper/internal/pkg/logger"
	"github.com/jonasehrlich/ek-scraper/internal/store"
)

var verbose bool

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ek-scraper",
		Short:         "Scrape kleinanzeigen.de searches and get notified about new ads",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newRunCmd())
	root.AddCommand(newCreateConfigCmd())
	root.AddCommand(newPruneCmd())
	root.AddCommand(newWatchCmd())
	return root
}

// Execute runs the command tree and returns the final error for main to
// map onto the exit code.
func Execute() error {
	return newRootCmd().Execute()
}

func newLogger() *slog.Logger {
	level := "info"
	if verbose {
		level = "debug"
	}
	return logger.NewDefault(level)
}

// defaultDataStorePath is where the file store lives when neither the
// configuration nor the --data-store flag names one.
func defaultDataStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "ek-scraper-datastore.json"
	}
	return filepath.Join(home, ".ek-scraper", "datastore.json")
}

// openStore opens the data store backend the configuration selects.
// flagPath, when non-empty, overrides the configured file path; ephemeral
// forces an in-memory store that is discarded on exit.
func openStore(ctx context.Context, cfg *config.Config, flagPath string, ephemeral bool, log *slog.Logger) (store.Store, error) {
	if ephemeral {
		log.Info("using temporary in-memory data store")
		return store.OpenEphemeral(log), nil
	}
	switch cfg.DataStore.Type {
	case "redis":
		st, err := store.OpenRedis(ctx, cfg.DataStore.RedisAddr, cfg.DataStore.RedisPassword, log)
		if err != nil {
			return nil, fmt.Errorf("open redis data store: %w", err)
		}
		return st, nil
	default:
		path := flagPath
		if path == "" {
			path = cfg.DataStore.Path
		}
		if path == "" {
			path = defaultDataStorePath()
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data store directory: %w", err)
		}
		st, err := store.Open(path, log)
		if err != nil {
			return nil, fmt.Errorf("open data store: %w", err)
		}
		return st, nil
	}
}
