package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhle/tido/internal/logging"
	"github.com/nhle/tido/internal/model"
	"github.com/nhle/tido/internal/store"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "tidod",
		Short:         "Tido - collaborative task list server",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", model.DefaultConfigPath(), "path to config file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(migrateCmd(&configPath))
	rootCmd.AddCommand(sweepCmd(&configPath))
	return rootCmd
}

// setup loads configuration and opens the store with migrations applied.
func setup(configPath string) (*model.AppConfig, *slog.Logger, *store.SQLiteStore, error) {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)

	s, err := store.NewSQLiteStore(cfg.Database.Path, store.WithLogger(logger))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening database %s: %w", cfg.Database.Path, err)
	}
	return cfg, logger, s, nil
}
