package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pbaille/retro/internal/config"
	"github.com/pbaille/retro/internal/journal"
	"github.com/pbaille/retro/internal/logging"
	"github.com/pbaille/retro/internal/store"
)

var (
	configPath string
	dbPath     string
	logLevel   string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "retro",
		Short:        "Year-over-year question and answer journal",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", filepath.Join(config.DefaultDir(), "config.yaml"), "config file path")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides config)")

	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(editCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(bankCmd())
	rootCmd.AddCommand(timelineCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(rolloverCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(serveCmd())

	return rootCmd
}

// app bundles what a command needs and how to release it
type app struct {
	cfg     config.Config
	journal *journal.Journal
	log     zerolog.Logger
	closers []io.Closer
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i].Close()
	}
}

func openApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	log, logCloser, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, err
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		logCloser.Close()
		return nil, err
	}

	j := journal.New(db, journal.Options{
		CurrentKey: cfg.Slots.Current,
		LegacyKey:  cfg.Slots.Legacy,
		Logger:     &log,
	})

	return &app{
		cfg:     cfg,
		journal: j,
		log:     log,
		closers: []io.Closer{logCloser, db},
	}, nil
}

func parseYear(s string) (float64, error) {
	y, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid year %q", s)
	}
	return y, nil
}

func formatYear(y float64) string {
	return strconv.FormatFloat(y, 'f', -1, 64)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	// Replace newlines with spaces for display
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
