package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/varunsharma6956/ost-mail-searcher/archive"
	"github.com/varunsharma6956/ost-mail-searcher/config"
	"github.com/varunsharma6956/ost-mail-searcher/mbox"
)

var rootCmd = &cobra.Command{
	Use:   "ost-mail-searcher",
	Short: "Search the messages of Outlook and mbox archives by date",
	// Running without a sub-command serves the HTTP API.
	RunE:         runServe,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env file: %v\n", err)
	}

	if err := config.RegisterFlags(rootCmd); err != nil {
		return fmt.Errorf("failed to register CLI flags: %w", err)
	}

	return rootCmd.Execute()
}

func setupLogger(cfg config.Config, out io.Writer) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.LogDir, fmt.Sprintf("ost-mail-searcher-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(out, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(out, opts)
	return slog.New(handler), cleanup, nil
}

// newRegistry wires the archive formats this build can read. Outlook data
// files stay registered as unavailable so requests for them fail fast.
func newRegistry(cfg config.Config, logger *slog.Logger) (*archive.Registry, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	registry := archive.NewRegistry()
	registry.Register(".ost", archive.Unavailable("pff"))
	registry.Register(".mbox", mbox.New(mbox.Options{Location: loc, Logger: logger}))
	return registry, nil
}
