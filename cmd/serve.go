package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/varunsharma6956/ost-mail-searcher/config"
	"github.com/varunsharma6956/ost-mail-searcher/server"
	"github.com/varunsharma6956/ost-mail-searcher/service"
	"github.com/varunsharma6956/ost-mail-searcher/state"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the search API over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(cmd)
	if err != nil {
		return err
	}

	logger, cleanup, err := setupLogger(cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer func() {
		_ = cleanup()
	}()

	slog.SetDefault(logger)
	logger.Info("starting ost-mail-searcher", "addr", cfg.Addr, "extensions", cfg.Extensions, "config", cfg.ConfigFile)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return serve(ctx, cfg, logger)
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	registry, err := newRegistry(cfg, logger)
	if err != nil {
		return fmt.Errorf("archive registry: %w", err)
	}

	svc, err := service.New(service.Options{
		Registry:   registry,
		Store:      state.NewStore(),
		Extensions: cfg.Extensions,
		UploadDir:  cfg.UploadDir,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("service.New: %w", err)
	}

	srv := server.New(svc, server.Options{
		Addr:            cfg.Addr,
		CORSOrigins:     cfg.CORSOrigins,
		MaxUploadBytes:  cfg.MaxUploadBytes(),
		RateLimit:       cfg.RateLimit,
		RateBurst:       cfg.RateBurst,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          logger,
	})

	return srv.Run(ctx)
}
