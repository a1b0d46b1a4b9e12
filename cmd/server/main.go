// Command server runs the quality-lab API: session gate, profiles and the
// test workflow.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/labqa/qualitylab/internal/app"
	"github.com/labqa/qualitylab/internal/config"
	"github.com/labqa/qualitylab/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		slog.Error("qualitylab exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.ServiceName, cfg.LogLevel)
	slog.SetDefault(log)

	application, err := app.NewApp(cfg, log)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("qualitylab starting",
		slog.String("environment", cfg.Environment),
		slog.Int("http_port", cfg.HTTPPort),
		slog.String("credential_store", cfg.CredentialStore),
		slog.String("gate_mode", cfg.GateMode),
	)
	if err := application.Run(ctx); err != nil {
		return err
	}
	log.Info("qualitylab stopped")
	return nil
}
