package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/target/console-gate/internal/bootstrap"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run() error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := bootstrap.InitLogger(cfg.IsDev)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.InfoContext(ctx, "starting console-gate",
		"auth_mode", cfg.Auth.Mode,
		"listen_addr", cfg.HTTP.Addr,
		"max_connections", cfg.Admission.MaxConnections,
		"audit_db", cfg.AuditDB.Enabled)

	app, err := bootstrap.NewApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}

	server := bootstrap.StartHTTPServer(app)

	// Block until SIGINT/SIGTERM, then drain and shut down.
	<-ctx.Done()
	stop()

	shutdownErr := bootstrap.ShutdownHTTPServer(context.Background(), app, server)
	closeErr := app.Close()
	if err := errors.Join(shutdownErr, closeErr); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}
