package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// StartHTTPServer starts the HTTP server for the app and returns it for
// graceful shutdown.
func StartHTTPServer(app *App) *http.Server {
	addr := app.Config.HTTP.Addr
	if addr == "" {
		addr = ":8080"
	}

	server := &http.Server{
		Addr:         addr,
		Handler:      app.Handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		app.Logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Error("HTTP server failed", "error", err)
		}
	}()

	return server
}

// ShutdownHTTPServer drains and stops the HTTP server. The drain flag flips
// first so new admissions are refused and load balancers stop routing here,
// then in-flight requests get the configured grace period before the
// listener closes.
func ShutdownHTTPServer(ctx context.Context, app *App, server *http.Server) error {
	if server == nil {
		return nil
	}
	logger := app.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("draining before shutdown", "grace", app.Config.HTTP.ShutdownGrace)
	app.Admission.SetDraining(true)

	select {
	case <-time.After(app.Config.HTTP.ShutdownGrace):
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("HTTP server stopped")
	return nil
}
