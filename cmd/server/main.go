// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/unclebandit/certificate-service/internal/app"
	"github.com/unclebandit/certificate-service/internal/config"
	"github.com/unclebandit/certificate-service/internal/handler"
	"github.com/unclebandit/certificate-service/internal/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, relying on OS environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting server", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise", "error", err)
		os.Exit(1)
	}
	// With the in-memory queue this process is also the worker.
	if cfg.Queue.Driver == "memory" {
		if err := a.StartSubscribers(); err != nil {
			slog.Error("failed to start subscribers", "error", err)
			os.Exit(1)
		}
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler.NewRouter(a.Services),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
	if err := a.Close(); err != nil {
		slog.Error("failed to release resources", "error", err)
	}
}
