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

	"github.com/JonMunkholm/csvsed/internal/config"
	"github.com/JonMunkholm/csvsed/internal/logging"
	"github.com/JonMunkholm/csvsed/internal/sed"
	"github.com/JonMunkholm/csvsed/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)

	sed.Shell = cfg.Sed.Shell
	sed.CloseGrace = cfg.Sed.CloseGrace

	slog.Info("configuration loaded", "config", cfg.String())
	if cfg.Sed.AllowExternal && !cfg.Security.RequireAPIKey {
		slog.Warn("external command modifiers are enabled without API key authentication")
	}

	server := web.NewServer(cfg)

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("jobs did not complete in time", "error", err, "active", server.Jobs().ActiveCount())
		} else {
			slog.Info("all jobs completed")
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr(), "max_concurrent_jobs", server.Jobs().MaxConcurrent())
	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-done
}
