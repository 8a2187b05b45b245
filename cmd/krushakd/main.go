// Package main is the entry point for krushakd, the HTTP facade of the
// Krushak recommendation workflow.
//
// Each API session owns one workflow controller. Controllers talk to the
// Krushak backend (weather, prediction and report services) through the
// clients in internal/external and are kept in a bounded in-memory store;
// nothing survives a restart.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"krushak/internal/api/handlers"
	"krushak/internal/config"
	"krushak/internal/core"
	"krushak/internal/external"
	"krushak/internal/telemetry"
	"krushak/internal/workflow"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("krushakd starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
		"backend", cfg.Backend.BaseURL,
	)

	srv, err := buildServer(cfg, logger, telemetry.New())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx, srv, cfg, logger)
}

// buildServer wires the backend clients, the session store and the HTTP
// chassis into a ready-to-serve core.Server.
func buildServer(cfg *config.Config, logger *slog.Logger, metrics *telemetry.Metrics) (*core.Server, error) {
	val := core.NewValidator(logger)
	clients := external.NewClientRegistry(cfg.Backend, val, metrics, logger)

	opts := []workflow.Option{
		workflow.WithLogger(logger),
		workflow.WithRecorder(metrics),
		workflow.WithValidator(val),
		workflow.WithLanguage(cfg.Workflow.Language),
	}
	if cfg.Workflow.SupersedePending {
		opts = append(opts, workflow.WithSupersedePending())
	}
	factory := func() *workflow.Controller {
		return workflow.New(clients.Weather, clients.Predictor, clients.Reports, opts...)
	}

	store, err := handlers.NewSessionStore(cfg.Server.SessionCapacity, factory, metrics)
	if err != nil {
		return nil, fmt.Errorf("creating session store: %w", err)
	}
	sessions := handlers.NewSessionHandler(store, val, logger)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = metrics
	srv.MetricsHandler = metrics.Handler()
	srv.HealthProbes = []core.HealthProbe{clients.Probe}
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, sessions.RegisterRoutes)
	srv.MountRoutes()
	return srv, nil
}

// serve runs the HTTP server until ctx is cancelled or the listener fails,
// then drains in-flight requests within the configured shutdown timeout.
func serve(ctx context.Context, srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	// Report exports can legitimately run for the whole request timeout.
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
