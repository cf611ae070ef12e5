// Package main provides the Grounding Engine API server entrypoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/app"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/observability"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("Grounding Engine API exited")
		os.Exit(1)
	}
}

// run serves until ctx is cancelled or the listener fails, then drains
// in-flight requests within the graceful shutdown window.
func run(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	logger.Info().
		Str("database", cfg.Database.Driver).
		Str("sessions", cfg.Session.Driver).
		Str("embedding", cfg.Embedding.Provider).
		Bool("semantic_scoring", cfg.SemanticScoring()).
		Msg("Starting Grounding Engine API")

	if cfg.IsDevelopment() {
		logger.Warn().Bool("auth", cfg.Auth.Enabled).Msg("Running in development mode")
	}

	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error().Err(err).Msg("Shutdown cleanup failed")
		}
	}()

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      NewRouter(logger, a, NewAppConfig(cfg)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("Server stopped")
	return nil
}
