// Package main provides the API router setup.
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical-ai/spherical/libs/grounding-engine/cmd/grounding-engine-api/handlers"
	"github.com/spherical-ai/spherical/libs/grounding-engine/cmd/grounding-engine-api/middleware"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/api/connectrpc"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/app"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/scoring"
)

// AppConfig holds HTTP-level settings.
type AppConfig struct {
	RequestTimeout time.Duration
	ScoreWorkers   int
	BatchTimeout   time.Duration
	AllowedOrigins []string
	AuthConfig     middleware.AuthConfig
}

// NewAppConfig derives the HTTP settings from the service configuration.
func NewAppConfig(cfg *config.Config) *AppConfig {
	return &AppConfig{
		RequestTimeout: cfg.Server.WriteTimeout,
		ScoreWorkers:   cfg.Scoring.Workers,
		BatchTimeout:   cfg.Scoring.BatchTimeout,
		AllowedOrigins: []string{"*"},
		AuthConfig: middleware.AuthConfig{
			Enabled:          cfg.Auth.Enabled,
			APIKeys:          cfg.Auth.APIKeys,
			AllowPublicPaths: []string{"/health", "/ready"},
		},
	}
}

// NewRouter creates the main API router with all routes configured.
func NewRouter(logger *observability.Logger, a *app.App, cfg *AppConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"grounding-engine"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		w.Header().Set("Content-Type", "application/json")
		if err := a.Ready(ctx); err != nil {
			logger.Warn().Err(err).Msg("Readiness check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.Write([]byte(`{"status":"ready"}`))
	})

	pool := scoring.NewPool(a.Scorer, cfg.ScoreWorkers, cfg.BatchTimeout)

	chatHandler := handlers.NewChatHandler(logger, a.Chat)
	sessionHandler := handlers.NewSessionHandler(logger, a.Sessions, a.Transcripts)
	scoreHandler := handlers.NewScoreHandler(logger, a.Scorer, pool)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.AuthConfig))
		if cfg.RequestTimeout > 0 {
			r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
		}

		r.Post("/chat", chatHandler.Chat)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.Create)
			r.Get("/", sessionHandler.List)
			r.Route("/{sessionId}", func(r chi.Router) {
				r.Get("/", sessionHandler.Get)
				r.Delete("/", sessionHandler.End)
				r.Post("/extend", sessionHandler.Extend)
				r.Get("/transcript", sessionHandler.Transcript)
			})
		})

		r.Route("/score", func(r chi.Router) {
			r.Post("/", scoreHandler.Score)
			r.Post("/batch", scoreHandler.Batch)
		})
	})

	// Connect RPC handlers for service-to-service callers.
	grounding := connectrpc.NewGroundingService(logger, a.Chat, a.Scorer, pool)
	path, handler := grounding.Handler()
	r.With(middleware.Auth(cfg.AuthConfig)).Mount(path, handler)

	return r
}
