// Package app wires the Grounding Engine components from configuration.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/chat"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/conversation"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/embedding"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/generation"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/ingest"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/retrieval"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/scoring"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/session"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/storage"
)

// App holds the wired components. Close releases them in reverse order.
type App struct {
	Config      *config.Config
	Logger      *observability.Logger
	DB          *sql.DB
	Chunks      *storage.ChunkRepository
	Transcripts *storage.TranscriptRepository
	Cache       cache.Client
	Embedder    embedding.Embedder
	Retriever   *retrieval.VectorRetriever
	Generator   conversation.Generator
	Scorer      *scoring.Builder
	Router      *conversation.Router
	Sessions    *session.Manager
	Chat        *chat.Service

	closers []func() error
}

// Options select optional parts of the wiring.
type Options struct {
	// SkipIndex leaves the vector index empty instead of loading the stored
	// corpus.
	SkipIndex bool
	// OnIndexBatch is called while the corpus is being indexed.
	OnIndexBatch func(done int)
}

// NewLogger builds the logger described by cfg.
func NewLogger(cfg *config.Config) *observability.Logger {
	return observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
}

// OpenDatabase opens and migrates the configured database.
func OpenDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := storage.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := storage.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewCache builds the configured cache client.
func NewCache(cfg config.CacheConfig) (cache.Client, error) {
	switch cfg.Driver {
	case "", "memory":
		return cache.NewMemoryClient(cfg.MaxEntries), nil
	case "redis":
		return cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}

// NewScorer builds the scoring engine. Embedding-based alignment signals are
// only computed when c.SemanticScoring holds and embedder is non-nil.
func NewScorer(c *config.Config, embedder embedding.Embedder, logger *observability.Logger) *scoring.Builder {
	cfg := c.Scoring
	opts := scoring.Options{
		FuzzySimilarity:       cfg.FuzzySimilarity,
		TokenOverlap:          cfg.TokenOverlap,
		SemanticTermThreshold: cfg.SemanticTermThreshold,
		BM25K1:                cfg.BM25K1,
		BM25B:                 cfg.BM25B,
	}
	var provider scoring.EmbeddingProvider
	if c.SemanticScoring() && embedder != nil {
		provider = embedding.Encoder{Embedder: embedder}
	}
	return scoring.NewBuilder(logger, opts, nil, provider)
}

// Settings maps router configuration onto per-session settings.
func Settings(cfg *config.Config) conversation.Settings {
	return conversation.Settings{
		TopK:               cfg.Retrieval.TopK,
		Threshold:          cfg.Router.Threshold,
		ReclarifyThreshold: cfg.Router.ReclarifyThreshold,
		MaxClarify:         cfg.Router.MaxClarify,
		SnippetTurns:       cfg.Router.SnippetTurns,
	}
}

// New wires every component. The returned App must be closed.
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger, opts Options) (_ *App, err error) {
	if logger == nil {
		logger = NewLogger(cfg)
	}
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.DB, err = OpenDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.DB.Close)
	a.Chunks = storage.NewChunkRepository(a.DB)
	a.Transcripts = storage.NewTranscriptRepository(a.DB)

	a.Cache, err = NewCache(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	a.closers = append(a.closers, a.Cache.Close)

	base, err := embedding.New(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	a.Embedder = base
	if cfg.Retrieval.CacheQueries {
		a.Embedder = embedding.NewCachedEmbedder(base, a.Cache, cfg.Cache.TTL, logger.WithComponent("embedding"))
	}

	index := retrieval.NewMemoryIndex()
	a.closers = append(a.closers, index.Close)
	a.Retriever = retrieval.NewVectorRetriever(a.Embedder, index, logger.WithComponent("retrieval"),
		retrieval.WithBatchSize(cfg.Embedding.BatchSize),
		retrieval.WithSources(cfg.Retrieval.Sources...),
	)

	if !opts.SkipIndex {
		n, err := ingest.LoadIndex(ctx, a.Chunks, a.Retriever, opts.OnIndexBatch)
		if err != nil {
			return nil, err
		}
		logger.Info().Int("chunks", n).Str("model", a.Embedder.Model()).Msg("Corpus indexed")
	}

	gen, err := generation.New(cfg.Generation, logger.WithComponent("generation"))
	switch {
	case err == nil:
		a.Generator = gen
	case cfg.Generation.APIKey == "":
		// Without a model every answer abstains and every clarification
		// uses the fallback question.
		logger.Warn().Msg("No LLM API key configured, generation disabled")
	default:
		return nil, fmt.Errorf("create generator: %w", err)
	}

	a.Scorer = NewScorer(cfg, a.Embedder, logger.WithComponent("scoring"))
	a.Router = conversation.NewRouter(logger.WithComponent("router"), a.Retriever, a.Generator, a.Scorer, conversation.RouterConfig{
		RetrieveTimeout: cfg.Retrieval.Timeout,
		GenerateTimeout: cfg.Generation.Timeout,
	})

	store, err := session.NewStore(cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}
	a.Sessions = session.NewManager(store, session.ManagerConfig{
		Timeout:  cfg.Session.Timeout,
		LockTTL:  cfg.Session.LockTTL,
		Settings: Settings(cfg),
	}, logger)
	a.closers = append(a.closers, a.Sessions.Close)

	a.Chat = chat.NewService(a.Router, a.Sessions, a.Transcripts, logger)
	return a, nil
}

// Ready checks the backing database.
func (a *App) Ready(ctx context.Context) error {
	if a.DB == nil {
		return errors.New("database not configured")
	}
	return a.DB.PingContext(ctx)
}

// Close releases every component.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
