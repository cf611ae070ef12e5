// Package config provides unified configuration loading for the Grounding Engine.
// Supports .env files, YAML files, environment variables, and programmatic overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the Grounding Engine.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Session       SessionConfig       `yaml:"session"`
	Cache         CacheConfig         `yaml:"cache"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Generation    GenerationConfig    `yaml:"generation"`
	Retrieval     RetrievalConfig     `yaml:"retrieval"`
	Router        RouterConfig        `yaml:"router"`
	Scoring       ScoringConfig       `yaml:"scoring"`
	Observability ObservabilityConfig `yaml:"observability"`
	Auth          AuthConfig          `yaml:"auth"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	JournalMode  string `yaml:"journal_mode"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// SessionConfig holds conversation session settings.
type SessionConfig struct {
	Driver          string        `yaml:"driver"` // memory or redis
	Timeout         time.Duration `yaml:"timeout"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	LockTTL         time.Duration `yaml:"lock_ttl"`
	KeyPrefix       string        `yaml:"key_prefix"`
	Redis           RedisConfig   `yaml:"redis"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// EmbeddingConfig holds embedding model settings.
type EmbeddingConfig struct {
	Provider  string        `yaml:"provider"` // mock or http
	BaseURL   string        `yaml:"base_url"`
	Model     string        `yaml:"model"`
	APIKey    string        `yaml:"api_key"`
	Dimension int           `yaml:"dimension"`
	BatchSize int           `yaml:"batch_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

// GenerationConfig holds LLM settings for answers and clarifications.
type GenerationConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
	Repair      bool          `yaml:"repair"`
	MaxContext  int           `yaml:"max_context_chars"`
	// RequestsPerMinute caps LLM calls per process; 0 means unlimited.
	RequestsPerMinute int `yaml:"requests_per_minute"`
	// MaxRetries re-sends a call after 429 or 5xx. The default of 0 keeps
	// one attempt per turn.
	MaxRetries int `yaml:"max_retries"`
}

// RetrievalConfig holds retrieval settings.
type RetrievalConfig struct {
	TopK         int           `yaml:"top_k"`
	CorpusDir    string        `yaml:"corpus_dir"`
	Timeout      time.Duration `yaml:"timeout"`
	CacheQueries bool          `yaml:"cache_queries"`
	// Sources limits retrieval to chunks from these documents. Empty means all.
	Sources []string `yaml:"sources"`
}

// RouterConfig holds the conversational routing thresholds.
type RouterConfig struct {
	Threshold          float64 `yaml:"threshold"`
	ReclarifyThreshold float64 `yaml:"reclarify_threshold"`
	MaxClarify         int     `yaml:"max_clarify"`
	SnippetTurns       int     `yaml:"snippet_turns"`
}

// ScoringConfig holds context-utilization scoring settings.
type ScoringConfig struct {
	FuzzySimilarity       float64       `yaml:"fuzzy_similarity"`
	TokenOverlap          float64       `yaml:"token_overlap"`
	SemanticTermThreshold float64       `yaml:"semantic_term_threshold"`
	BM25K1                float64       `yaml:"bm25_k1"`
	BM25B                 float64       `yaml:"bm25_b"`
	// Semantic enables embedding-based alignment. It only takes effect with
	// a real embedding provider; see Config.SemanticScoring.
	Semantic              bool          `yaml:"semantic"`
	Workers               int           `yaml:"workers"`
	BatchTimeout          time.Duration `yaml:"batch_timeout"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// AuthConfig holds API key authentication settings.
type AuthConfig struct {
	Enabled bool     `yaml:"enabled"`
	APIKeys []string `yaml:"api_keys"`
}

// Load reads an optional .env file, then the YAML file, then applies
// environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}

		// Paths in the file are relative to the file itself.
		if cfg.Retrieval.CorpusDir != "" {
			cfg.Retrieval.CorpusDir = ResolveRelativePath(path, cfg.Retrieval.CorpusDir)
		}
		cfg.Database.SQLite.Path = ResolveRelativePath(path, cfg.Database.SQLite.Path)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8085,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     60 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:         "/tmp/grounding-engine.db",
				MaxOpenConns: 1,
				JournalMode:  "WAL",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Session: SessionConfig{
			Driver:          "memory",
			Timeout:         30 * time.Minute,
			CleanupInterval: 300 * time.Second,
			LockTTL:         2 * time.Minute,
			KeyPrefix:       "grounding:session:",
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
			},
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        10 * time.Minute,
			MaxEntries: 10000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       1,
				PoolSize: 10,
			},
		},
		Embedding: EmbeddingConfig{
			Provider:  "mock",
			BaseURL:   "https://openrouter.ai/api/v1",
			Model:     "openai/text-embedding-3-small",
			Dimension: 384,
			BatchSize: 64,
			Timeout:   30 * time.Second,
		},
		Generation: GenerationConfig{
			BaseURL:     "https://openrouter.ai/api/v1",
			Model:       "openai/gpt-4o-mini",
			Temperature: 0.0,
			MaxTokens:   1024,
			Timeout:     60 * time.Second,
			Repair:      true,
			MaxContext:  12000,
		},
		Retrieval: RetrievalConfig{
			TopK:         3,
			Timeout:      15 * time.Second,
			CacheQueries: true,
		},
		Router: RouterConfig{
			Threshold:          0.45,
			ReclarifyThreshold: 0.35,
			MaxClarify:         2,
			SnippetTurns:       3,
		},
		Scoring: ScoringConfig{
			FuzzySimilarity:       0.8,
			TokenOverlap:          0.6,
			SemanticTermThreshold: 0.5,
			BM25K1:                1.2,
			BM25B:                 0.75,
			Semantic:              true,
			Workers:               4,
			BatchTimeout:          5 * time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "grounding-engine",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	if c.Database.Driver == "postgres" && c.Database.Postgres.DSN == "" {
		return fmt.Errorf("postgres driver requires database.postgres.dsn")
	}

	if c.Session.Driver != "memory" && c.Session.Driver != "redis" {
		return fmt.Errorf("invalid session driver: %s", c.Session.Driver)
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Embedding.Provider != "mock" && c.Embedding.Provider != "http" {
		return fmt.Errorf("invalid embedding provider: %s", c.Embedding.Provider)
	}

	if c.Retrieval.TopK < 1 || c.Retrieval.TopK > 50 {
		return fmt.Errorf("top_k must be between 1 and 50")
	}

	if c.Router.Threshold < 0 || c.Router.Threshold > 1 {
		return fmt.Errorf("router threshold must be within [0, 1]: %v", c.Router.Threshold)
	}

	if c.Router.ReclarifyThreshold < 0 || c.Router.ReclarifyThreshold > c.Router.Threshold {
		return fmt.Errorf("reclarify_threshold must be within [0, threshold]: %v", c.Router.ReclarifyThreshold)
	}

	if c.Router.MaxClarify < 0 {
		return fmt.Errorf("max_clarify must not be negative")
	}

	if c.Generation.RequestsPerMinute < 0 {
		return fmt.Errorf("generation requests_per_minute must not be negative")
	}
	if c.Generation.MaxRetries < 0 {
		return fmt.Errorf("generation max_retries must not be negative")
	}

	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 {
		return fmt.Errorf("auth enabled without api_keys")
	}

	return nil
}

// SemanticScoring reports whether scoring should use embeddings. The mock
// provider's hash vectors carry no meaning, so it never does.
func (c *Config) SemanticScoring() bool {
	return c.Scoring.Semantic && c.Embedding.Provider != "mock"
}

// IsDevelopment reports whether the API runs without authentication or on
// the embedded SQLite store.
func (c *Config) IsDevelopment() bool {
	return c.Database.Driver == "sqlite" || !c.Auth.Enabled
}


// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Database.Driver = "postgres"
			cfg.Database.Postgres.DSN = v
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		// Parse redis://host:port format
		addr := strings.TrimPrefix(v, "redis://")
		cfg.Session.Driver = "redis"
		cfg.Session.Redis.Addr = addr
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = addr
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}

	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.Generation.APIKey = v
	}

	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.Generation.BaseURL = v
	}

	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.Generation.Model = v
	}

	if v := os.Getenv("EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
		cfg.Embedding.Provider = "http"
	}

	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}

	if v := os.Getenv("ROUTER_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Router.Threshold = f
		}
	}

	if v := os.Getenv("ROUTER_MAX_CLARIFY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Router.MaxClarify = n
		}
	}

	if v := os.Getenv("API_KEYS"); v != "" {
		var keys []string
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		cfg.Auth.APIKeys = keys
		cfg.Auth.Enabled = len(keys) > 0
	}
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if filepath.IsAbs(targetPath) {
		return targetPath
	}
	configDir := filepath.Dir(configPath)
	return filepath.Join(configDir, targetPath)
}
