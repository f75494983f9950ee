// Package config loads and validates the triage engine configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the root configuration document (matrix.yaml).
type Config struct {
	Topology  TopologyConfig      `yaml:"topology"`
	Local     LocalModelConfig    `yaml:"local"`
	Vision    []RemoteModelConfig `yaml:"vision"`
	Executive []RemoteModelConfig `yaml:"executive"`
	Retry     RetryConfig         `yaml:"retry"`
	RateLimit RateLimitConfig     `yaml:"rate_limit"`
	Retrieval RetrievalConfig     `yaml:"retrieval"`
	Store     StoreConfig         `yaml:"store"`
	Runner    RunnerConfig        `yaml:"runner"`
	Telemetry TelemetryConfig     `yaml:"telemetry"`
	Log       LogConfig           `yaml:"log"`
}

// TopologyConfig seeds the runtime topology policy.
type TopologyConfig struct {
	Mode                  string `yaml:"mode"`
	FallbackEnabled       bool   `yaml:"fallback_enabled"`
	VisionEnabled         bool   `yaml:"vision_enabled"`
	ExecutiveAgentEnabled bool   `yaml:"executive_agent_enabled"`
	DataCollectionEnabled bool   `yaml:"data_collection_enabled"`
	// File, when set, is watched and reloaded on change.
	File string `yaml:"file"`
	// RedisKey persists admin updates when a redis store is configured.
	RedisKey string `yaml:"redis_key"`
}

// LocalModelConfig describes the on-device Ollama backend.
type LocalModelConfig struct {
	Host        string        `yaml:"host"`
	Model       string        `yaml:"model"`
	VisionModel string        `yaml:"vision_model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// RemoteModelConfig describes one remote backend. Lists are tried in order
// before the local backend.
type RemoteModelConfig struct {
	Provider    string        `yaml:"provider"` // tgi|openai|claude|gemini
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
	Vision      bool          `yaml:"vision"`
}

// RetryConfig controls per-backend retries.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Factor       float64       `yaml:"factor"`
}

// RateLimitConfig bounds model calls per second; zero disables the limiter.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// RetrievalConfig selects the guideline vector store and embedder.
type RetrievalConfig struct {
	Backend     string         `yaml:"backend"`  // memory|pgvector
	Embedder    string         `yaml:"embedder"` // hashing|openai
	TopK        int            `yaml:"top_k"`
	Dimension   int            `yaml:"dimension"`
	CacheSize   int            `yaml:"cache_size"`
	TokenBudget int            `yaml:"token_budget"`
	Diversity   float64        `yaml:"diversity"` // MMR lambda, 0 disables
	Encoding    string         `yaml:"encoding"`
	OpenAIKey   string         `yaml:"openai_api_key"`
	OpenAIURL   string         `yaml:"openai_base_url"`
	OpenAIModel string         `yaml:"openai_model"`
	Postgres    PostgresConfig `yaml:"postgres"`
	PGTableName string         `yaml:"pg_table"`
	SeedOnStart bool           `yaml:"seed_on_start"`
}

// StoreConfig selects where terminal case records go.
type StoreConfig struct {
	Backend  string         `yaml:"backend"` // none|memory|postgres|redis|mongo
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Mongo    MongoConfig    `yaml:"mongo"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"db_name"`
	SSLMode  string `yaml:"ssl_mode"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// MongoConfig holds MongoDB connection settings.
type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// RunnerConfig bounds concurrent cases.
type RunnerConfig struct {
	MaxConcurrency int `yaml:"max_concurrency"`
}

// TelemetryConfig toggles tracing.
type TelemetryConfig struct {
	Disable     bool    `yaml:"disable"`
	Environment string  `yaml:"environment"`
	Exporter    string  `yaml:"exporter"` // otlp|stderr|none; otlp needs OTEL_EXPORTER_OTLP_ENDPOINT
	SampleRatio float64 `yaml:"sample_ratio"`
}

// LogConfig selects the log format and level.
type LogConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Topology: TopologyConfig{
			Mode:                  "hybrid",
			FallbackEnabled:       true,
			VisionEnabled:         true,
			ExecutiveAgentEnabled: true,
			RedisKey:              "matrix:topology",
		},
		Local: LocalModelConfig{
			Host:        "http://localhost:11434",
			Model:       "medgemma:4b",
			VisionModel: "medgemma:4b",
			Temperature: 0.1,
			MaxTokens:   1200,
			Timeout:     90 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 2 * time.Second,
			MaxDelay:     30 * time.Second,
			Factor:       2,
		},
		Retrieval: RetrievalConfig{
			Backend:     "memory",
			Embedder:    "hashing",
			TopK:        3,
			Dimension:   384,
			CacheSize:   256,
			TokenBudget: 1500,
			Encoding:    "cl100k_base",
			OpenAIModel: "text-embedding-3-small",
			PGTableName: "guideline_chunks",
			SeedOnStart: true,
			Postgres:    defaultPostgres(),
		},
		Store: StoreConfig{
			Backend:  "none",
			Postgres: defaultPostgres(),
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "matrix:case:",
			},
			Mongo: MongoConfig{
				URI:        "mongodb://localhost:27017",
				Database:   "matrix",
				Collection: "cases",
			},
		},
		Runner: RunnerConfig{MaxConcurrency: 8},
		Log:    LogConfig{Format: "json", Level: "info"},
	}
}

func defaultPostgres() PostgresConfig {
	return PostgresConfig{
		Host:    "localhost",
		Port:    5432,
		User:    "matrix",
		DBName:  "matrixdb",
		SSLMode: "disable",
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		k := koanf.New(".")
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config from %q: %w", path, err)
		}
		if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
			return nil, fmt.Errorf("failed to parse config from %q: %w", path, err)
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
