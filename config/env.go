package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnv overlays environment variables onto c. Unset or unparsable values
// leave the current setting untouched.
func (c *Config) ApplyEnv() {
	c.Topology.Mode = getEnv("MATRIX_TOPOLOGY_MODE", c.Topology.Mode)
	c.Topology.File = getEnv("MATRIX_TOPOLOGY_FILE", c.Topology.File)
	c.Topology.VisionEnabled = getEnvBool("MATRIX_VISION_ENABLED", c.Topology.VisionEnabled)
	c.Topology.ExecutiveAgentEnabled = getEnvBool("MATRIX_EXECUTIVE_ENABLED", c.Topology.ExecutiveAgentEnabled)

	c.Local.Host = getEnv("OLLAMA_HOST", c.Local.Host)
	c.Local.Model = getEnv("MATRIX_LOCAL_MODEL", c.Local.Model)
	c.Local.VisionModel = getEnv("MATRIX_LOCAL_VISION_MODEL", c.Local.VisionModel)
	c.Local.Timeout = getEnvDuration("MATRIX_LOCAL_TIMEOUT", c.Local.Timeout)

	// A cloud TGI endpoint given only through the environment becomes the
	// first executive backend.
	if url := os.Getenv("CLOUD_LLM_URL"); url != "" && !hasProvider(c.Executive, "tgi") {
		c.Executive = append([]RemoteModelConfig{{
			Provider:    "tgi",
			BaseURL:     url,
			APIKey:      os.Getenv("HF_TOKEN"),
			Model:       getEnv("CLOUD_LLM_MODEL", "medgemma-27b"),
			Temperature: 0.1,
			MaxTokens:   1500,
			Timeout:     120 * time.Second,
		}}, c.Executive...)
	}
	fillKey(c.Vision, "openai", "OPENAI_API_KEY")
	fillKey(c.Executive, "openai", "OPENAI_API_KEY")
	fillKey(c.Vision, "claude", "ANTHROPIC_API_KEY")
	fillKey(c.Executive, "claude", "ANTHROPIC_API_KEY")
	fillKey(c.Vision, "gemini", "GEMINI_API_KEY")
	fillKey(c.Executive, "gemini", "GEMINI_API_KEY")
	fillKey(c.Vision, "tgi", "HF_TOKEN")
	fillKey(c.Executive, "tgi", "HF_TOKEN")

	c.Retry.MaxAttempts = getEnvInt("MATRIX_RETRY_ATTEMPTS", c.Retry.MaxAttempts)
	c.Retry.InitialDelay = getEnvDuration("MATRIX_RETRY_DELAY", c.Retry.InitialDelay)
	c.RateLimit.PerSecond = getEnvFloat("MATRIX_RATE_LIMIT", c.RateLimit.PerSecond)

	c.Retrieval.Backend = getEnv("MATRIX_RETRIEVAL_BACKEND", c.Retrieval.Backend)
	c.Retrieval.Embedder = getEnv("MATRIX_EMBEDDER", c.Retrieval.Embedder)
	c.Retrieval.Diversity = getEnvFloat("MATRIX_RETRIEVAL_DIVERSITY", c.Retrieval.Diversity)
	if c.Retrieval.OpenAIKey == "" {
		c.Retrieval.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	}
	applyPostgresEnv(&c.Retrieval.Postgres)

	c.Store.Backend = getEnv("MATRIX_STORE_BACKEND", c.Store.Backend)
	applyPostgresEnv(&c.Store.Postgres)
	c.Store.Redis.Addr = getEnv("REDIS_ADDR", c.Store.Redis.Addr)
	c.Store.Redis.Password = getEnv("REDIS_PASSWORD", c.Store.Redis.Password)
	c.Store.Redis.DB = getEnvInt("REDIS_DB", c.Store.Redis.DB)
	c.Store.Redis.TTL = getEnvDuration("REDIS_TTL", c.Store.Redis.TTL)
	c.Store.Mongo.URI = getEnv("MONGODB_URI", c.Store.Mongo.URI)
	c.Store.Mongo.Database = getEnv("MONGODB_DATABASE", c.Store.Mongo.Database)

	c.Runner.MaxConcurrency = getEnvInt("MATRIX_MAX_CONCURRENCY", c.Runner.MaxConcurrency)
	c.Telemetry.Disable = getEnvBool("MATRIX_TELEMETRY_DISABLE", c.Telemetry.Disable)
	c.Telemetry.Exporter = getEnv("MATRIX_TELEMETRY_EXPORTER", c.Telemetry.Exporter)
	c.Telemetry.SampleRatio = getEnvFloat("MATRIX_TELEMETRY_SAMPLE_RATIO", c.Telemetry.SampleRatio)
	c.Log.Format = getEnv("MATRIX_LOG_FORMAT", c.Log.Format)
	c.Log.Level = getEnv("MATRIX_LOG_LEVEL", c.Log.Level)
}

func applyPostgresEnv(pg *PostgresConfig) {
	pg.Host = getEnv("POSTGRES_HOST", pg.Host)
	pg.Port = getEnvInt("POSTGRES_PORT", pg.Port)
	pg.User = getEnv("POSTGRES_USER", pg.User)
	pg.Password = getEnv("POSTGRES_PASSWORD", pg.Password)
	pg.DBName = getEnv("POSTGRES_DB", pg.DBName)
	pg.SSLMode = getEnv("POSTGRES_SSLMODE", pg.SSLMode)
}

func hasProvider(list []RemoteModelConfig, provider string) bool {
	for _, r := range list {
		if strings.EqualFold(r.Provider, provider) {
			return true
		}
	}
	return false
}

func fillKey(list []RemoteModelConfig, provider, env string) {
	key := os.Getenv(env)
	if key == "" {
		return
	}
	for i := range list {
		if strings.EqualFold(list[i].Provider, provider) && list[i].APIKey == "" {
			list[i].APIKey = key
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
