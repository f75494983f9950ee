package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for field %q: %s", e.Field, e.Message)
}

// Validator provides configuration validation utilities
type Validator struct {
	errors []ValidationError
}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{
		errors: []ValidationError{},
	}
}

func (v *Validator) add(field, msg string) *Validator {
	v.errors = append(v.errors, ValidationError{Field: field, Message: msg})
	return v
}

// RequireNonEmpty validates that a string field is not empty
func (v *Validator) RequireNonEmpty(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.add(field, "value cannot be empty")
	}
	return v
}

// RequirePositive validates that an integer field is greater than 0
func (v *Validator) RequirePositive(field string, value int) *Validator {
	if value <= 0 {
		v.add(field, fmt.Sprintf("value must be positive, got %d", value))
	}
	return v
}

// RequirePositiveDuration validates that a duration is greater than 0
func (v *Validator) RequirePositiveDuration(field string, value time.Duration) *Validator {
	if value <= 0 {
		v.add(field, fmt.Sprintf("duration must be positive, got %s", value))
	}
	return v
}

// ValidateRange validates that an integer field is within a range [min, max]
func (v *Validator) ValidateRange(field string, value, min, max int) *Validator {
	if value < min || value > max {
		v.add(field, fmt.Sprintf("value must be between %d and %d, got %d", min, max, value))
	}
	return v
}

// ValidateFloatRange validates that a float field is within a range [min, max]
func (v *Validator) ValidateFloatRange(field string, value, min, max float64) *Validator {
	if value < min || value > max {
		v.add(field, fmt.Sprintf("value must be between %.2f and %.2f, got %.2f", min, max, value))
	}
	return v
}

// ValidatePort validates that a port number is valid (1-65535)
func (v *Validator) ValidatePort(field string, port int) *Validator {
	return v.ValidateRange(field, port, 1, 65535)
}

// ValidateOneOf validates that a string value is one of the allowed options.
// Comparison ignores case.
func (v *Validator) ValidateOneOf(field string, value string, allowed ...string) *Validator {
	for _, a := range allowed {
		if strings.EqualFold(a, value) {
			return v
		}
	}
	return v.add(field, fmt.Sprintf("value must be one of %v, got %q", allowed, value))
}

// HasErrors returns true if there are any validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Error returns a combined error or nil if no errors
func (v *Validator) Error() error {
	if !v.HasErrors() {
		return nil
	}
	errs := make([]error, 0, len(v.errors))
	for _, e := range v.errors {
		errs = append(errs, e)
	}
	return errors.Join(errs...)
}

// Errors returns all validation errors
func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// Validate checks the full configuration tree.
func (c *Config) Validate() error {
	v := NewValidator()

	v.ValidateOneOf("topology.mode", c.Topology.Mode, "offline", "hybrid", "cloud")

	v.RequireNonEmpty("local.host", c.Local.Host)
	v.RequireNonEmpty("local.model", c.Local.Model)
	v.ValidateFloatRange("local.temperature", c.Local.Temperature, 0, 2)
	v.RequirePositive("local.max_tokens", c.Local.MaxTokens)
	v.RequirePositiveDuration("local.timeout", c.Local.Timeout)

	validateRemotes(v, "vision", c.Vision)
	validateRemotes(v, "executive", c.Executive)

	v.RequirePositive("retry.max_attempts", c.Retry.MaxAttempts)
	v.RequirePositiveDuration("retry.initial_delay", c.Retry.InitialDelay)
	if c.Retry.Factor < 1 {
		v.add("retry.factor", fmt.Sprintf("factor must be >= 1, got %.2f", c.Retry.Factor))
	}

	v.ValidateOneOf("retrieval.backend", c.Retrieval.Backend, "memory", "pgvector")
	v.ValidateOneOf("retrieval.embedder", c.Retrieval.Embedder, "hashing", "openai")
	v.RequirePositive("retrieval.top_k", c.Retrieval.TopK)
	v.RequirePositive("retrieval.dimension", c.Retrieval.Dimension)

	v.ValidateOneOf("store.backend", c.Store.Backend, "none", "memory", "postgres", "redis", "mongo")
	switch strings.ToLower(c.Store.Backend) {
	case "postgres":
		validatePostgres(v, "store.postgres", c.Store.Postgres)
	case "redis":
		v.RequireNonEmpty("store.redis.addr", c.Store.Redis.Addr)
		v.ValidateRange("store.redis.db", c.Store.Redis.DB, 0, 15)
	case "mongo":
		v.RequireNonEmpty("store.mongo.uri", c.Store.Mongo.URI)
		v.RequireNonEmpty("store.mongo.database", c.Store.Mongo.Database)
		v.RequireNonEmpty("store.mongo.collection", c.Store.Mongo.Collection)
	}
	if strings.EqualFold(c.Retrieval.Backend, "pgvector") {
		validatePostgres(v, "retrieval.postgres", c.Retrieval.Postgres)
	}

	v.RequirePositive("runner.max_concurrency", c.Runner.MaxConcurrency)
	if c.RateLimit.PerSecond < 0 {
		v.add("rate_limit.per_second", "value cannot be negative")
	}

	return v.Error()
}

func validateRemotes(v *Validator, name string, remotes []RemoteModelConfig) {
	for i, r := range remotes {
		prefix := fmt.Sprintf("%s[%d]", name, i)
		v.ValidateOneOf(prefix+".provider", r.Provider, "tgi", "openai", "claude", "gemini")
		v.RequireNonEmpty(prefix+".model", r.Model)
		v.ValidateFloatRange(prefix+".temperature", r.Temperature, 0, 2)
		v.RequirePositive(prefix+".max_tokens", r.MaxTokens)
		if strings.EqualFold(r.Provider, "tgi") {
			v.RequireNonEmpty(prefix+".base_url", r.BaseURL)
		}
	}
}

func validatePostgres(v *Validator, prefix string, pg PostgresConfig) {
	v.RequireNonEmpty(prefix+".host", pg.Host)
	v.ValidatePort(prefix+".port", pg.Port)
	v.RequireNonEmpty(prefix+".user", pg.User)
	v.RequireNonEmpty(prefix+".db_name", pg.DBName)
	v.ValidateOneOf(prefix+".ssl_mode", pg.SSLMode, "disable", "require", "verify-ca", "verify-full")
}
