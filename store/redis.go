package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	matrixerrors "github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/errors"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/triage"
)

// RedisStore implements CaseStore using Redis. Each case is a JSON string
// key; a sorted set scored by completion time indexes them.
type RedisStore struct {
	client redis.Cmdable
	closer func() error
	prefix string
	ttl    time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string        // Redis server address (e.g., "localhost:6379")
	Password string        // Redis password (if any)
	DB       int           // Redis database number
	Prefix   string        // Key prefix for namespacing
	TTL      time.Duration // Time-to-live for case keys (0 means no expiration)
}

// NewRedisStore creates a Redis-backed case store with its own client.
func NewRedisStore(config *RedisConfig) *RedisStore {
	if config == nil {
		config = &RedisConfig{Addr: "localhost:6379", Prefix: "matrix:case:"}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	s := NewRedisStoreWithClient(client, config.Prefix, config.TTL)
	s.closer = client.Close
	return s
}

// NewRedisStoreWithClient shares an existing client, for example the one
// persisting the topology policy.
func NewRedisStoreWithClient(client redis.Cmdable, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "matrix:case:"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(caseID string) string { return s.prefix + caseID }

func (s *RedisStore) indexKey() string { return s.prefix + "index" }

// SaveCase writes the record and its index entry in one transaction.
func (s *RedisStore) SaveCase(ctx context.Context, c *triage.CaseState) error {
	if c == nil || c.CaseID == "" {
		return fmt.Errorf("%w: case must have an id", matrixerrors.ErrInvalidInput)
	}
	r := FromCase(c)
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal case: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(r.CaseID), data, s.ttl)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(r.CompletedAt.UnixNano()), Member: r.CaseID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store case in Redis: %w", err)
	}
	return nil
}

// Get retrieves a case by id.
func (s *RedisStore) Get(ctx context.Context, caseID string) (*Record, error) {
	data, err := s.client.Get(ctx, s.key(caseID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("case %s: %w", caseID, matrixerrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get case: %w", err)
	}
	return decodeRecord(data)
}

// List returns the newest cases first. Index entries whose key has expired
// are pruned.
func (s *RedisStore) List(ctx context.Context, limit int) ([]*Record, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, int64(normalizeLimit(limit)-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read case index: %w", err)
	}

	records := make([]*Record, 0, len(ids))
	for _, id := range ids {
		r, err := s.Get(ctx, id)
		if errors.Is(err, matrixerrors.ErrNotFound) {
			s.client.ZRem(ctx, s.indexKey(), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// Count returns the number of indexed cases
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.ZCard(ctx, s.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count cases: %w", err)
	}
	return int(n), nil
}

// Clear removes all cases and the index.
func (s *RedisStore) Clear(ctx context.Context) error {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to read case index: %w", err)
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.key(id))
	}
	keys = append(keys, s.indexKey())
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete cases: %w", err)
	}
	return nil
}

// Ping checks if Redis connection is alive
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client if this store created it.
func (s *RedisStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
