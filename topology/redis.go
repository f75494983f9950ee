package topology

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPersister stores the policy as a JSON document under a single key.
type RedisPersister struct {
	client redis.Cmdable
	key    string
}

// NewRedisPersister uses key (default "matrix:topology") on client.
func NewRedisPersister(client redis.Cmdable, key string) *RedisPersister {
	if key == "" {
		key = "matrix:topology"
	}
	return &RedisPersister{client: client, key: key}
}

// Save writes p without expiry.
func (r *RedisPersister) Save(ctx context.Context, p Policy) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal topology: %w", err)
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store topology in Redis: %w", err)
	}
	return nil
}

// Load returns the stored policy; found is false when the key is absent.
func (r *RedisPersister) Load(ctx context.Context) (Policy, bool, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Policy{}, false, nil
	}
	if err != nil {
		return Policy{}, false, fmt.Errorf("failed to read topology from Redis: %w", err)
	}
	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return Policy{}, false, fmt.Errorf("failed to unmarshal topology: %w", err)
	}
	return p, true, nil
}
