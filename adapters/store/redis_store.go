package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zenderhuis/portier/core"
	"github.com/zenderhuis/portier/ports"
)

// RedisStore is a Redis implementation of the Store interface, for set-top
// fleets that share one session across devices. Credentials are stored as
// hashes so a write replaces the whole credential atomically; plain values
// are ordinary keys. Everything lives under one prefix so Clear can find it.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(client *redis.Client) ports.Store {
	return &RedisStore{
		client: client,
		prefix: "portier:",
	}
}

// GetCredential returns the named credential, or nil when absent.
func (s *RedisStore) GetCredential(ctx context.Context, name string) (*core.Credential, error) {
	fields, err := s.client.HGetAll(ctx, s.prefix+"cred:"+name).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read credential: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	createdAt, err := time.Parse(time.RFC3339Nano, fields["createdAt"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse credential createdAt: %w", err)
	}
	maxAge, err := strconv.ParseInt(fields["maxAgeSeconds"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credential maxAgeSeconds: %w", err)
	}

	return &core.Credential{
		Name:      name,
		Value:     fields["value"],
		CreatedAt: createdAt,
		MaxAge:    time.Duration(maxAge) * time.Second,
	}, nil
}

// PutCredential stores a credential as a hash, replacing any prior fields.
func (s *RedisStore) PutCredential(ctx context.Context, c *core.Credential) error {
	key := s.prefix + "cred:" + c.Name
	err := s.client.HSet(ctx, key, map[string]interface{}{
		"value":         c.Value,
		"createdAt":     c.CreatedAt.Format(time.RFC3339Nano),
		"maxAgeSeconds": int64(c.MaxAge / time.Second),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

// GetValue returns a plain stored value, or "" when absent.
func (s *RedisStore) GetValue(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, s.prefix+"value:"+key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read value: %w", err)
	}
	return value, nil
}

// PutValue stores a plain value under a key.
func (s *RedisStore) PutValue(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.prefix+"value:"+key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to store value: %w", err)
	}
	return nil
}

// Remove deletes the given keys, both as credentials and as plain values.
func (s *RedisStore) Remove(ctx context.Context, keys ...string) error {
	redisKeys := make([]string, 0, len(keys)*2)
	for _, key := range keys {
		redisKeys = append(redisKeys, s.prefix+"cred:"+key, s.prefix+"value:"+key)
	}
	if err := s.client.Del(ctx, redisKeys...).Err(); err != nil {
		return fmt.Errorf("failed to remove keys: %w", err)
	}
	return nil
}

// Clear removes every key under the portier prefix.
func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to clear store: %w", err)
	}
	return nil
}
