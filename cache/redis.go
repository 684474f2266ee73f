// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisLayer is the hot exact-match tier. It fronts the postgres store: reads
// check redis first, and postgres hits are written back with a TTL. All
// failures are soft; the caller falls through to postgres.
type RedisLayer struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLayer connects to redis using a redis:// URL.
func NewRedisLayer(redisURL string, ttl time.Duration) (*RedisLayer, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisLayer{client: client, ttl: ttl}, nil
}

// NewRedisLayerWithClient wraps an existing client, used in tests.
func NewRedisLayerWithClient(client *redis.Client, ttl time.Duration) *RedisLayer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisLayer{client: client, ttl: ttl}
}

func redisKey(tenantID, requestHash string) string {
	return fmt.Sprintf("cache:%s:%s", tenantID, requestHash)
}

// Get returns the cached entry, or nil on miss or redis failure.
func (l *RedisLayer) Get(ctx context.Context, tenantID, requestHash string) *Entry {
	if l == nil {
		return nil
	}

	data, err := l.client.Get(ctx, redisKey(tenantID, requestHash)).Bytes()
	if err != nil {
		return nil
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil
	}
	// Key namespacing already isolates tenants; the check guards against
	// malformed writes.
	if entry.TenantID != tenantID {
		return nil
	}
	return &entry
}

// Set stores an entry with the configured TTL. Errors are returned for
// logging but callers treat them as non-fatal.
func (l *RedisLayer) Set(ctx context.Context, entry *Entry) error {
	if l == nil || entry == nil {
		return nil
	}

	// The hot layer serves exact lookups only; embeddings stay in postgres.
	slim := *entry
	slim.Embedding = nil

	data, err := json.Marshal(&slim)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	if err := l.client.Set(ctx, redisKey(entry.TenantID, entry.RequestHash), data, l.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache entry to redis: %w", err)
	}
	return nil
}

// Close releases the redis connection.
func (l *RedisLayer) Close() error {
	if l == nil {
		return nil
	}
	return l.client.Close()
}
