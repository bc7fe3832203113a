// Package downloads keeps CSV exports available for a follow-up download request.
package downloads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairlabs/stms-dashboard/internal/ttlcache"
)

// Store saves and loads exports by id.
type Store interface {
	Put(ctx context.Context, id string, data []byte) error
	Get(ctx context.Context, id string) ([]byte, bool, error)
}

// Memory is a process-local Store bounded by capacity and ttl.
type Memory struct {
	cache *ttlcache.Cache[[]byte]
}

// NewMemory creates an in-process store.
func NewMemory(capacity int, ttl time.Duration) *Memory {
	return &Memory{cache: ttlcache.New[[]byte](capacity, ttl)}
}

// Put stores data under id.
func (m *Memory) Put(_ context.Context, id string, data []byte) error {
	m.cache.Set(id, data)
	return nil
}

// Get returns the export stored under id, if it has not expired.
func (m *Memory) Get(_ context.Context, id string) ([]byte, bool, error) {
	data, ok := m.cache.Get(id)
	return data, ok, nil
}

// Redis shares exports between server replicas.
type Redis struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedis connects to addr. Keys expire after ttl.
func NewRedis(addr, password string, db int, ttl time.Duration) *Redis {
	return &Redis{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		ttl:    ttl,
		prefix: "stms:download:",
	}
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Put stores data under id with the configured ttl.
func (r *Redis) Put(ctx context.Context, id string, data []byte) error {
	if err := r.rdb.Set(ctx, r.Key(id), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Get loads the export stored under id.
func (r *Redis) Get(ctx context.Context, id string) ([]byte, bool, error) {
	data, err := r.rdb.Get(ctx, r.Key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return data, true, nil
}

// Key returns the Redis key for id.
func (r *Redis) Key(id string) string {
	return r.prefix + id
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
