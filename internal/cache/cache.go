// Package cache keeps the most recent reading of every patient and device in Redis so the
// volunteer overview can be served without scanning wristband_data.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/go-redis/redis/v8"

	"procodus.dev/vitals/pkg/metrics"
	"procodus.dev/vitals/pkg/vitals"
)

// DefaultKey is the Redis hash holding the latest readings.
const DefaultKey = "vitals:latest"

// Config holds the Redis connection settings.
type Config struct {
	Addr     string
	Password string
	Key      string
	DB       int
}

// NewClient creates a Redis client for cfg.
func NewClient(cfg *Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Latest is the read/write surface used by ingestion and the volunteer portal.
type Latest interface {
	Put(ctx context.Context, r vitals.Reading) error
	All(ctx context.Context) ([]vitals.Reading, error)
}

// Cache stores one JSON reading per user/device field of a Redis hash.
type Cache struct {
	client  *redis.Client
	logger  *slog.Logger
	metrics *metrics.CacheMetrics
	key     string
}

// New creates a Cache on client. An empty key uses DefaultKey.
func New(client *redis.Client, key string, logger *slog.Logger) (*Cache, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if key == "" {
		key = DefaultKey
	}
	return &Cache{client: client, key: key, logger: logger.With("component", "cache")}, nil
}

// SetMetrics sets the optional metrics collector.
func (c *Cache) SetMetrics(m *metrics.CacheMetrics) {
	c.metrics = m
}

func (c *Cache) observe(op string, err error) {
	if c.metrics != nil {
		c.metrics.Operations.WithLabelValues(op, metrics.StatusLabel(err)).Inc()
	}
}

// Ping checks the Redis connection.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// maxPutAttempts bounds the optimistic retries of Put when concurrent writers touch the hash.
const maxPutAttempts = 20

// Put records r as the latest reading of its patient and device unless a newer one is
// already stored. The compare and the write run in a WATCH transaction, so a concurrent
// writer makes the attempt retry instead of overwriting a newer entry.
func (c *Cache) Put(ctx context.Context, r vitals.Reading) error {
	field := r.PatientKey()
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode reading: %w", err)
	}

	put := func(tx *redis.Tx) error {
		prev, err := get(ctx, tx, c.key, field)
		if err == nil && prev.CreatedAt.After(r.CreatedAt) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, c.key, field, data)
			return nil
		})
		return err
	}

	for range maxPutAttempts {
		err = c.client.Watch(ctx, put, c.key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	c.observe("put", err)
	if err != nil {
		return fmt.Errorf("failed to cache reading: %w", err)
	}
	return nil
}

func get(ctx context.Context, tx *redis.Tx, key, field string) (vitals.Reading, error) {
	var r vitals.Reading
	raw, err := tx.HGet(ctx, key, field).Bytes()
	if err != nil {
		return r, err
	}
	err = json.Unmarshal(raw, &r)
	return r, err
}

// All returns every cached reading, newest first. Entries that fail to decode are skipped.
func (c *Cache) All(ctx context.Context) ([]vitals.Reading, error) {
	entries, err := c.client.HGetAll(ctx, c.key).Result()
	c.observe("get_all", err)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache: %w", err)
	}

	out := make([]vitals.Reading, 0, len(entries))
	for field, raw := range entries {
		var r vitals.Reading
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			c.logger.Warn("skipping undecodable cache entry", "field", field, "error", err)
			continue
		}
		out = append(out, r)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Clear removes every cached reading.
func (c *Cache) Clear(ctx context.Context) error {
	err := c.client.Del(ctx, c.key).Err()
	c.observe("clear", err)
	return err
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

var _ Latest = (*Cache)(nil)
