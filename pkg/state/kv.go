// Package state provides a small persistent key-value store with expiring
// entries. The gateway keeps revoked token IDs here until they would have
// expired anyway.
package state

import (
	"context"
	"time"
)

// KV is the interface for key-value storage backends.
type KV interface {
	// Get retrieves a live value. Expired entries report exists=false.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores a value. A ttl of zero keeps the entry until deleted.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes a value.
	Delete(ctx context.Context, key string) error

	// Exists checks if a live key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases the backend and flushes pending writes.
	Close() error
}

// BackendType represents the storage backend type.
type BackendType string

const (
	BackendFile  BackendType = "file"
	BackendRedis BackendType = "redis"
)

// Config configures the state store.
type Config struct {
	Backend BackendType

	// File backend
	FilePath string

	// Redis backend
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}
