// Package cache stores fetched feed payloads between runs.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("cache: key not found")

// Cache defines the cache operations used by the feed fetcher.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key. A zero ttl keeps the entry until it is
	// overwritten or deleted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	GetMetrics() Metrics

	Close() error
}

// Metrics tracks cache usage.
type Metrics struct {
	Hits    uint64
	Misses  uint64
	Sets    uint64
	Deletes uint64
}

// Config holds configuration for cache creation.
type Config struct {
	// Enabled determines if caching is enabled.
	Enabled bool
	// Path is the badger directory. Ignored when InMemory is set.
	Path     string
	InMemory bool

	GCInterval     time.Duration
	GCDiscardRatio float64
}

// DefaultConfig returns the on-disk cache configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:        true,
		Path:           "./var/feed-cache",
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// New opens a cache for config. It returns nil, nil when caching is
// disabled; callers treat a nil Cache as "no cache".
func New(config *Config) (Cache, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if !config.Enabled {
		return nil, nil
	}
	if config.Path == "" && !config.InMemory {
		return nil, fmt.Errorf("cache path is required when cache is enabled")
	}
	return NewBadgerCache(&BadgerConfig{
		Path:           config.Path,
		InMemory:       config.InMemory,
		GCInterval:     config.GCInterval,
		GCDiscardRatio: config.GCDiscardRatio,
	})
}

// KeyGenerator builds namespaced cache keys.
type KeyGenerator struct {
	Prefix string
}

// NewKeyGenerator creates a key generator with the given prefix.
func NewKeyGenerator(prefix string) *KeyGenerator {
	if prefix == "" {
		prefix = "agenda"
	}
	return &KeyGenerator{Prefix: prefix}
}

// FeedBodyKey is the key of the last payload fetched from url.
func (kg *KeyGenerator) FeedBodyKey(url string) string {
	return fmt.Sprintf("%s:feed:%s:body", kg.Prefix, kg.hash(url))
}

// FeedMetaKey is the key of the HTTP validators stored for url.
func (kg *KeyGenerator) FeedMetaKey(url string) string {
	return fmt.Sprintf("%s:feed:%s:meta", kg.Prefix, kg.hash(url))
}

func (kg *KeyGenerator) hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}
