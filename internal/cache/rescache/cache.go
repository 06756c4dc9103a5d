// Package rescache is the external TTL cache tier for computed retrieval
// results. It degrades to cache-miss behavior whenever the backend is
// unreachable: retrieval correctness never depends on this cache.
package rescache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/clinika/medrag/internal/db"
	"github.com/clinika/medrag/internal/metrics"
)

// TTL presets per data class.
const (
	TTLICD10           = 24 * time.Hour
	TTLDrugInteraction = time.Hour
	TTLSearch          = 30 * time.Minute
	TTLDefault         = time.Hour
)

// store is the consumer interface for the cache backend (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Connector establishes the backend connection on first use.
// It must verify connectivity (ping) before returning the store.
type Connector func(ctx context.Context) (store, error)

// NewStoreConnector adapts a db.Store factory into a Connector.
func NewStoreConnector(dial func(ctx context.Context) (db.Store, error)) Connector {
	return func(ctx context.Context) (store, error) {
		s, err := dial(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Cache is the TTL-keyed result cache. The connection is established
// lazily on first use; a failed attempt is memoized for the remainder of
// the process and every subsequent operation becomes a silent no-op
// (Get always misses, Set always reports failure).
type Cache struct {
	namespace string
	connect   Connector
	logger    *zap.Logger

	once sync.Once
	kv   store // nil after a failed connect: cache disabled
}

// New creates a cache with a lazy backend connection.
func New(namespace string, connect Connector, logger *zap.Logger) *Cache {
	return &Cache{namespace: namespace, connect: connect, logger: logger}
}

// Disabled returns a cache pinned into no-op mode. It is the documented
// fallback object for deployments without a cache backend.
func Disabled(logger *zap.Logger) *Cache {
	c := &Cache{namespace: "disabled", logger: logger}
	c.once.Do(func() {})
	return c
}

// ensure performs the one-time connection attempt.
func (c *Cache) ensure(ctx context.Context) store {
	c.once.Do(func() {
		if c.connect == nil {
			return
		}
		kv, err := c.connect(ctx)
		if err != nil {
			c.logger.Warn("Cache backend not available, caching disabled", zap.Error(err))
			return
		}
		c.kv = kv
		c.logger.Info("Cache backend connected", zap.String("namespace", c.namespace))
	})
	return c.kv
}

// Connected reports whether the backend is usable. Triggers the lazy
// connection attempt.
func (c *Cache) Connected(ctx context.Context) bool {
	return c.ensure(ctx) != nil
}

// GetJSON retrieves and decodes a cached value. Returns false on miss,
// decode failure, backend error, or disabled cache.
func (c *Cache) GetJSON(ctx context.Context, key string, dest any) bool {
	kv := c.ensure(ctx)
	if kv == nil {
		metrics.ResultCacheTotal.WithLabelValues("get", "disabled").Inc()
		return false
	}

	data, err := kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Cache get error", zap.String("key", key), zap.Error(err))
			metrics.ResultCacheTotal.WithLabelValues("get", "error").Inc()
		} else {
			metrics.ResultCacheTotal.WithLabelValues("get", "miss").Inc()
		}
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Warn("Cache decode error", zap.String("key", key), zap.Error(err))
		metrics.ResultCacheTotal.WithLabelValues("get", "error").Inc()
		return false
	}

	metrics.ResultCacheTotal.WithLabelValues("get", "hit").Inc()
	return true
}

// SetJSON encodes and stores a value with the given TTL. Reports whether the
// value was stored; failures are absorbed.
func (c *Cache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) bool {
	kv := c.ensure(ctx)
	if kv == nil {
		metrics.ResultCacheTotal.WithLabelValues("set", "disabled").Inc()
		return false
	}

	if ttl <= 0 {
		ttl = TTLDefault
	}

	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("Cache encode error", zap.String("key", key), zap.Error(err))
		metrics.ResultCacheTotal.WithLabelValues("set", "error").Inc()
		return false
	}

	if err := kv.SetWithTTL(ctx, key, data, ttl); err != nil {
		c.logger.Warn("Cache set error", zap.String("key", key), zap.Error(err))
		metrics.ResultCacheTotal.WithLabelValues("set", "error").Inc()
		return false
	}

	metrics.ResultCacheTotal.WithLabelValues("set", "stored").Inc()
	return true
}

// GetOrCompute returns the cached value for key, or computes, stores, and
// returns it. compute runs synchronously relative to the caller; its error
// propagates uncached. Concurrent misses for the same key may both compute:
// coalescing is deliberately not guaranteed.
func GetOrCompute[T any](
	ctx context.Context, c *Cache, key string, ttl time.Duration,
	compute func(ctx context.Context) (T, error),
) (T, error) {
	var cached T
	if c.GetJSON(ctx, key, &cached) {
		return cached, nil
	}

	value, err := compute(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	c.SetJSON(ctx, key, value, ttl)
	return value, nil
}

// InvalidatePrefix deletes every key under <namespace>:<prefix>: and
// reports how many were removed.
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix string) int {
	kv := c.ensure(ctx)
	if kv == nil {
		return 0
	}

	pattern := fmt.Sprintf("%s:%s:*", c.namespace, prefix)
	keys, err := kv.Scan(ctx, pattern)
	if err != nil {
		c.logger.Warn("Cache invalidate scan error", zap.String("pattern", pattern), zap.Error(err))
		return 0
	}

	deleted := 0
	for _, key := range keys {
		if err := kv.Del(ctx, key); err != nil {
			c.logger.Warn("Cache invalidate delete error", zap.String("key", key), zap.Error(err))
			continue
		}
		deleted++
	}
	return deleted
}
