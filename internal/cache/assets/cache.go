// Package assets caches read-mostly string assets (system prompts, tool
// descriptions) in bounded per-class LRU caches with hit/miss introspection.
package assets

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// Loader resolves an asset by identifier. ok=false means the identifier is
// unknown; the class falls back and logs a diagnostic instead of failing.
type Loader func(name string) (value string, ok bool)

// Fallback produces the value for unknown identifiers (empty string or a
// generic description).
type Fallback func(name string) string

// Stats is the per-class introspection snapshot.
type Stats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Size     int   `json:"size"`
	Capacity int   `json:"capacity"`
}

// Class is one bounded asset cache (e.g. "system_prompt", cap 32).
type Class struct {
	name     string
	capacity int
	load     Loader
	fallback Fallback
	logger   *zap.Logger

	mu     sync.Mutex
	cache  *lru.Cache[string, string]
	hits   int64
	misses int64
}

// NewClass creates an asset class with the given capacity.
func NewClass(name string, capacity int, load Loader, fallback Fallback, logger *zap.Logger) (*Class, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("asset class %q: capacity must be positive", name)
	}
	cache, err := lru.New[string, string](capacity)
	if err != nil {
		return nil, fmt.Errorf("asset class %q: %w", name, err)
	}
	if load == nil {
		load = func(string) (string, bool) { return "", false }
	}
	if fallback == nil {
		fallback = func(string) string { return "" }
	}
	return &Class{
		name:     name,
		capacity: capacity,
		load:     load,
		fallback: fallback,
		logger:   logger,
		cache:    cache,
	}, nil
}

// Get returns the cached asset, loading and caching it on first access.
// Unknown identifiers return the fallback value (cached too, matching the
// memoization semantics) and log a diagnostic.
func (c *Class) Get(name string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.cache.Get(name); ok {
		c.hits++
		return v
	}
	c.misses++

	v, ok := c.load(name)
	if !ok {
		c.logger.Warn("Unknown asset identifier",
			zap.String("class", c.name),
			zap.String("asset", name),
		)
		v = c.fallback(name)
	}
	c.cache.Add(name, v)
	return v
}

// Invalidate clears this class.
func (c *Class) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Purge()
	c.hits = 0
	c.misses = 0
}

// Stats reports hits, misses, current size, and capacity.
func (c *Class) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:     c.hits,
		Misses:   c.misses,
		Size:     c.cache.Len(),
		Capacity: c.capacity,
	}
}

// Registry groups asset classes for global invalidation and introspection.
type Registry struct {
	mu      sync.Mutex
	classes map[string]*Class
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{classes: make(map[string]*Class)}
}

// Add registers a class under its name. Re-registering a name replaces it.
func (r *Registry) Add(c *Class) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classes[c.name] = c
}

// Class looks up a registered class by name.
func (r *Registry) Class(name string) (*Class, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.classes[name]
	return c, ok
}

// InvalidateAll clears every registered class.
func (r *Registry) InvalidateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.classes {
		c.Invalidate()
	}
}

// Stats reports per-class statistics keyed by class name.
func (r *Registry) Stats() map[string]Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Stats, len(r.classes))
	for name, c := range r.classes {
		out[name] = c.Stats()
	}
	return out
}
