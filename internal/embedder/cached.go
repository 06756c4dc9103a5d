// Package embedder provides the process-local caching layer over an
// embedding provider.
package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clinika/medrag/internal/domain"
	"github.com/clinika/medrag/internal/metrics"
)

// maxConcurrentBatch bounds the parallel fan-out of a batch embed call.
// Larger batches fall back to sequential calls to respect provider rate limits.
const maxConcurrentBatch = 10

// Cached memoizes embeddings by a sha256 of the raw text bytes, so identical
// text is never re-embedded within a process. Eviction is FIFO once the cap
// is reached (the text universe of a session is small; the cap is a guard).
//
// Concurrent misses for the same uncached text may each hit the provider
// once; at-most-one compute is deliberately not guaranteed.
type Cached struct {
	inner  domain.Embedder
	logger *zap.Logger

	mu    sync.Mutex
	cache map[string][]float32
	order []string
	cap   int
}

// NewCached wraps a provider with the process-local cache.
// capacity <= 0 disables eviction entirely.
func NewCached(inner domain.Embedder, capacity int, logger *zap.Logger) *Cached {
	return &Cached{
		inner:  inner,
		logger: logger,
		cache:  make(map[string][]float32),
		cap:    capacity,
	}
}

// Embed returns a cached vector or calls the inner provider.
// Empty or whitespace-only text yields an empty vector and is logged as a
// caller error, not a failure.
func (c *Cached) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if strings.TrimSpace(text) == "" {
		c.logger.Warn("Empty text provided for embedding")
		return domain.EmbeddingResult{}, nil
	}

	key := cacheKey(text)

	if vec, ok := c.get(key); ok {
		metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
		return domain.EmbeddingResult{Embedding: vec}, nil
	}

	metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}

	c.put(key, result.Embedding)
	return result, nil
}

// EmbedBatch embeds texts preserving order, 1:1 with input. Batches up to
// maxConcurrentBatch fan out concurrently; larger batches run sequentially.
// The first provider error aborts the batch and propagates to the caller.
func (c *Cached) EmbedBatch(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	results := make([]domain.EmbeddingResult, len(texts))

	if len(texts) <= maxConcurrentBatch {
		g, gctx := errgroup.WithContext(ctx)
		for i, text := range texts {
			i, text := i, text
			g.Go(func() error {
				res, err := c.Embed(gctx, text)
				if err != nil {
					return fmt.Errorf("embed batch [%d]: %w", i, err)
				}
				results[i] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return domain.BatchEmbeddingResult{}, err
		}
	} else {
		for i, text := range texts {
			res, err := c.Embed(ctx, text)
			if err != nil {
				return domain.BatchEmbeddingResult{}, fmt.Errorf("embed batch [%d]: %w", i, err)
			}
			results[i] = res
		}
	}

	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	for i, res := range results {
		out.Embeddings[i] = res.Embedding
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}
	return out, nil
}

// Size reports the number of cached vectors.
func (c *Cached) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

func cacheKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

func (c *Cached) get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	vec, ok := c.cache[key]
	if !ok {
		return nil, false
	}
	// Copy out: cached vectors are immutable once produced.
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, true
}

func (c *Cached) put(key string, vec []float32) {
	stored := make([]float32, len(vec))
	copy(stored, vec)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.cache[key]; ok {
		return
	}
	if c.cap > 0 && len(c.cache) >= c.cap {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.cache, oldest)
	}
	c.cache[key] = stored
	c.order = append(c.order, key)
}
