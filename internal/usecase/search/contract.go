package search

import (
	"context"
	"time"

	"github.com/clinika/medrag/internal/domain"
)

// KeywordSearcher answers exact/prefix code lookups.
type KeywordSearcher interface {
	SearchByCode(ctx context.Context, query string, exact bool, topK int) ([]domain.SearchHit, error)
}

// VectorSearcher answers nearest-neighbor queries over named collections.
type VectorSearcher interface {
	Query(
		ctx context.Context, collection string, vector []float32,
		topK int, filter map[string]string, minSimilarity float64,
	) ([]domain.SearchHit, error)
}

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// ResultCache is the TTL cache consumed by the engine. Implementations
// absorb backend failures; a disabled cache misses on every Get.
type ResultCache interface {
	GetJSON(ctx context.Context, key string, dest any) bool
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) bool
	MakeKey(prefix string, args []any, kwargs map[string]any) string
}
