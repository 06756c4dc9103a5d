// Package vector implements the in-process vector similarity store.
// It satisfies the store contract the retrieval engine depends on
// (upsert/delete/query under cosine similarity); a server-backed index can
// replace it behind the same interface.
package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/clinika/medrag/internal/domain"
)

// Store holds named collections of (id, text, vector, metadata) tuples.
// All vectors within one collection share the configured dimension.
// Safe for concurrent use; upserts are atomic per document.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
	logger      *zap.Logger
}

type collection struct {
	dim  int
	docs map[string]*record
	seq  int
}

type record struct {
	doc domain.Document
	seq int // insertion order, stable tie-break for equal similarity
}

// New creates a store with the given collections (name -> dimension).
// The collection set is fixed at construction; queries against unknown
// names fail with domain.ErrUnknownCollection.
func New(dims map[string]int, logger *zap.Logger) *Store {
	collections := make(map[string]*collection, len(dims))
	for name, dim := range dims {
		collections[name] = &collection{dim: dim, docs: make(map[string]*record)}
	}
	return &Store{collections: collections, logger: logger}
}

// Upsert inserts or overwrites documents in a collection. Overwriting keeps
// the original insertion position, so repeated upserts do not change counts
// or tie-break ordering.
func (s *Store) Upsert(ctx context.Context, collectionName string, docs []domain.Document) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("upsert %s: %w", collectionName, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[collectionName]
	if !ok {
		return fmt.Errorf("collection %q: %w", collectionName, domain.ErrUnknownCollection)
	}

	for _, doc := range docs {
		doc.Collection = collectionName
		if err := doc.Validate(); err != nil {
			return fmt.Errorf("upsert %s: %w", collectionName, err)
		}
		if len(doc.Vector) != col.dim {
			return fmt.Errorf("collection %q expects dimension %d, got %d: %w",
				collectionName, col.dim, len(doc.Vector), domain.ErrVectorDimMismatch)
		}

		stored := doc
		stored.Vector = append([]float32(nil), doc.Vector...)
		stored.Metadata = cloneMeta(doc.Metadata)

		if existing, ok := col.docs[doc.ID]; ok {
			existing.doc = stored
			continue
		}
		col.docs[doc.ID] = &record{doc: stored, seq: col.seq}
		col.seq++
	}

	s.logger.Debug("Upserted documents",
		zap.String("collection", collectionName),
		zap.Int("count", len(docs)),
	)
	return nil
}

// Delete removes documents by id and reports how many existed.
func (s *Store) Delete(ctx context.Context, collectionName string, ids []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("delete %s: %w", collectionName, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[collectionName]
	if !ok {
		return 0, fmt.Errorf("collection %q: %w", collectionName, domain.ErrUnknownCollection)
	}

	deleted := 0
	for _, id := range ids {
		if _, ok := col.docs[id]; ok {
			delete(col.docs, id)
			deleted++
		}
	}
	return deleted, nil
}

// Query returns up to topK hits ordered by descending cosine similarity.
// filter is an exact-match conjunction over metadata fields. minSimilarity
// is an inclusive floor: hits strictly below it are dropped. Equal
// similarities break ties by insertion order.
func (s *Store) Query(
	ctx context.Context, collectionName string, vector []float32,
	topK int, filter map[string]string, minSimilarity float64,
) ([]domain.SearchHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", collectionName, err)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive: %w", domain.ErrInvalidArgument)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.collections[collectionName]
	if !ok {
		return nil, fmt.Errorf("collection %q: %w", collectionName, domain.ErrUnknownCollection)
	}
	if len(vector) != col.dim {
		return nil, fmt.Errorf("collection %q expects dimension %d, got %d: %w",
			collectionName, col.dim, len(vector), domain.ErrVectorDimMismatch)
	}

	type scored struct {
		rec *record
		sim float64
	}

	candidates := make([]scored, 0, len(col.docs))
	for _, rec := range col.docs {
		if !matchesFilter(rec.doc.Metadata, filter) {
			continue
		}
		sim := cosineSimilarity(vector, rec.doc.Vector)
		if sim < minSimilarity {
			continue
		}
		candidates = append(candidates, scored{rec: rec, sim: sim})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].sim != candidates[j].sim {
			return candidates[i].sim > candidates[j].sim
		}
		return candidates[i].rec.seq < candidates[j].rec.seq
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	hits := make([]domain.SearchHit, 0, len(candidates))
	for i, c := range candidates {
		hits = append(hits, domain.SearchHit{
			ID:       c.rec.doc.ID,
			Code:     c.rec.doc.Metadata["code"],
			Text:     c.rec.doc.Text,
			Metadata: cloneMeta(c.rec.doc.Metadata),
			Score:    c.sim,
			Rank:     i + 1,
			Source:   domain.SourceSemantic,
		})
	}
	return hits, nil
}

// Count reports how many documents a collection holds.
func (s *Store) Count(ctx context.Context, collectionName string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("count %s: %w", collectionName, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.collections[collectionName]
	if !ok {
		return 0, fmt.Errorf("collection %q: %w", collectionName, domain.ErrUnknownCollection)
	}
	return len(col.docs), nil
}

// Collections lists the configured collection names, sorted.
func (s *Store) Collections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// cosineSimilarity is 1 - cosine distance, computed in float64.
// Zero vectors have undefined direction and score 0.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// matchesFilter applies AND semantics across all filter keys.
func matchesFilter(metadata, filter map[string]string) bool {
	for k, want := range filter {
		if metadata[k] != want {
			return false
		}
	}
	return true
}

func cloneMeta(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
