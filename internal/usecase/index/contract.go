package index

import (
	"context"

	"github.com/clinika/medrag/internal/domain"
)

// VectorWriter stores and removes documents in the vector index.
type VectorWriter interface {
	Upsert(ctx context.Context, collection string, docs []domain.Document) error
	Delete(ctx context.Context, collection string, ids []string) (int, error)
}

// Embedder vectorizes document text before indexing.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
