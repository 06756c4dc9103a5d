package embedder

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/clinika/medrag/internal/domain"
)

type countingProvider struct {
	mu    sync.Mutex
	calls int
	vec   []float32
	err   error
}

func (p *countingProvider) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.err != nil {
		return domain.EmbeddingResult{}, p.err
	}
	vec := p.vec
	if vec == nil {
		// Derive a distinguishable vector from the text length.
		vec = []float32{float32(len(text)), 1}
	}
	return domain.EmbeddingResult{Embedding: vec, PromptTokens: 2, TotalTokens: 2}, nil
}

func (p *countingProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestEmbed_CachesRepeatText(t *testing.T) {
	provider := &countingProvider{vec: []float32{0.1, 0.2}}
	c := NewCached(provider, 16, zap.NewNop())

	for i := 0; i < 3; i++ {
		res, err := c.Embed(context.Background(), "sốt cao")
		if err != nil {
			t.Fatalf("embed: %v", err)
		}
		if len(res.Embedding) != 2 {
			t.Fatalf("unexpected embedding: %v", res.Embedding)
		}
	}
	if provider.callCount() != 1 {
		t.Fatalf("expected 1 provider call for repeated text, got %d", provider.callCount())
	}
	if c.Size() != 1 {
		t.Fatalf("expected 1 cached entry, got %d", c.Size())
	}
}

func TestEmbed_EmptyTextIsNotAnError(t *testing.T) {
	provider := &countingProvider{}
	c := NewCached(provider, 16, zap.NewNop())

	res, err := c.Embed(context.Background(), "   \n\t")
	if err != nil {
		t.Fatalf("empty text should not error: %v", err)
	}
	if len(res.Embedding) != 0 {
		t.Fatalf("expected empty embedding, got %v", res.Embedding)
	}
	if provider.callCount() != 0 {
		t.Fatalf("empty text must not reach the provider, got %d calls", provider.callCount())
	}
}

func TestEmbed_ProviderErrorNotCached(t *testing.T) {
	provider := &countingProvider{err: domain.ErrEmbeddingFailed}
	c := NewCached(provider, 16, zap.NewNop())

	_, err := c.Embed(context.Background(), "sốt cao")
	if !errors.Is(err, domain.ErrEmbeddingFailed) {
		t.Fatalf("expected ErrEmbeddingFailed, got %v", err)
	}

	provider.err = nil
	if _, err := c.Embed(context.Background(), "sốt cao"); err != nil {
		t.Fatalf("retry after provider recovery: %v", err)
	}
	if provider.callCount() != 2 {
		t.Fatalf("failed call must not be cached, got %d calls", provider.callCount())
	}
}

func TestEmbed_ReturnedVectorIsACopy(t *testing.T) {
	provider := &countingProvider{vec: []float32{1, 2}}
	c := NewCached(provider, 16, zap.NewNop())

	first, err := c.Embed(context.Background(), "text")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	first.Embedding[0] = 99

	second, err := c.Embed(context.Background(), "text")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if second.Embedding[0] != 1 {
		t.Fatalf("mutating a returned vector must not corrupt the cache: %v", second.Embedding)
	}
}

func TestEmbed_FIFOEviction(t *testing.T) {
	provider := &countingProvider{}
	c := NewCached(provider, 2, zap.NewNop())

	texts := []string{"one", "two", "three"}
	for _, text := range texts {
		if _, err := c.Embed(context.Background(), text); err != nil {
			t.Fatalf("embed %q: %v", text, err)
		}
	}
	if c.Size() != 2 {
		t.Fatalf("cache should be capped at 2, got %d", c.Size())
	}

	// "one" was evicted; re-embedding costs another provider call.
	if _, err := c.Embed(context.Background(), "one"); err != nil {
		t.Fatalf("embed: %v", err)
	}
	if provider.callCount() != 4 {
		t.Fatalf("expected 4 provider calls after eviction, got %d", provider.callCount())
	}
}

func TestEmbedBatch_OrderPreserved(t *testing.T) {
	provider := &countingProvider{}
	c := NewCached(provider, 64, zap.NewNop())

	texts := []string{"a", "bb", "ccc", "dddd"}
	res, err := c.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(res.Embeddings) != len(texts) {
		t.Fatalf("expected %d embeddings, got %d", len(texts), len(res.Embeddings))
	}
	for i, text := range texts {
		if res.Embeddings[i][0] != float32(len(text)) {
			t.Errorf("embeddings[%d] does not correspond to input %q", i, text)
		}
	}
	if res.TotalTokens != 8 {
		t.Errorf("token aggregation = %d, want 8", res.TotalTokens)
	}
}

func TestEmbedBatch_LargeBatchSequential(t *testing.T) {
	provider := &countingProvider{}
	c := NewCached(provider, 64, zap.NewNop())

	texts := make([]string, maxConcurrentBatch+5)
	for i := range texts {
		texts[i] = "text-" + string(rune('a'+i))
	}

	res, err := c.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(res.Embeddings) != len(texts) {
		t.Fatalf("expected %d embeddings, got %d", len(texts), len(res.Embeddings))
	}
	if provider.callCount() != len(texts) {
		t.Fatalf("expected %d provider calls, got %d", len(texts), provider.callCount())
	}
}

func TestEmbedBatch_ErrorAborts(t *testing.T) {
	provider := &countingProvider{err: domain.ErrEmbeddingFailed}
	c := NewCached(provider, 64, zap.NewNop())

	_, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	if !errors.Is(err, domain.ErrEmbeddingFailed) {
		t.Fatalf("expected ErrEmbeddingFailed, got %v", err)
	}
}
