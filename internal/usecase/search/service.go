package search

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/clinika/medrag/internal/cache/rescache"
	"github.com/clinika/medrag/internal/domain"
	"github.com/clinika/medrag/internal/metrics"
)

// Default fusion weights and fan-out.
const (
	DefaultTopK           = 10
	DefaultKeywordWeight  = 0.4
	DefaultSemanticWeight = 0.6

	// codeQueryMaxLen is the heuristic cutoff: a trimmed query no longer
	// than this that starts with a letter is treated as a structured code.
	codeQueryMaxLen = 6
)

// Service is the hybrid retrieval engine: keyword and semantic sub-searches
// fused via RRF, shielded by the TTL result cache.
type Service struct {
	keyword KeywordSearcher
	vectors VectorSearcher
	embed   Embedder
	cache   ResultCache // nil disables result caching
	logger  *zap.Logger

	codesCollection   string
	recordsCollection string
	minSimilarity     float64
}

// New creates the search service. Caching is off until WithCache.
func New(keyword KeywordSearcher, vectors VectorSearcher, embed Embedder, logger *zap.Logger) *Service {
	return &Service{
		keyword:           keyword,
		vectors:           vectors,
		embed:             embed,
		logger:            logger,
		codesCollection:   "icd10_codes",
		recordsCollection: "clinical_records",
		minSimilarity:     0.5,
	}
}

// WithCache attaches the TTL result cache.
func (s *Service) WithCache(cache ResultCache) *Service {
	s.cache = cache
	return s
}

// WithMinSimilarity overrides the semantic similarity floor.
func (s *Service) WithMinSimilarity(min float64) *Service {
	s.minSimilarity = min
	return s
}

// WithCollections overrides the ICD-10 and clinical-record collection names.
func (s *Service) WithCollections(codes, records string) *Service {
	s.codesCollection = codes
	s.recordsCollection = records
	return s
}

// HybridOptions tunes a hybrid search call.
type HybridOptions struct {
	TopK           int
	KeywordWeight  float64
	SemanticWeight float64
	AutoDetectCode bool
}

// DefaultHybridOptions returns the standard options: topK 10, weights
// 0.4/0.6, code auto-detection on.
func DefaultHybridOptions() HybridOptions {
	return HybridOptions{
		TopK:           DefaultTopK,
		KeywordWeight:  DefaultKeywordWeight,
		SemanticWeight: DefaultSemanticWeight,
		AutoDetectCode: true,
	}
}

func (o *HybridOptions) normalize() {
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.KeywordWeight <= 0 && o.SemanticWeight <= 0 {
		o.KeywordWeight = DefaultKeywordWeight
		o.SemanticWeight = DefaultSemanticWeight
	}
}

type subResult struct {
	hits []domain.SearchHit
	err  error
}

// HybridSearch runs keyword and semantic sub-searches concurrently and
// fuses them via weighted RRF. Failures in one path are absorbed so the
// other still answers; failures in both degrade to an empty result. When
// the caller's deadline expires, the best-effort fusion of whatever
// completed is returned, or domain.ErrTimeout if nothing did.
func (s *Service) HybridSearch(ctx context.Context, query string, opts HybridOptions) ([]domain.SearchHit, error) {
	opts.normalize()
	query = strings.TrimSpace(query)

	var cacheKey string
	if s.cache != nil {
		cacheKey = s.cache.MakeKey("hybrid_search", []any{query}, map[string]any{
			"top_k":           opts.TopK,
			"keyword_weight":  opts.KeywordWeight,
			"semantic_weight": opts.SemanticWeight,
			"auto_detect":     opts.AutoDetectCode,
		})
		var cached []domain.SearchHit
		if s.cache.GetJSON(ctx, cacheKey, &cached) {
			metrics.SearchRequestsTotal.WithLabelValues("hybrid", "cached").Inc()
			return cached, nil
		}
	}

	isCode := opts.AutoDetectCode && isCodeLike(query)

	// Code-like queries prioritize keyword search but still attempt
	// semantic search for completeness. Free-text queries go semantic and
	// only try keyword matching when a digit hints at an embedded code.
	runKeyword := isCode || containsDigit(query)

	kwCh := make(chan subResult, 1)
	semCh := make(chan subResult, 1)

	if runKeyword {
		go func() {
			hits, err := s.keyword.SearchByCode(ctx, query, false, opts.TopK)
			kwCh <- subResult{hits: hits, err: err}
		}()
	}

	go func() {
		hits, err := s.searchSemanticText(ctx, s.codesCollection, query, opts.TopK, nil, s.minSimilarity)
		semCh <- subResult{hits: hits, err: err}
	}()

	var keywordHits, semanticHits []domain.SearchHit
	kwDone, semDone := !runKeyword, false
	completed := 0
	deadlineHit := false

	for !(kwDone && semDone) && !deadlineHit {
		select {
		case r := <-kwCh:
			kwDone = true
			if r.err != nil {
				s.logger.Warn("Keyword search failed", zap.String("query", query), zap.Error(r.err))
			} else {
				keywordHits = r.hits
				completed++
			}
		case r := <-semCh:
			semDone = true
			if r.err != nil {
				s.logger.Warn("Semantic search failed", zap.String("query", query), zap.Error(r.err))
			} else {
				semanticHits = r.hits
				completed++
			}
		case <-ctx.Done():
			deadlineHit = true
		}
	}

	if completed == 0 && ctx.Err() != nil {
		metrics.SearchRequestsTotal.WithLabelValues("hybrid", "timeout").Inc()
		return nil, fmt.Errorf("hybrid search %q: %w", query, domain.ErrTimeout)
	}

	fused := fuseRRF(keywordHits, semanticHits, opts.KeywordWeight, opts.SemanticWeight, opts.TopK)

	s.logger.Debug("Hybrid search fused",
		zap.String("query", query),
		zap.Bool("code_like", isCode),
		zap.Int("keyword_hits", len(keywordHits)),
		zap.Int("semantic_hits", len(semanticHits)),
		zap.Int("fused", len(fused)),
	)

	if deadlineHit || ctx.Err() != nil {
		// Partial answer: usable, but not worth caching.
		metrics.SearchRequestsTotal.WithLabelValues("hybrid", "partial").Inc()
		return fused, nil
	}

	metrics.SearchRequestsTotal.WithLabelValues("hybrid", "ok").Inc()
	if s.cache != nil {
		s.cache.SetJSON(ctx, cacheKey, fused, rescache.TTLSearch)
	}
	return fused, nil
}

// SearchByCode is the keyword path: exact or prefix ICD-10 code matching.
func (s *Service) SearchByCode(ctx context.Context, query string, exact bool, topK int) ([]domain.SearchHit, error) {
	hits, err := s.keyword.SearchByCode(ctx, query, exact, topK)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("keyword", "error").Inc()
		return nil, fmt.Errorf("search by code %q: %w", query, err)
	}
	metrics.SearchRequestsTotal.WithLabelValues("keyword", "ok").Inc()
	return hits, nil
}

// SemanticSearch runs a nearest-neighbor query with an already-computed
// vector. Unknown collections fail fast; they are never silently empty.
func (s *Service) SemanticSearch(
	ctx context.Context, collection string, vector []float32,
	topK int, filter map[string]string, minSimilarity float64,
) ([]domain.SearchHit, error) {
	hits, err := s.vectors.Query(ctx, collection, vector, topK, filter, minSimilarity)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("semantic", "error").Inc()
		return nil, fmt.Errorf("semantic search %s: %w", collection, err)
	}
	metrics.SearchRequestsTotal.WithLabelValues("semantic", "ok").Inc()
	return hits, nil
}

// SearchBySymptoms embeds a free-text symptom description and searches the
// ICD-10 collection by similarity.
func (s *Service) SearchBySymptoms(ctx context.Context, query string, topK int) ([]domain.SearchHit, error) {
	hits, err := s.searchSemanticText(ctx, s.codesCollection, query, topK, nil, s.minSimilarity)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("semantic", "error").Inc()
		return nil, fmt.Errorf("search by symptoms: %w", err)
	}
	metrics.SearchRequestsTotal.WithLabelValues("semantic", "ok").Inc()
	return hits, nil
}

// PatientHistory retrieves the clinical records most relevant to query for
// one patient. Over-fetches (topK*2) before truncation so the per-patient
// filter does not starve the result. Sub-search failures degrade to an
// empty history; the LLM context builder treats that as "no information".
func (s *Service) PatientHistory(ctx context.Context, patientID, query string, topK int) ([]domain.SearchHit, error) {
	if patientID == "" {
		return nil, fmt.Errorf("patient id is required: %w", domain.ErrInvalidArgument)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	// No similarity floor here: a weak match to the patient's own record
	// still beats returning nothing.
	filter := map[string]string{"patient_id": patientID}
	hits, err := s.searchSemanticText(ctx, s.recordsCollection, query, topK*2, filter, 0)
	if err != nil {
		s.logger.Warn("Patient history search failed",
			zap.String("patient_id", patientID), zap.Error(err))
		return nil, nil
	}

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// searchSemanticText embeds query text and queries the collection. An empty
// embedding (empty query text) yields no results rather than an error.
func (s *Service) searchSemanticText(
	ctx context.Context, collection, query string, topK int,
	filter map[string]string, minSimilarity float64,
) ([]domain.SearchHit, error) {
	embResult, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}
	if len(embResult.Embedding) == 0 {
		return nil, nil
	}

	hits, err := s.vectors.Query(ctx, collection, embResult.Embedding, topK, filter, minSimilarity)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	return hits, nil
}

// isCodeLike reports whether a trimmed query looks like a structured code:
// at most 6 characters with an alphabetic first character.
func isCodeLike(query string) bool {
	runes := []rune(query)
	if len(runes) == 0 || len(runes) > codeQueryMaxLen {
		return false
	}
	return unicode.IsLetter(runes[0])
}

func containsDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
