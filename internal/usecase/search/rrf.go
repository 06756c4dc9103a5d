package search

import (
	"sort"

	"github.com/clinika/medrag/internal/domain"
)

// rrfK is the Reciprocal Rank Fusion constant (standard value from Cormack et al. 2009).
const rrfK = 60

// fuseRRF merges keyword and semantic results via weighted Reciprocal Rank
// Fusion, deduplicating by canonical identifier.
// score(d) = kwWeight/(k + keywordRank(d)) + semWeight/(k + semanticRank(d)),
// where a list contributes its term only when d appears in it. The fused hit
// keeps both source ranks for explainability; the first-seen hit (keyword
// list first) supplies text and metadata.
func fuseRRF(keyword, semantic []domain.SearchHit, kwWeight, semWeight float64, topK int) []domain.SearchHit {
	type scored struct {
		hit          domain.SearchHit
		score        float64
		keywordRank  *int
		semanticRank *int
	}

	merged := make(map[string]*scored)
	order := make([]string, 0, len(keyword)+len(semantic))

	for _, h := range keyword {
		id := h.CanonicalID()
		rank := h.Rank
		s, ok := merged[id]
		if !ok {
			s = &scored{hit: h}
			merged[id] = s
			order = append(order, id)
		}
		s.score += kwWeight / float64(rrfK+rank)
		s.keywordRank = &rank
	}

	for _, h := range semantic {
		id := h.CanonicalID()
		rank := h.Rank
		s, ok := merged[id]
		if !ok {
			s = &scored{hit: h}
			merged[id] = s
			order = append(order, id)
		}
		s.score += semWeight / float64(rrfK+rank)
		s.semanticRank = &rank
	}

	fused := make([]*scored, 0, len(order))
	for _, id := range order {
		fused = append(fused, merged[id])
	}

	// Stable sort keeps encounter order (keyword list first) for equal scores.
	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].score > fused[j].score
	})

	if len(fused) > topK {
		fused = fused[:topK]
	}

	results := make([]domain.SearchHit, 0, len(fused))
	for i, s := range fused {
		hit := s.hit
		hit.Score = s.score
		hit.Rank = i + 1
		hit.Source = domain.SourceHybrid
		hit.KeywordRank = s.keywordRank
		hit.SemanticRank = s.semanticRank
		results = append(results, hit)
	}
	return results
}
