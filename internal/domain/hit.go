package domain

// Source identifies which search path produced a hit.
type Source string

// Search hit sources.
const (
	SourceKeyword  Source = "keyword"
	SourceSemantic Source = "semantic"
	SourceHybrid   Source = "hybrid"
)

// SearchHit is a single ranked retrieval result. Ephemeral: produced per
// query, cached as JSON, never persisted as domain state.
type SearchHit struct {
	ID       string            `json:"id"`
	Code     string            `json:"code,omitempty"`
	Text     string            `json:"text,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Score    float64           `json:"score"`
	Rank     int               `json:"rank"`
	Source   Source            `json:"source"`

	// Per-source ranks survive fusion for explainability. Nil when the
	// corresponding search path had no hit for this identifier.
	KeywordRank  *int `json:"keyword_rank,omitempty"`
	SemanticRank *int `json:"semantic_rank,omitempty"`
}

// CanonicalID is the identifier fusion deduplicates by: the code string
// when present (ICD-10 hits), otherwise the document id.
func (h *SearchHit) CanonicalID() string {
	if h.Code != "" {
		return h.Code
	}
	return h.ID
}
