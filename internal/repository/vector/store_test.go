package vector

import (
	"context"
	"errors"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/clinika/medrag/internal/domain"
)

func newTestStore(t *testing.T, dim int) *Store {
	t.Helper()
	return New(map[string]int{"icd10_codes": dim, "clinical_records": dim}, zap.NewNop())
}

func doc(id string, vec []float32, meta map[string]string) domain.Document {
	return domain.Document{ID: id, Text: "text " + id, Metadata: meta, Vector: vec}
}

func mustUpsert(t *testing.T, s *Store, collection string, docs ...domain.Document) {
	t.Helper()
	if err := s.Upsert(context.Background(), collection, docs); err != nil {
		t.Fatalf("upsert: %v", err)
	}
}

func TestQuery_CosineOrdering(t *testing.T) {
	s := newTestStore(t, 3)
	mustUpsert(t, s, "icd10_codes",
		doc("a", []float32{1, 0, 0}, nil),
		doc("b", []float32{0.9, 0.1, 0}, nil),
		doc("c", []float32{0, 1, 0}, nil),
	)

	hits, err := s.Query(context.Background(), "icd10_codes", []float32{1, 0, 0}, 10, nil, 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	if hits[0].ID != "a" || hits[1].ID != "b" || hits[2].ID != "c" {
		t.Errorf("unexpected order: %s, %s, %s", hits[0].ID, hits[1].ID, hits[2].ID)
	}
	if hits[0].Score != 1.0 {
		t.Errorf("identical vectors should score 1.0, got %v", hits[0].Score)
	}
	for i, h := range hits {
		if h.Rank != i+1 {
			t.Errorf("hits[%d].Rank = %d, want %d", i, h.Rank, i+1)
		}
		if h.Source != domain.SourceSemantic {
			t.Errorf("hits[%d].Source = %s, want semantic", i, h.Source)
		}
	}
}

func TestQuery_InclusiveSimilarityFloor(t *testing.T) {
	s := newTestStore(t, 4)
	// cos([1,0,0,0], [1,1,1,1]) = 1/2 exactly.
	mustUpsert(t, s, "icd10_codes",
		doc("boundary", []float32{1, 1, 1, 1}, nil),
		doc("below", []float32{0, 1, 1, 1}, nil),
	)

	hits, err := s.Query(context.Background(), "icd10_codes", []float32{1, 0, 0, 0}, 10, nil, 0.5)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected only the boundary doc, got %d hits", len(hits))
	}
	if hits[0].ID != "boundary" {
		t.Errorf("expected boundary doc, got %s", hits[0].ID)
	}
	if hits[0].Score != 0.5 {
		t.Errorf("boundary score = %v, want exactly 0.5", hits[0].Score)
	}
}

func TestQuery_FilterConjunction(t *testing.T) {
	s := newTestStore(t, 2)
	mustUpsert(t, s, "clinical_records",
		doc("r1", []float32{1, 0}, map[string]string{"patient_id": "BN-001", "type": "lab"}),
		doc("r2", []float32{1, 0}, map[string]string{"patient_id": "BN-001", "type": "note"}),
		doc("r3", []float32{1, 0}, map[string]string{"patient_id": "BN-002", "type": "lab"}),
	)

	hits, err := s.Query(context.Background(), "clinical_records", []float32{1, 0}, 10,
		map[string]string{"patient_id": "BN-001", "type": "lab"}, 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "r1" {
		t.Fatalf("expected only r1, got %+v", hits)
	}
}

func TestQuery_TieBreakByInsertionOrder(t *testing.T) {
	s := newTestStore(t, 2)
	mustUpsert(t, s, "icd10_codes",
		doc("first", []float32{1, 1}, nil),
		doc("second", []float32{2, 2}, nil), // same direction, same similarity
	)

	hits, err := s.Query(context.Background(), "icd10_codes", []float32{1, 1}, 10, nil, 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].ID != "first" || hits[1].ID != "second" {
		t.Errorf("ties must keep insertion order, got %s, %s", hits[0].ID, hits[1].ID)
	}
}

func TestUpsert_OverwriteKeepsCountAndOrder(t *testing.T) {
	s := newTestStore(t, 2)
	mustUpsert(t, s, "icd10_codes",
		doc("a", []float32{1, 0}, nil),
		doc("b", []float32{0, 1}, nil),
	)
	mustUpsert(t, s, "icd10_codes", doc("a", []float32{1, 1}, map[string]string{"v": "2"}))

	n, err := s.Count(context.Background(), "icd10_codes")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("overwrite must not grow the collection: got %d", n)
	}

	hits, err := s.Query(context.Background(), "icd10_codes", []float32{1, 1}, 10, nil, 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if hits[0].ID != "a" || hits[0].Metadata["v"] != "2" {
		t.Errorf("expected updated doc a first, got %+v", hits[0])
	}
}

func TestUpsert_UnknownCollection(t *testing.T) {
	s := newTestStore(t, 2)
	err := s.Upsert(context.Background(), "nope", []domain.Document{doc("a", []float32{1, 0}, nil)})
	if !errors.Is(err, domain.ErrUnknownCollection) {
		t.Fatalf("expected ErrUnknownCollection, got %v", err)
	}
}

func TestUpsert_DimensionMismatch(t *testing.T) {
	s := newTestStore(t, 3)
	err := s.Upsert(context.Background(), "icd10_codes", []domain.Document{doc("a", []float32{1, 0}, nil)})
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestQuery_DimensionMismatch(t *testing.T) {
	s := newTestStore(t, 3)
	_, err := s.Query(context.Background(), "icd10_codes", []float32{1, 0}, 10, nil, 0)
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestQuery_TopKRequired(t *testing.T) {
	s := newTestStore(t, 2)
	_, err := s.Query(context.Background(), "icd10_codes", []float32{1, 0}, 0, nil, 0)
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestDelete_ReportsExisting(t *testing.T) {
	s := newTestStore(t, 2)
	mustUpsert(t, s, "icd10_codes",
		doc("a", []float32{1, 0}, nil),
		doc("b", []float32{0, 1}, nil),
	)

	n, err := s.Delete(context.Background(), "icd10_codes", []string{"a", "missing"})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 deleted, got %d", n)
	}

	count, _ := s.Count(context.Background(), "icd10_codes")
	if count != 1 {
		t.Fatalf("expected 1 remaining, got %d", count)
	}
}

func TestCosineSimilarity_ZeroVector(t *testing.T) {
	if sim := cosineSimilarity([]float32{0, 0}, []float32{1, 0}); sim != 0 {
		t.Errorf("zero vector similarity = %v, want 0", sim)
	}
}

func TestCosineSimilarity_Orthogonal(t *testing.T) {
	sim := cosineSimilarity([]float32{1, 0}, []float32{0, 1})
	if math.Abs(sim) > 1e-12 {
		t.Errorf("orthogonal similarity = %v, want 0", sim)
	}
}

func TestCollections_Sorted(t *testing.T) {
	s := newTestStore(t, 2)
	got := s.Collections()
	if len(got) != 2 || got[0] != "clinical_records" || got[1] != "icd10_codes" {
		t.Fatalf("unexpected collections: %v", got)
	}
}

func TestQuery_CodeFromMetadata(t *testing.T) {
	s := newTestStore(t, 2)
	mustUpsert(t, s, "icd10_codes",
		doc("icd-1", []float32{1, 0}, map[string]string{"code": "J00"}),
	)

	hits, err := s.Query(context.Background(), "icd10_codes", []float32{1, 0}, 10, nil, 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if hits[0].Code != "J00" {
		t.Errorf("hit code = %q, want J00", hits[0].Code)
	}
	if hits[0].CanonicalID() != "J00" {
		t.Errorf("canonical id = %q, want J00", hits[0].CanonicalID())
	}
}
