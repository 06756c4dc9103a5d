package domain

import "fmt"

// Document is one entry in a vector collection. Uniqueness is
// (Collection, ID); upserting the same pair overwrites in place.
type Document struct {
	Collection string            `json:"collection"`
	ID         string            `json:"id"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Vector     []float32         `json:"vector,omitempty"`
}

// Validate checks the minimal invariants for a storable document.
func (d *Document) Validate() error {
	if d.Collection == "" {
		return fmt.Errorf("%w: collection is required", ErrInvalidArgument)
	}
	if d.ID == "" {
		return fmt.Errorf("%w: document id is required", ErrInvalidArgument)
	}
	return nil
}
