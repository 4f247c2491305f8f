package model

import (
	"time"

	"github.com/google/uuid"
)

// Edge is a typed relationship between two entities
type Edge struct {
	ID             uuid.UUID `json:"id"`
	SourceEntityID uuid.UUID `json:"source_entity_id"`
	TargetEntityID uuid.UUID `json:"target_entity_id"`
	EdgeType       string    `json:"edge_type"`
	Weight         float64   `json:"weight"`
	Bidirectional  bool      `json:"bidirectional"`
	Properties     Metadata  `json:"properties,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Other returns the entity on the far side of the edge when walking from
// id, and false if the edge cannot be walked from id.
func (e *Edge) Other(id uuid.UUID) (uuid.UUID, bool) {
	if e.SourceEntityID == id {
		return e.TargetEntityID, true
	}
	if e.Bidirectional && e.TargetEntityID == id {
		return e.SourceEntityID, true
	}
	return uuid.Nil, false
}
