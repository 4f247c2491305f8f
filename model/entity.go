package model

import (
	"time"

	"github.com/google/uuid"
)

// Entity is a node of the knowledge graph (drug, disease, gene, ...)
type Entity struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Labels     []string  `json:"labels"`
	Properties Metadata  `json:"properties,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// DisplayName prefers the name, then a title property, then the ID
func (e *Entity) DisplayName() string {
	if e.Name != "" {
		return e.Name
	}
	if t := e.Properties.String("title"); t != "" {
		return t
	}
	return e.ID.String()
}

// HasLabel reports whether the entity carries label
func (e *Entity) HasLabel(label string) bool {
	for _, l := range e.Labels {
		if l == label {
			return true
		}
	}
	return false
}
