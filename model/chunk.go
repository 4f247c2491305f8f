package model

import (
	"time"

	"github.com/google/uuid"
)

// Chunk is a unit of the vector and keyword index
type Chunk struct {
	ID          int64     `json:"id"`
	RID         uuid.UUID `json:"rid"`
	DocumentID  int64     `json:"document_id"`
	DocumentRID uuid.UUID `json:"document_rid"`
	Namespace   string    `json:"namespace"`
	Content     string    `json:"content"`
	Embedding   []float32 `json:"embedding,omitempty"`
	ChunkIndex  int       `json:"chunk_index"`
	Metadata    Metadata  `json:"metadata,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	// Joined from the document
	DocumentTitle  string `json:"document_title,omitempty"`
	DocumentSource string `json:"document_source,omitempty"`
	DocumentURL    string `json:"document_url,omitempty"`
	// Results
	Similarity  float64 `json:"similarity,omitempty"`
	KeywordRank float64 `json:"keyword_rank,omitempty"`
}

// CitationMetadata merges the chunk metadata with the document fields used
// for citations. The document RID becomes the citation source.
func (c *Chunk) CitationMetadata() Metadata {
	m := c.Metadata.Clone()
	m["chunk_index"] = c.ChunkIndex
	if c.DocumentRID != uuid.Nil {
		m["source_id"] = c.DocumentRID.String()
	}
	if c.DocumentTitle != "" {
		m["title"] = c.DocumentTitle
	}
	if c.DocumentURL != "" {
		m["url"] = c.DocumentURL
	}
	if c.DocumentSource != "" {
		m["source"] = c.DocumentSource
	}
	return m
}
