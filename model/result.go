package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Modality is one retrieval method
type Modality string

const (
	ModalityVector  Modality = "vector"
	ModalityKeyword Modality = "keyword"
	ModalityGraph   Modality = "graph"
)

// Modalities lists every modality in fusion order
var Modalities = []Modality{ModalityVector, ModalityKeyword, ModalityGraph}

// ModalityResult is a candidate evidence unit produced by one modality.
// Score lives in the modality's own scoring space. Path is only set for
// graph results.
type ModalityResult struct {
	ID       string     `json:"id"`
	Modality Modality   `json:"modality"`
	Score    float64    `json:"score"`
	Text     string     `json:"text"`
	Metadata Metadata   `json:"metadata,omitempty"`
	Path     *GraphPath `json:"path,omitempty"`
}

// NewVectorResult builds a vector modality result from a chunk
func NewVectorResult(chunk *Chunk) ModalityResult {
	return ModalityResult{
		ID:       chunk.RID.String(),
		Modality: ModalityVector,
		Score:    chunk.Similarity,
		Text:     chunk.Content,
		Metadata: chunk.CitationMetadata(),
	}
}

// NewKeywordResult builds a keyword modality result from a chunk
func NewKeywordResult(chunk *Chunk) ModalityResult {
	return ModalityResult{
		ID:       chunk.RID.String(),
		Modality: ModalityKeyword,
		Score:    chunk.KeywordRank,
		Text:     chunk.Content,
		Metadata: chunk.CitationMetadata(),
	}
}

// NewGraphResult builds a graph modality result from a traversed path
func NewGraphResult(path *GraphPath, score float64) ModalityResult {
	return ModalityResult{
		ID:       path.Key(),
		Modality: ModalityGraph,
		Score:    score,
		Text:     path.Describe(),
		Metadata: Metadata{
			"title":       path.Title(),
			"path_length": path.Length(),
		},
		Path: path,
	}
}

// GraphPath is an ordered walk through the graph store.
// Relationships[i] connects Nodes[i] and Nodes[i+1].
type GraphPath struct {
	Nodes         []*Entity `json:"nodes"`
	Relationships []*Edge   `json:"relationships"`
}

// Length is the number of hops
func (p *GraphPath) Length() int {
	return len(p.Relationships)
}

// Signature is the ordered node identifier tuple
func (p *GraphPath) Signature() string {
	ids := make([]string, len(p.Nodes))
	for i, n := range p.Nodes {
		ids[i] = n.ID.String()
	}
	return strings.Join(ids, "|")
}

// Key is the fusion key of the path, a hash of its signature
func (p *GraphPath) Key() string {
	sum := sha256.Sum256([]byte(p.Signature()))
	return "path:" + hex.EncodeToString(sum[:8])
}

// Describe renders the path as node names joined by relationship types,
// e.g. "Aspirin -[TREATS]-> Headache".
func (p *GraphPath) Describe() string {
	var b strings.Builder
	for i, n := range p.Nodes {
		if i > 0 {
			relType := "RELATED_TO"
			if i-1 < len(p.Relationships) && p.Relationships[i-1] != nil {
				relType = p.Relationships[i-1].EdgeType
			}
			b.WriteString(" -[")
			b.WriteString(relType)
			b.WriteString("]-> ")
		}
		b.WriteString(n.DisplayName())
	}
	return b.String()
}

// Title is a short label for citations
func (p *GraphPath) Title() string {
	if len(p.Nodes) == 0 {
		return ""
	}
	first := p.Nodes[0].DisplayName()
	last := p.Nodes[len(p.Nodes)-1].DisplayName()
	if len(p.Nodes) == 1 {
		return first
	}
	return first + " → " + last
}

// FusedResult is one entry of the unified ranking
type FusedResult struct {
	ID           string     `json:"id"`
	Text         string     `json:"text"`
	VectorScore  float64    `json:"vector_score"`
	KeywordScore float64    `json:"keyword_score"`
	GraphScore   float64    `json:"graph_score"`
	Score        float64    `json:"combined_score"`
	Sources      []Modality `json:"sources"`
	Metadata     Metadata   `json:"metadata,omitempty"`
	Path         *GraphPath `json:"path,omitempty"`
	Rank         int        `json:"rank"`
}

// RawScore returns the modality-native score, zero when m did not contribute
func (r *FusedResult) RawScore(m Modality) float64 {
	switch m {
	case ModalityVector:
		return r.VectorScore
	case ModalityKeyword:
		return r.KeywordScore
	case ModalityGraph:
		return r.GraphScore
	}
	return 0
}

// HasSource reports whether modality m contributed to the result
func (r *FusedResult) HasSource(m Modality) bool {
	for _, s := range r.Sources {
		if s == m {
			return true
		}
	}
	return false
}

// PrimarySource is the first contributing modality in fusion order
func (r *FusedResult) PrimarySource() Modality {
	if len(r.Sources) == 0 {
		return ""
	}
	return r.Sources[0]
}
