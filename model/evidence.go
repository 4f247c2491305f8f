package model

import (
	"fmt"
	"time"
)

// Citation is a deduplicated reference shared by every chunk of one source
type Citation struct {
	Number   int      `json:"number"`
	SourceID string   `json:"source_id"`
	Modality Modality `json:"modality"`
	Title    string   `json:"title,omitempty"`
	URL      string   `json:"url,omitempty"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// Marker returns the inline tag, e.g. "[3]"
func (c Citation) Marker() string {
	return fmt.Sprintf("[%d]", c.Number)
}

// Reference formats the bibliography line of the citation
func (c Citation) Reference() string {
	label := c.Title
	if label == "" {
		label = c.SourceID
	}
	if c.URL != "" {
		return fmt.Sprintf("%s %s (%s) <%s>", c.Marker(), label, c.Modality, c.URL)
	}
	return fmt.Sprintf("%s %s (%s)", c.Marker(), label, c.Modality)
}

// PathNodeSummary is the serialized form of one node of a graph path
type PathNodeSummary struct {
	ID         string   `json:"id"`
	Labels     []string `json:"labels"`
	Properties Metadata `json:"properties,omitempty"`
}

// EvidenceEntry records one included result and its provenance
type EvidenceEntry struct {
	Rank          int               `json:"rank"`
	ResultID      string            `json:"result_id"`
	Citation      string            `json:"citation"`
	VectorScore   float64           `json:"vector_score"`
	KeywordScore  float64           `json:"keyword_score"`
	GraphScore    float64           `json:"graph_score"`
	CombinedScore float64           `json:"combined_score"`
	Sources       []Modality        `json:"sources"`
	Tokens        int               `json:"tokens"`
	GraphPath     []PathNodeSummary `json:"graph_path,omitempty"`
}

// ContextChunk is one piece of text included in the context
type ContextChunk struct {
	ResultID string `json:"result_id"`
	Text     string `json:"text"`
	Citation string `json:"citation"`
	Tokens   int    `json:"tokens"`
}

// EvidenceContext is the final, token-budgeted context of a query
type EvidenceContext struct {
	Context       string          `json:"context"`
	ContextChunks []ContextChunk  `json:"context_chunks"`
	EvidenceChain []EvidenceEntry `json:"evidence_chain"`
	Citations     []Citation      `json:"citations"`
	Bibliography  string          `json:"bibliography"`
	TotalTokens   int             `json:"total_tokens"`
	TotalChunks   int             `json:"total_chunks"`
}

// QueryState is the lifecycle state of one query
type QueryState string

const (
	QueryStateResolving QueryState = "resolving"
	QueryStateSearching QueryState = "searching"
	QueryStateFusing    QueryState = "fusing"
	QueryStateBuilding  QueryState = "building-evidence"
	QueryStateDone      QueryState = "done"
	QueryStateFailed    QueryState = "failed"
)

// SearchStats reports per-phase timings and per-modality counts
type SearchStats struct {
	VectorCount      int           `json:"vector_count"`
	KeywordCount     int           `json:"keyword_count"`
	GraphCount       int           `json:"graph_count"`
	FusedCount       int           `json:"fused_count"`
	GraphSearched    bool          `json:"graph_searched"`
	GraphSkipReason  string        `json:"graph_skip_reason,omitempty"`
	Reranked         bool          `json:"reranked"`
	SearchTime       time.Duration `json:"search_time"`
	FusionTime       time.Duration `json:"fusion_time"`
	ContextBuildTime time.Duration `json:"context_build_time"`
	TotalTime        time.Duration `json:"total_time"`
}

// CountFor returns the result count of a modality
func (s SearchStats) CountFor(m Modality) int {
	switch m {
	case ModalityVector:
		return s.VectorCount
	case ModalityKeyword:
		return s.KeywordCount
	case ModalityGraph:
		return s.GraphCount
	}
	return 0
}
