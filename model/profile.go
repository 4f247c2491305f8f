package model

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/siherrmann/graphrag/helper"
)

// DefaultProfileSlug is the well-known slug of the store's default profile
const DefaultProfileSlug = "hybrid"

// FallbackProfileSlug names the built-in profile used when the store is unreachable
const FallbackProfileSlug = "semantic"

// ProfileSource records which precedence level produced a profile
type ProfileSource string

const (
	ProfileSourceSkillPolicy ProfileSource = "agent_skill_policy"
	ProfileSourceAgentPolicy ProfileSource = "agent_policy"
	ProfileSourceRequested   ProfileSource = "requested_profile"
	ProfileSourceDefault     ProfileSource = "default_profile"
	ProfileSourceBuiltin     ProfileSource = "builtin_default"
	ProfileSourceFallback    ProfileSource = "fallback"
)

// Weights are the per-modality fusion weights, each in [0,1]
type Weights struct {
	Vector  float64 `json:"vector"`
	Keyword float64 `json:"keyword"`
	Graph   float64 `json:"graph"`
}

// For returns the weight of a modality
func (w Weights) For(m Modality) float64 {
	switch m {
	case ModalityVector:
		return w.Vector
	case ModalityKeyword:
		return w.Keyword
	case ModalityGraph:
		return w.Graph
	}
	return 0
}

// Validate checks every weight is inside [0,1]
func (w Weights) Validate() error {
	for _, m := range Modalities {
		v := w.For(m)
		if v < 0 || v > 1 {
			return fmt.Errorf("%s weight must be in [0,1], got %v", m, v)
		}
	}
	return nil
}

// RetrievalProfile is the effective retrieval configuration of one query
type RetrievalProfile struct {
	ID                  uuid.UUID      `json:"id"`
	Slug                string         `json:"slug"`
	Name                string         `json:"name"`
	Weights             Weights        `json:"weights"`
	TopK                int            `json:"top_k"`
	SimilarityThreshold float64        `json:"similarity_threshold"`
	MinKeywordScore     float64        `json:"min_keyword_score"`
	RerankEnabled       bool           `json:"rerank_enabled"`
	RerankerModel       string         `json:"reranker_model,omitempty"`
	MaxContextTokens    int            `json:"max_context_tokens"`
	ChunkOverlap        int            `json:"chunk_overlap"`
	MetadataFilter      MetadataFilter `json:"metadata_filter,omitempty"`
	IsActive            bool           `json:"is_active"`
	Source              ProfileSource  `json:"source"`
}

// Validate checks the profile is usable for a query
func (p RetrievalProfile) Validate() error {
	if err := p.Weights.Validate(); err != nil {
		return helper.NewError("profile validation", err)
	}
	if p.TopK <= 0 {
		return helper.NewError("profile validation", fmt.Errorf("top_k must be positive, got %d", p.TopK))
	}
	if p.SimilarityThreshold < 0 || p.SimilarityThreshold > 1 {
		return helper.NewError("profile validation", fmt.Errorf("similarity_threshold must be in [0,1], got %v", p.SimilarityThreshold))
	}
	if p.MaxContextTokens < 0 {
		return helper.NewError("profile validation", fmt.Errorf("max_context_tokens must not be negative"))
	}
	if p.ChunkOverlap < 0 {
		return helper.NewError("profile validation", fmt.Errorf("chunk_overlap must not be negative"))
	}
	return nil
}

// DefaultHybridProfile mirrors the store's default "hybrid" profile.
// It is used when the store is reachable but holds no default record.
func DefaultHybridProfile() RetrievalProfile {
	return RetrievalProfile{
		Slug:                DefaultProfileSlug,
		Name:                "Hybrid",
		Weights:             Weights{Vector: 0.6, Keyword: 0.4, Graph: 0},
		TopK:                10,
		SimilarityThreshold: 0.7,
		MaxContextTokens:    4000,
		ChunkOverlap:        50,
		IsActive:            true,
		Source:              ProfileSourceBuiltin,
	}
}

// FallbackProfile is the hard-coded pure vector profile used only when the
// configuration store cannot be reached.
func FallbackProfile() RetrievalProfile {
	return RetrievalProfile{
		Slug:                FallbackProfileSlug,
		Name:                "Semantic",
		Weights:             Weights{Vector: 1.0},
		TopK:                10,
		SimilarityThreshold: 0.7,
		MaxContextTokens:    4000,
		ChunkOverlap:        50,
		IsActive:            true,
		Source:              ProfileSourceFallback,
	}
}

// AgentPolicy is a per-agent (optionally per-skill) override record.
// Nil fields leave the base profile untouched.
type AgentPolicy struct {
	ID                  uuid.UUID      `json:"id"`
	AgentID             string         `json:"agent_id"`
	SkillID             *string        `json:"skill_id,omitempty"`
	ProfileID           *uuid.UUID     `json:"profile_id,omitempty"`
	TopK                *int           `json:"agent_specific_top_k,omitempty"`
	SimilarityThreshold *float64       `json:"agent_specific_threshold,omitempty"`
	VectorWeight        *float64       `json:"vector_weight,omitempty"`
	KeywordWeight       *float64       `json:"keyword_weight,omitempty"`
	GraphWeight         *float64       `json:"graph_weight,omitempty"`
	RerankEnabled       *bool          `json:"rerank_enabled,omitempty"`
	MaxContextTokens    *int           `json:"max_context_tokens,omitempty"`
	MetadataFilter      MetadataFilter `json:"metadata_filter,omitempty"`
	IsActive            bool           `json:"is_active"`
}

// Apply overlays the policy onto base field by field
func (p *AgentPolicy) Apply(base RetrievalProfile) RetrievalProfile {
	if p == nil {
		return base
	}

	out := base
	if p.TopK != nil {
		out.TopK = *p.TopK
	}
	if p.SimilarityThreshold != nil {
		out.SimilarityThreshold = *p.SimilarityThreshold
	}
	if p.VectorWeight != nil {
		out.Weights.Vector = *p.VectorWeight
	}
	if p.KeywordWeight != nil {
		out.Weights.Keyword = *p.KeywordWeight
	}
	if p.GraphWeight != nil {
		out.Weights.Graph = *p.GraphWeight
	}
	if p.RerankEnabled != nil {
		out.RerankEnabled = *p.RerankEnabled
	}
	if p.MaxContextTokens != nil {
		out.MaxContextTokens = *p.MaxContextTokens
	}
	if len(p.MetadataFilter) > 0 {
		out.MetadataFilter = base.MetadataFilter.And(p.MetadataFilter)
	}
	return out
}
