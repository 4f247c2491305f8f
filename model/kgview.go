package model

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/siherrmann/graphrag/helper"
)

const (
	DefaultMaxHops    = 2
	DefaultGraphLimit = 50
)

// TraversalStrategy selects the traversal order of the graph adapter
type TraversalStrategy string

const (
	TraversalBFS TraversalStrategy = "bfs"
	TraversalDFS TraversalStrategy = "dfs"
)

// NodeType is a catalog entry for a graph node label
type NodeType struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// EdgeTypeDefinition is a catalog entry for a relationship type
type EdgeTypeDefinition struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// KGViewRecord is the stored form of an agent's graph view, referencing
// catalog entries by ID
type KGViewRecord struct {
	ID                 uuid.UUID         `json:"id"`
	AgentID            string            `json:"agent_id"`
	SkillID            *string           `json:"skill_id,omitempty"`
	AllowedNodeTypeIDs []uuid.UUID       `json:"allowed_node_type_ids"`
	AllowedEdgeTypeIDs []uuid.UUID       `json:"allowed_edge_type_ids"`
	MaxHops            int               `json:"max_hops"`
	ResultLimit        int               `json:"result_limit"`
	Strategy           TraversalStrategy `json:"traversal_strategy"`
	IsActive           bool              `json:"is_active"`
}

// KnowledgeGraphView is the resolved traversal constraint of one agent.
// Empty allow-lists mean unrestricted.
type KnowledgeGraphView struct {
	AgentID          string            `json:"agent_id"`
	AllowedLabels    []string          `json:"allowed_labels"`
	AllowedEdgeTypes []string          `json:"allowed_edge_types"`
	MaxHops          int               `json:"max_hops"`
	Limit            int               `json:"limit"`
	Strategy         TraversalStrategy `json:"strategy"`
}

// Validate checks hop count, limit and strategy
func (v KnowledgeGraphView) Validate() error {
	if v.MaxHops <= 0 {
		return helper.NewError("kg view validation", fmt.Errorf("max_hops must be positive, got %d", v.MaxHops))
	}
	if v.Limit <= 0 {
		return helper.NewError("kg view validation", fmt.Errorf("limit must be positive, got %d", v.Limit))
	}
	if v.Strategy != TraversalBFS && v.Strategy != TraversalDFS {
		return helper.NewError("kg view validation", fmt.Errorf("unknown traversal strategy %q", v.Strategy))
	}
	return nil
}

// GraphFilters are the concrete traversal parameters handed to the graph adapter
type GraphFilters struct {
	AllowedLabels    []string          `json:"allowed_labels"`
	AllowedEdgeTypes []string          `json:"allowed_edge_types"`
	MaxHops          int               `json:"max_hops"`
	Limit            int               `json:"limit"`
	Strategy         TraversalStrategy `json:"strategy"`
}

// DefaultGraphFilters is the unrestricted traversal
func DefaultGraphFilters() GraphFilters {
	return GraphFilters{
		AllowedLabels:    []string{},
		AllowedEdgeTypes: []string{},
		MaxHops:          DefaultMaxHops,
		Limit:            DefaultGraphLimit,
		Strategy:         TraversalBFS,
	}
}

// LabelAllowed reports whether any of labels passes the label allow-list
func (f GraphFilters) LabelAllowed(labels []string) bool {
	if len(f.AllowedLabels) == 0 {
		return true
	}
	for _, l := range labels {
		for _, allowed := range f.AllowedLabels {
			if l == allowed {
				return true
			}
		}
	}
	return false
}

// EdgeTypeAllowed reports whether edgeType passes the edge allow-list
func (f GraphFilters) EdgeTypeAllowed(edgeType string) bool {
	if len(f.AllowedEdgeTypes) == 0 {
		return true
	}
	for _, allowed := range f.AllowedEdgeTypes {
		if edgeType == allowed {
			return true
		}
	}
	return false
}
