package kgview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
)

const component = "kg_view_resolver"

// Store is the read path of the knowledge graph view store
type Store interface {
	SelectActiveKGView(ctx context.Context, agentID string, skillID string) (*model.KGViewRecord, error)
	SelectNodeTypes(ctx context.Context) ([]*model.NodeType, error)
	SelectEdgeTypes(ctx context.Context) ([]*model.EdgeTypeDefinition, error)
}

type viewKey struct {
	agentID string
	skillID string
}

// Resolver resolves the knowledge graph view of an agent. It keeps the
// node/edge type catalog and resolved views in memory; both live until
// ReloadCatalog or an explicit invalidation.
type Resolver struct {
	store  Store
	logger *slog.Logger

	mu            sync.RWMutex
	nodeTypes     map[uuid.UUID]string
	edgeTypes     map[uuid.UUID]string
	catalogLoaded bool
	views         map[viewKey]*model.KnowledgeGraphView
}

// NewResolver creates a resolver. The catalog is loaded by LoadCatalog or
// lazily on the first Resolve.
func NewResolver(store Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = helper.DiscardLogger()
	}
	return &Resolver{
		store:     store,
		logger:    logger.With(slog.String("component", component)),
		nodeTypes: make(map[uuid.UUID]string),
		edgeTypes: make(map[uuid.UUID]string),
		views:     make(map[viewKey]*model.KnowledgeGraphView),
	}
}

// LoadCatalog reads every node and edge type definition into memory
func (r *Resolver) LoadCatalog(ctx context.Context) error {
	if r.store == nil {
		return helper.NewError("load catalog", fmt.Errorf("no kg view store configured"))
	}

	nodeTypes, err := r.store.SelectNodeTypes(ctx)
	if err != nil {
		return helper.NewError("select node types", err)
	}
	edgeTypes, err := r.store.SelectEdgeTypes(ctx)
	if err != nil {
		return helper.NewError("select edge types", err)
	}

	nodes := make(map[uuid.UUID]string, len(nodeTypes))
	for _, t := range nodeTypes {
		nodes[t.ID] = t.Name
	}
	edges := make(map[uuid.UUID]string, len(edgeTypes))
	for _, t := range edgeTypes {
		edges[t.ID] = t.Name
	}

	r.mu.Lock()
	r.nodeTypes = nodes
	r.edgeTypes = edges
	r.catalogLoaded = true
	r.mu.Unlock()

	r.logger.Info("Loaded kg catalog", slog.Int("node_types", len(nodes)), slog.Int("edge_types", len(edges)))

	return nil
}

// ReloadCatalog reloads the catalog and drops every cached view
func (r *Resolver) ReloadCatalog(ctx context.Context) error {
	err := r.LoadCatalog(ctx)
	r.InvalidateAll()
	return err
}

// CatalogLoaded reports whether the catalog was loaded successfully
func (r *Resolver) CatalogLoaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.catalogLoaded
}

// Resolve returns the view of agentID, preferring a view bound to skillID.
// A nil view without diagnostics means the agent has no custom view;
// BuildFilters turns it into unrestricted traversal.
func (r *Resolver) Resolve(ctx context.Context, agentID string, skillID string) (*model.KnowledgeGraphView, []model.Diagnostic) {
	if agentID == "" || r.store == nil {
		return nil, nil
	}

	key := viewKey{agentID: agentID, skillID: skillID}
	r.mu.RLock()
	view, ok := r.views[key]
	r.mu.RUnlock()
	if ok {
		return view, nil
	}

	record, err := r.store.SelectActiveKGView(ctx, agentID, skillID)
	if errors.Is(err, helper.ErrNotFound) {
		r.cacheView(key, nil)
		return nil, nil
	}
	if err != nil {
		r.logger.Warn("Failed to select kg view, continuing without one", slog.String("agent_id", agentID), slog.String("error", err.Error()))
		return nil, []model.Diagnostic{{Component: component, Modality: model.ModalityGraph, Message: "kg view unavailable", Err: err}}
	}

	var diagnostics []model.Diagnostic
	if !r.CatalogLoaded() {
		if err := r.LoadCatalog(ctx); err != nil {
			r.logger.Warn("Failed to load kg catalog, graph search proceeds unfiltered", slog.String("agent_id", agentID), slog.String("error", err.Error()))
			diagnostics = append(diagnostics, model.Diagnostic{Component: component, Modality: model.ModalityGraph, Message: "kg catalog unavailable, allow-lists dropped", Err: err})
			return r.toView(record, false, &diagnostics), diagnostics
		}
	}

	view = r.toView(record, true, &diagnostics)
	r.cacheView(key, view)
	return view, diagnostics
}

// toView maps catalog IDs to names. IDs missing from the catalog are
// excluded and reported. Unset hop count, limit and strategy get their
// defaults, a view that still fails validation is rejected.
func (r *Resolver) toView(record *model.KGViewRecord, withAllowLists bool, diagnostics *[]model.Diagnostic) *model.KnowledgeGraphView {
	view := &model.KnowledgeGraphView{
		AgentID:          record.AgentID,
		AllowedLabels:    []string{},
		AllowedEdgeTypes: []string{},
		MaxHops:          record.MaxHops,
		Limit:            record.ResultLimit,
		Strategy:         record.Strategy,
	}

	if withAllowLists {
		r.mu.RLock()
		view.AllowedLabels = r.lookup(record.AllowedNodeTypeIDs, r.nodeTypes, "node type", record.AgentID, diagnostics)
		view.AllowedEdgeTypes = r.lookup(record.AllowedEdgeTypeIDs, r.edgeTypes, "edge type", record.AgentID, diagnostics)
		r.mu.RUnlock()
	}

	if view.MaxHops == 0 {
		view.MaxHops = model.DefaultMaxHops
	}
	if view.Limit == 0 {
		view.Limit = model.DefaultGraphLimit
	}
	if view.Strategy != model.TraversalBFS && view.Strategy != model.TraversalDFS {
		if view.Strategy != "" {
			r.logger.Warn("Unknown traversal strategy, using bfs", slog.String("agent_id", record.AgentID), slog.String("strategy", string(view.Strategy)))
		}
		view.Strategy = model.TraversalBFS
	}

	if err := view.Validate(); err != nil {
		r.logger.Warn("Invalid kg view rejected", slog.String("agent_id", record.AgentID), slog.String("error", err.Error()))
		*diagnostics = append(*diagnostics, model.Diagnostic{
			Component: component,
			Modality:  model.ModalityGraph,
			Message:   "invalid kg view rejected",
			Err:       err,
		})
		return nil
	}
	return view
}

func (r *Resolver) lookup(ids []uuid.UUID, catalog map[uuid.UUID]string, kind string, agentID string, diagnostics *[]model.Diagnostic) []string {
	names := []string{}
	for _, id := range ids {
		name, ok := catalog[id]
		if !ok {
			r.logger.Warn("Unknown catalog id excluded from kg view", slog.String("kind", kind), slog.String("id", id.String()), slog.String("agent_id", agentID))
			*diagnostics = append(*diagnostics, model.Diagnostic{
				Component: component,
				Modality:  model.ModalityGraph,
				Message:   fmt.Sprintf("unknown %s id %s excluded", kind, id),
			})
			continue
		}
		names = append(names, name)
	}
	return names
}

func (r *Resolver) cacheView(key viewKey, view *model.KnowledgeGraphView) {
	r.mu.Lock()
	r.views[key] = view
	r.mu.Unlock()
}

// Invalidate drops the cached views of agentID
func (r *Resolver) Invalidate(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.views {
		if k.agentID == agentID {
			delete(r.views, k)
		}
	}
}

// InvalidateAll drops every cached view
func (r *Resolver) InvalidateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = make(map[viewKey]*model.KnowledgeGraphView)
}

// BuildFilters turns a view into traversal parameters
func (r *Resolver) BuildFilters(view *model.KnowledgeGraphView) model.GraphFilters {
	return BuildFilters(view)
}

// BuildFilters turns a view into traversal parameters. A nil view yields
// empty allow-lists and the default hop count and limit.
func BuildFilters(view *model.KnowledgeGraphView) model.GraphFilters {
	filters := model.DefaultGraphFilters()
	if view == nil {
		return filters
	}

	filters.AllowedLabels = append(filters.AllowedLabels, view.AllowedLabels...)
	filters.AllowedEdgeTypes = append(filters.AllowedEdgeTypes, view.AllowedEdgeTypes...)
	if view.MaxHops > 0 {
		filters.MaxHops = view.MaxHops
	}
	if view.Limit > 0 {
		filters.Limit = view.Limit
	}
	if view.Strategy == model.TraversalDFS {
		filters.Strategy = model.TraversalDFS
	}
	return filters
}
