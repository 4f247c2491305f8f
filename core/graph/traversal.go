package graph

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
)

// GraphDB defines the graph store operations used by the traversal
type GraphDB interface {
	SelectEntity(ctx context.Context, id uuid.UUID) (*model.Entity, error)
	SelectEdgesOfEntity(ctx context.Context, entityID uuid.UUID, edgeTypes []string) ([]*model.Edge, error)
}

// TraversalResult contains an entity, its distance from the source and the
// path that reached it
type TraversalResult struct {
	Entity   *model.Entity
	Distance int
	Path     *model.GraphPath
}

// Traverse walks from source with the strategy, hop count, limit and
// allow-lists of filters. The source itself is the first result.
func Traverse(ctx context.Context, db GraphDB, source *model.Entity, filters model.GraphFilters) ([]*TraversalResult, error) {
	if filters.Strategy == model.TraversalDFS {
		return DFS(ctx, db, source, filters)
	}
	return BFS(ctx, db, source, filters)
}

// BFS performs breadth-first search from a source entity.
// It stops once filters.Limit entities besides the source were reached.
func BFS(ctx context.Context, db GraphDB, source *model.Entity, filters model.GraphFilters) ([]*TraversalResult, error) {
	visited := map[uuid.UUID]bool{source.ID: true}
	queue := []*TraversalResult{{
		Entity:   source,
		Distance: 0,
		Path:     &model.GraphPath{Nodes: []*model.Entity{source}},
	}}

	var results []*TraversalResult
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		current := queue[0]
		queue = queue[1:]

		results = append(results, current)
		if limitReached(results, filters.Limit) {
			break
		}

		// Stop if we've reached max hops
		if current.Distance >= filters.MaxHops {
			continue
		}

		next, err := expand(ctx, db, current, filters, visited)
		if err != nil {
			return results, err
		}
		queue = append(queue, next...)
	}

	return results, nil
}

// DFS performs depth-first search from a source entity
func DFS(ctx context.Context, db GraphDB, source *model.Entity, filters model.GraphFilters) ([]*TraversalResult, error) {
	visited := map[uuid.UUID]bool{source.ID: true}
	var results []*TraversalResult

	start := &TraversalResult{
		Entity:   source,
		Distance: 0,
		Path:     &model.GraphPath{Nodes: []*model.Entity{source}},
	}
	err := dfsRecursive(ctx, db, start, filters, visited, &results)
	if errors.Is(err, errLimitReached) {
		err = nil
	}

	return results, err
}

var errLimitReached = errors.New("traversal limit reached")

// dfsRecursive is the recursive helper for DFS
func dfsRecursive(
	ctx context.Context,
	db GraphDB,
	current *TraversalResult,
	filters model.GraphFilters,
	visited map[uuid.UUID]bool,
	results *[]*TraversalResult,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	*results = append(*results, current)
	if limitReached(*results, filters.Limit) {
		return errLimitReached
	}

	// Stop if we've reached max hops
	if current.Distance >= filters.MaxHops {
		return nil
	}

	next, err := expand(ctx, db, current, filters, visited)
	if err != nil {
		return err
	}

	for _, n := range next {
		if err := dfsRecursive(ctx, db, n, filters, visited, results); err != nil {
			return err
		}
	}
	return nil
}

// expand returns the unvisited, allowed neighbours of current and marks
// them visited. Neighbours that vanished from the store are skipped.
func expand(ctx context.Context, db GraphDB, current *TraversalResult, filters model.GraphFilters, visited map[uuid.UUID]bool) ([]*TraversalResult, error) {
	edges, err := db.SelectEdgesOfEntity(ctx, current.Entity.ID, filters.AllowedEdgeTypes)
	if err != nil {
		return nil, helper.NewError("select edges", err)
	}

	var next []*TraversalResult
	for _, edge := range edges {
		if !filters.EdgeTypeAllowed(edge.EdgeType) {
			continue
		}

		targetID, ok := edge.Other(current.Entity.ID)
		if !ok || visited[targetID] {
			continue
		}

		target, err := db.SelectEntity(ctx, targetID)
		if err != nil {
			if errors.Is(err, helper.ErrNotFound) {
				continue
			}
			return nil, helper.NewError("select entity", err)
		}
		if !filters.LabelAllowed(target.Labels) {
			continue
		}

		visited[targetID] = true
		next = append(next, &TraversalResult{
			Entity:   target,
			Distance: current.Distance + 1,
			Path:     extendPath(current.Path, edge, target),
		})
	}
	return next, nil
}

func extendPath(path *model.GraphPath, edge *model.Edge, target *model.Entity) *model.GraphPath {
	nodes := make([]*model.Entity, len(path.Nodes), len(path.Nodes)+1)
	copy(nodes, path.Nodes)
	relationships := make([]*model.Edge, len(path.Relationships), len(path.Relationships)+1)
	copy(relationships, path.Relationships)

	return &model.GraphPath{
		Nodes:         append(nodes, target),
		Relationships: append(relationships, edge),
	}
}

// limitReached counts every result except the source
func limitReached(results []*TraversalResult, limit int) bool {
	return limit > 0 && len(results)-1 >= limit
}
