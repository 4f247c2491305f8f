package search

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockGraphStore struct {
	order    []*model.Entity
	entities map[uuid.UUID]*model.Entity
	edges    []*model.Edge
	lookup   error
	blocking bool
}

func newMockGraphStore() *mockGraphStore {
	return &mockGraphStore{entities: map[uuid.UUID]*model.Entity{}}
}

func (m *mockGraphStore) add(name string, labels ...string) *model.Entity {
	e := &model.Entity{ID: uuid.New(), Name: name, Labels: labels}
	m.entities[e.ID] = e
	m.order = append(m.order, e)
	return e
}

func (m *mockGraphStore) link(from, to *model.Entity, edgeType string) {
	m.edges = append(m.edges, &model.Edge{ID: uuid.New(), SourceEntityID: from.ID, TargetEntityID: to.ID, EdgeType: edgeType, Weight: 1})
}

func (m *mockGraphStore) SelectEntity(ctx context.Context, id uuid.UUID) (*model.Entity, error) {
	e, ok := m.entities[id]
	if !ok {
		return nil, helper.NewError("scan", helper.ErrNotFound)
	}
	return e, nil
}

func (m *mockGraphStore) SelectEdgesOfEntity(ctx context.Context, entityID uuid.UUID, edgeTypes []string) ([]*model.Edge, error) {
	if m.blocking {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	filters := model.GraphFilters{AllowedEdgeTypes: edgeTypes}
	var out []*model.Edge
	for _, e := range m.edges {
		if _, ok := e.Other(entityID); ok && filters.EdgeTypeAllowed(e.EdgeType) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockGraphStore) SelectEntitiesByNames(ctx context.Context, names []string, labels []string, limit int) ([]*model.Entity, error) {
	if m.lookup != nil {
		return nil, m.lookup
	}
	filters := model.GraphFilters{AllowedLabels: labels}
	var out []*model.Entity
	for _, name := range names {
		for _, e := range m.order {
			if strings.EqualFold(e.Name, name) && filters.LabelAllowed(e.Labels) {
				out = append(out, e)
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Aspirin -TREATS-> Headache -ASSOCIATED_WITH-> Migraine, Aspirin -TARGETS-> COX1
func newDrugGraph() *mockGraphStore {
	store := newMockGraphStore()
	aspirin := store.add("Aspirin", "Drug")
	headache := store.add("Headache", "Symptom")
	migraine := store.add("Migraine", "Disease")
	cox1 := store.add("COX1", "Protein")
	store.link(aspirin, headache, "TREATS")
	store.link(headache, migraine, "ASSOCIATED_WITH")
	store.link(aspirin, cox1, "TARGETS")
	return store
}

func graphRequest(seeds ...string) Request {
	p := testProfile()
	p.TopK = 10
	return Request{Query: "q", Profile: p, Seeds: seeds, GraphFilters: model.DefaultGraphFilters()}
}

func TestGraphAdapter(t *testing.T) {
	ctx := context.Background()

	t.Run("Paths from the seed are scored and ranked", func(t *testing.T) {
		adapter := NewGraphAdapter(newDrugGraph(), []string{"Drug"}, nil)
		outcome := adapter.Search(ctx, graphRequest("Aspirin"))

		require.False(t, outcome.Failed())
		require.Len(t, outcome.Results, 3)
		assert.Equal(t, "Aspirin -[TREATS]-> Headache", outcome.Results[0].Text)
		assert.Equal(t, "Aspirin -[TARGETS]-> COX1", outcome.Results[1].Text)
		assert.Equal(t, "Aspirin -[TREATS]-> Headache -[ASSOCIATED_WITH]-> Migraine", outcome.Results[2].Text)
		assert.InDelta(t, 1/1.2+0.1, outcome.Results[0].Score, 1e-9)
		assert.InDelta(t, 1/1.4+0.1, outcome.Results[2].Score, 1e-9)
		for _, r := range outcome.Results {
			assert.Equal(t, model.ModalityGraph, r.Modality)
			assert.Equal(t, r.Path.Key(), r.ID)
		}
	})

	t.Run("Paths are deduplicated by signature", func(t *testing.T) {
		adapter := NewGraphAdapter(newDrugGraph(), nil, nil)
		outcome := adapter.Search(ctx, graphRequest("Aspirin", "aspirin"))
		assert.Len(t, outcome.Results, 3)
	})

	t.Run("Edge type allow-list restricts the paths", func(t *testing.T) {
		req := graphRequest("Aspirin")
		req.GraphFilters.AllowedEdgeTypes = []string{"TARGETS"}

		outcome := NewGraphAdapter(newDrugGraph(), nil, nil).Search(ctx, req)
		require.Len(t, outcome.Results, 1)
		assert.Equal(t, "Aspirin -[TARGETS]-> COX1", outcome.Results[0].Text)
	})

	t.Run("Hop count bounds the paths", func(t *testing.T) {
		req := graphRequest("Aspirin")
		req.GraphFilters.MaxHops = 1

		outcome := NewGraphAdapter(newDrugGraph(), nil, nil).Search(ctx, req)
		for _, r := range outcome.Results {
			assert.Equal(t, 1, r.Path.Length())
		}
		assert.Len(t, outcome.Results, 2)
	})

	t.Run("Results are truncated to top k", func(t *testing.T) {
		req := graphRequest("Aspirin")
		req.Profile.TopK = 1
		outcome := NewGraphAdapter(newDrugGraph(), nil, nil).Search(ctx, req)
		assert.Len(t, outcome.Results, 1)
	})

	t.Run("No seeds gives empty results", func(t *testing.T) {
		outcome := NewGraphAdapter(newDrugGraph(), nil, nil).Search(ctx, graphRequest())
		assert.False(t, outcome.Failed())
		assert.Empty(t, outcome.Results)
	})

	t.Run("Unknown seeds give empty results", func(t *testing.T) {
		outcome := NewGraphAdapter(newDrugGraph(), nil, nil).Search(ctx, graphRequest("Ibuprofen"))
		assert.False(t, outcome.Failed())
		assert.Empty(t, outcome.Results)
	})

	t.Run("Seed lookup failure degrades to an empty result", func(t *testing.T) {
		store := newDrugGraph()
		store.lookup = fmt.Errorf("relation entities does not exist")
		outcome := NewGraphAdapter(store, nil, nil).Search(ctx, graphRequest("Aspirin"))
		assert.True(t, outcome.Failed())
		assert.Empty(t, outcome.Results)
	})

	t.Run("Traversal timeout degrades to an empty result", func(t *testing.T) {
		store := newDrugGraph()
		store.blocking = true
		ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		outcome := NewGraphAdapter(store, nil, nil).Search(ctx, graphRequest("Aspirin"))

		require.True(t, outcome.Failed())
		assert.Empty(t, outcome.Results)
		assert.Equal(t, "graph search timed out", outcome.Diagnostic.Message)
		assert.ErrorIs(t, outcome.Diagnostic, context.DeadlineExceeded)
	})
}

func TestGraphScore(t *testing.T) {
	path := func(labels ...string) *model.GraphPath {
		p := &model.GraphPath{}
		for i, l := range labels {
			p.Nodes = append(p.Nodes, &model.Entity{ID: uuid.New(), Name: fmt.Sprint(i), Labels: []string{l}})
			if i > 0 {
				p.Relationships = append(p.Relationships, &model.Edge{EdgeType: "RELATED_TO"})
			}
		}
		return p
	}
	adapter := NewGraphAdapter(nil, []string{"Drug", "Disease"}, nil)

	t.Run("Longer paths score lower", func(t *testing.T) {
		assert.InDelta(t, 1/1.2, adapter.Score(path("Gene", "Gene")), 1e-9)
		assert.InDelta(t, 1/1.4, adapter.Score(path("Gene", "Gene", "Gene")), 1e-9)
	})

	t.Run("High value nodes add a bonus", func(t *testing.T) {
		assert.InDelta(t, 1/1.4+0.1, adapter.Score(path("Gene", "Drug", "Gene")), 1e-9)
	})

	t.Run("Score is capped at one", func(t *testing.T) {
		assert.Equal(t, 1.0, adapter.Score(path("Drug", "Disease")))
	})
}
