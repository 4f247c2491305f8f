package graph

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// MockGraphDB is an in-memory GraphDB following the store's walk rules
type MockGraphDB struct {
	entities map[uuid.UUID]*model.Entity
	edges    []*model.Edge
	edgesErr error
}

func NewMockGraphDB() *MockGraphDB {
	return &MockGraphDB{entities: make(map[uuid.UUID]*model.Entity)}
}

func (m *MockGraphDB) add(name string, labels ...string) *model.Entity {
	e := &model.Entity{ID: uuid.New(), Name: name, Labels: labels}
	m.entities[e.ID] = e
	return e
}

func (m *MockGraphDB) link(from, to *model.Entity, edgeType string, bidirectional bool) *model.Edge {
	e := &model.Edge{ID: uuid.New(), SourceEntityID: from.ID, TargetEntityID: to.ID, EdgeType: edgeType, Bidirectional: bidirectional}
	m.edges = append(m.edges, e)
	return e
}

func (m *MockGraphDB) SelectEntity(ctx context.Context, id uuid.UUID) (*model.Entity, error) {
	e, ok := m.entities[id]
	if !ok {
		return nil, helper.NewError("scan", helper.ErrNotFound)
	}
	return e, nil
}

func (m *MockGraphDB) SelectEdgesOfEntity(ctx context.Context, entityID uuid.UUID, edgeTypes []string) ([]*model.Edge, error) {
	if m.edgesErr != nil {
		return nil, m.edgesErr
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

func names(results []*TraversalResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Entity.Name
	}
	return out
}

// A -TREATS-> B -ASSOCIATED_WITH-> C, A -TARGETS-> D, E <-INTERACTS_WITH-> A
func newTestGraph() (*MockGraphDB, map[string]*model.Entity) {
	db := NewMockGraphDB()
	n := map[string]*model.Entity{
		"A": db.add("A", "Drug"),
		"B": db.add("B", "Disease"),
		"C": db.add("C", "Gene"),
		"D": db.add("D", "Protein"),
		"E": db.add("E", "Drug"),
	}
	db.link(n["A"], n["B"], "TREATS", false)
	db.link(n["B"], n["C"], "ASSOCIATED_WITH", false)
	db.link(n["A"], n["D"], "TARGETS", false)
	db.link(n["E"], n["A"], "INTERACTS_WITH", true)
	return db, n
}

func filters(maxHops int) model.GraphFilters {
	f := model.DefaultGraphFilters()
	f.MaxHops = maxHops
	return f
}

func TestBFS(t *testing.T) {
	ctx := context.Background()
	db, n := newTestGraph()

	t.Run("BFS from source with max hops 1", func(t *testing.T) {
		results, err := BFS(ctx, db, n["A"], filters(1))
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B", "D", "E"}, names(results))
		assert.Equal(t, 0, results[0].Distance, "Expected source distance to be 0")
		for _, r := range results[1:] {
			assert.Equal(t, 1, r.Distance)
			assert.Equal(t, 1, r.Path.Length())
		}
	})

	t.Run("BFS with max hops 2 reaches second degree", func(t *testing.T) {
		results, err := BFS(ctx, db, n["A"], filters(2))
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B", "D", "E", "C"}, names(results))

		c := results[4]
		assert.Equal(t, 2, c.Distance)
		assert.Equal(t, "A -[TREATS]-> B -[ASSOCIATED_WITH]-> C", c.Path.Describe())
	})

	t.Run("BFS with max hops 0 returns only the source", func(t *testing.T) {
		results, err := BFS(ctx, db, n["A"], filters(0))
		require.NoError(t, err)
		assert.Equal(t, []string{"A"}, names(results))
	})

	t.Run("BFS with edge type filter", func(t *testing.T) {
		f := filters(2)
		f.AllowedEdgeTypes = []string{"TREATS"}
		results, err := BFS(ctx, db, n["A"], f)
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B"}, names(results))
	})

	t.Run("BFS with label filter does not pass through disallowed nodes", func(t *testing.T) {
		f := filters(2)
		f.AllowedLabels = []string{"Disease", "Gene"}
		results, err := BFS(ctx, db, n["A"], f)
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B", "C"}, names(results))
	})

	t.Run("BFS stops at the limit", func(t *testing.T) {
		f := filters(2)
		f.Limit = 2
		results, err := BFS(ctx, db, n["A"], f)
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B", "D"}, names(results))
	})

	t.Run("BFS does not walk directed edges backwards", func(t *testing.T) {
		results, err := BFS(ctx, db, n["B"], filters(2))
		require.NoError(t, err)
		assert.Equal(t, []string{"B", "C"}, names(results))
	})

	t.Run("BFS walks bidirectional edges backwards", func(t *testing.T) {
		results, err := BFS(ctx, db, n["A"], filters(1))
		require.NoError(t, err)
		last := results[len(results)-1]
		assert.Equal(t, "E", last.Entity.Name)
		assert.Equal(t, "INTERACTS_WITH", last.Path.Relationships[0].EdgeType)
	})

	t.Run("BFS skips edges to missing entities", func(t *testing.T) {
		db, n := newTestGraph()
		ghost := &model.Entity{ID: uuid.New(), Name: "ghost"}
		db.link(n["C"], ghost, "RELATED_TO", false)

		results, err := BFS(ctx, db, n["B"], filters(3))
		require.NoError(t, err)
		assert.Equal(t, []string{"B", "C"}, names(results))
	})

	t.Run("BFS returns store errors", func(t *testing.T) {
		db, n := newTestGraph()
		db.edgesErr = fmt.Errorf("connection reset")

		_, err := BFS(ctx, db, n["A"], filters(1))
		assert.ErrorContains(t, err, "connection reset")
	})

	t.Run("BFS stops on a cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := BFS(cancelled, db, n["A"], filters(2))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestDFS(t *testing.T) {
	ctx := context.Background()
	db, n := newTestGraph()

	t.Run("DFS visits depth first", func(t *testing.T) {
		results, err := DFS(ctx, db, n["A"], filters(2))
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B", "C", "D", "E"}, names(results))
		assert.Equal(t, 2, results[2].Distance)
	})

	t.Run("DFS stops at the limit without error", func(t *testing.T) {
		f := filters(2)
		f.Limit = 2
		results, err := DFS(ctx, db, n["A"], f)
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B", "C"}, names(results))
	})

	t.Run("Traverse dispatches on the strategy", func(t *testing.T) {
		f := filters(2)
		f.Strategy = model.TraversalDFS
		results, err := Traverse(ctx, db, n["A"], f)
		require.NoError(t, err)
		assert.Equal(t, "C", results[2].Entity.Name)

		f.Strategy = model.TraversalBFS
		results, err = Traverse(ctx, db, n["A"], f)
		require.NoError(t, err)
		assert.Equal(t, "D", results[2].Entity.Name)
	})
}

func TestTraversalProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		db := NewMockGraphDB()
		nodeCount := rapid.IntRange(1, 12).Draw(t, "nodes")
		nodes := make([]*model.Entity, nodeCount)
		for i := range nodes {
			nodes[i] = db.add(fmt.Sprintf("n%d", i), "Thing")
		}
		edgeCount := rapid.IntRange(0, 30).Draw(t, "edges")
		for i := 0; i < edgeCount; i++ {
			from := nodes[rapid.IntRange(0, nodeCount-1).Draw(t, "from")]
			to := nodes[rapid.IntRange(0, nodeCount-1).Draw(t, "to")]
			db.link(from, to, "RELATED_TO", rapid.Bool().Draw(t, "bidirectional"))
		}

		f := model.DefaultGraphFilters()
		f.MaxHops = rapid.IntRange(0, 4).Draw(t, "maxHops")
		f.Limit = rapid.IntRange(1, 20).Draw(t, "limit")
		if rapid.Bool().Draw(t, "dfs") {
			f.Strategy = model.TraversalDFS
		}

		results, err := Traverse(context.Background(), db, nodes[0], f)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		seen := map[uuid.UUID]bool{}
		for _, r := range results {
			if seen[r.Entity.ID] {
				t.Fatalf("entity %s visited twice", r.Entity.Name)
			}
			seen[r.Entity.ID] = true
			if r.Distance > f.MaxHops {
				t.Fatalf("distance %d exceeds max hops %d", r.Distance, f.MaxHops)
			}
			if r.Path.Length() != r.Distance {
				t.Fatalf("path length %d does not match distance %d", r.Path.Length(), r.Distance)
			}
			for i, rel := range r.Path.Relationships {
				if next, ok := rel.Other(r.Path.Nodes[i].ID); !ok || next != r.Path.Nodes[i+1].ID {
					t.Fatalf("relationship %d does not connect consecutive nodes", i)
				}
			}
		}
		if len(results)-1 > f.Limit {
			t.Fatalf("%d results exceed limit %d", len(results)-1, f.Limit)
		}
	})
}
