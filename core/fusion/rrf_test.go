package fusion

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/siherrmann/graphrag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func result(id string, modality model.Modality, score float64) model.ModalityResult {
	return model.ModalityResult{ID: id, Modality: modality, Score: score, Text: "text " + id}
}

func ids(results []model.FusedResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func TestFuse(t *testing.T) {
	t.Run("Keyword agreement lifts a lower vector rank", func(t *testing.T) {
		vector := []model.ModalityResult{
			result("a", model.ModalityVector, 0.9),
			result("b", model.ModalityVector, 0.8),
		}
		keyword := []model.ModalityResult{result("b", model.ModalityKeyword, 5.0)}
		weights := model.Weights{Vector: 0.6, Keyword: 0.4, Graph: 0.0}

		fused := Fuse(vector, keyword, nil, weights)

		scoreA := 0.6 / 61.0
		scoreB := 0.6/62.0 + 0.4/61.0
		require.Greater(t, scoreB, scoreA)
		require.Len(t, fused, 2)
		assert.Equal(t, []string{"b", "a"}, ids(fused))
		assert.InDelta(t, scoreB, fused[0].Score, 1e-12)
		assert.InDelta(t, scoreA, fused[1].Score, 1e-12)
		assert.Equal(t, []model.Modality{model.ModalityVector, model.ModalityKeyword}, fused[0].Sources)
		assert.Equal(t, []model.Modality{model.ModalityVector}, fused[1].Sources)
		assert.Equal(t, 0.8, fused[0].VectorScore)
		assert.Equal(t, 5.0, fused[0].KeywordScore)
		assert.Equal(t, 1, fused[0].Rank)
		assert.Equal(t, 2, fused[1].Rank)
	})

	t.Run("Weight zero modality is ignored", func(t *testing.T) {
		vector := []model.ModalityResult{result("a", model.ModalityVector, 0.9)}
		graph := []model.ModalityResult{result("a", model.ModalityGraph, 1.0), result("g", model.ModalityGraph, 0.5)}

		fused := Fuse(vector, nil, graph, model.Weights{Vector: 1.0})

		require.Len(t, fused, 1)
		assert.Equal(t, "a", fused[0].ID)
		assert.Equal(t, []model.Modality{model.ModalityVector}, fused[0].Sources)
		assert.Equal(t, 0.0, fused[0].GraphScore)
		assert.InDelta(t, 1.0/61.0, fused[0].Score, 1e-12)
	})

	t.Run("Empty inputs give an empty result", func(t *testing.T) {
		fused := Fuse(nil, nil, nil, model.Weights{Vector: 0.5, Keyword: 0.5})
		assert.Empty(t, fused)
	})

	t.Run("Equal scores keep encounter order", func(t *testing.T) {
		vector := []model.ModalityResult{result("v", model.ModalityVector, 0.9)}
		keyword := []model.ModalityResult{result("k", model.ModalityKeyword, 3)}
		graph := []model.ModalityResult{result("g", model.ModalityGraph, 1)}

		fused := Fuse(vector, keyword, graph, model.Weights{Vector: 1, Keyword: 1, Graph: 1})
		assert.Equal(t, []string{"v", "k", "g"}, ids(fused))
	})

	t.Run("Graph results are keyed by their path", func(t *testing.T) {
		path := &model.GraphPath{
			Nodes: []*model.Entity{
				{ID: uuid.New(), Name: "Aspirin"},
				{ID: uuid.New(), Name: "Headache"},
			},
			Relationships: []*model.Edge{{EdgeType: "TREATS"}},
		}
		unkeyed := model.ModalityResult{Modality: model.ModalityGraph, Score: 0.9, Text: path.Describe(), Path: path}

		fused := Fuse(nil, nil, []model.ModalityResult{unkeyed, model.NewGraphResult(path, 0.9)}, model.Weights{Graph: 1})

		require.Len(t, fused, 1)
		assert.Equal(t, path.Key(), fused[0].ID)
		assert.Equal(t, "Aspirin -[TREATS]-> Headache", fused[0].Text)
		assert.Same(t, path, fused[0].Path)
		assert.InDelta(t, 1.0/61.0, fused[0].Score, 1e-12, "Expected a repeated id to count once at its best rank")
	})

	t.Run("Custom k changes the damping", func(t *testing.T) {
		fuser := NewFuser(10)
		fused := fuser.Fuse([]model.ModalityResult{result("a", model.ModalityVector, 1)}, nil, nil, model.Weights{Vector: 1})
		assert.InDelta(t, 1.0/11.0, fused[0].Score, 1e-12)
		assert.Equal(t, DefaultK, NewFuser(0).K())
	})

	t.Run("Metadata of every contributing modality is merged", func(t *testing.T) {
		v := result("a", model.ModalityVector, 0.9)
		v.Metadata = model.Metadata{"title": "Vector title"}
		k := result("a", model.ModalityKeyword, 2)
		k.Metadata = model.Metadata{"title": "Keyword title", "url": "https://example.org"}

		fused := Fuse([]model.ModalityResult{v}, []model.ModalityResult{k}, nil, model.Weights{Vector: 1, Keyword: 1})
		assert.Equal(t, model.Metadata{"title": "Vector title", "url": "https://example.org"}, fused[0].Metadata)
		assert.Equal(t, model.Metadata{"title": "Vector title"}, v.Metadata, "Expected inputs to stay untouched")
	})
}

func drawList(t *rapid.T, modality model.Modality, label string) []model.ModalityResult {
	n := rapid.IntRange(0, 8).Draw(t, label+"_len")
	out := make([]model.ModalityResult, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("r%d", rapid.IntRange(0, 10).Draw(t, fmt.Sprintf("%s_%d", label, i)))
		out = append(out, result(id, modality, float64(n-i)))
	}
	return out
}

func TestFuseProperties(t *testing.T) {
	t.Run("Fusion is deterministic", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			vector := drawList(t, model.ModalityVector, "vector")
			keyword := drawList(t, model.ModalityKeyword, "keyword")
			graph := drawList(t, model.ModalityGraph, "graph")
			weights := model.Weights{
				Vector:  rapid.Float64Range(0, 1).Draw(t, "wv"),
				Keyword: rapid.Float64Range(0, 1).Draw(t, "wk"),
				Graph:   rapid.Float64Range(0, 1).Draw(t, "wg"),
			}

			first := Fuse(vector, keyword, graph, weights)
			for i := 0; i < 3; i++ {
				again := Fuse(vector, keyword, graph, weights)
				if len(again) != len(first) {
					t.Fatalf("length changed: %d != %d", len(again), len(first))
				}
				for j := range first {
					if first[j].ID != again[j].ID || first[j].Score != again[j].Score {
						t.Fatalf("position %d changed: %s/%v != %s/%v", j, first[j].ID, first[j].Score, again[j].ID, again[j].Score)
					}
				}
			}
			for j := 1; j < len(first); j++ {
				if first[j-1].Score < first[j].Score {
					t.Fatalf("not sorted at %d", j)
				}
			}
		})
	})

	t.Run("Zero weight modalities never influence the result", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			vector := drawList(t, model.ModalityVector, "vector")
			keyword := drawList(t, model.ModalityKeyword, "keyword")
			graph := drawList(t, model.ModalityGraph, "graph")
			weights := model.Weights{
				Vector:  rapid.Float64Range(0.01, 1).Draw(t, "wv"),
				Keyword: rapid.Float64Range(0.01, 1).Draw(t, "wk"),
			}

			with := Fuse(vector, keyword, graph, weights)
			without := Fuse(vector, keyword, nil, weights)
			if len(with) != len(without) {
				t.Fatalf("graph results leaked: %d != %d", len(with), len(without))
			}
			for j := range with {
				if with[j].ID != without[j].ID || with[j].Score != without[j].Score {
					t.Fatalf("graph results influenced position %d", j)
				}
				if with[j].HasSource(model.ModalityGraph) {
					t.Fatalf("graph listed as source of %s", with[j].ID)
				}
			}
		})
	})
}
