package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetrievalProfileDefaults(t *testing.T) {
	t.Run("Hybrid default is 0.6 vector and 0.4 keyword", func(t *testing.T) {
		p := DefaultHybridProfile()
		assert.Equal(t, Weights{Vector: 0.6, Keyword: 0.4, Graph: 0}, p.Weights)
		assert.Equal(t, DefaultProfileSlug, p.Slug)
		assert.NoError(t, p.Validate())
	})

	t.Run("Fallback is pure vector", func(t *testing.T) {
		p := FallbackProfile()
		assert.Equal(t, Weights{Vector: 1.0}, p.Weights)
		assert.Equal(t, ProfileSourceFallback, p.Source)
		assert.NoError(t, p.Validate())
	})
}

func TestRetrievalProfileValidate(t *testing.T) {
	t.Run("Weight outside range is rejected", func(t *testing.T) {
		p := DefaultHybridProfile()
		p.Weights.Graph = 1.5
		assert.ErrorContains(t, p.Validate(), "graph weight")
	})

	t.Run("Non positive top k is rejected", func(t *testing.T) {
		p := DefaultHybridProfile()
		p.TopK = 0
		assert.ErrorContains(t, p.Validate(), "top_k")
	})

	t.Run("Threshold outside range is rejected", func(t *testing.T) {
		p := DefaultHybridProfile()
		p.SimilarityThreshold = -0.1
		assert.ErrorContains(t, p.Validate(), "similarity_threshold")
	})
}

func TestAgentPolicyApply(t *testing.T) {
	topK := 5
	graph := 0.2
	policy := &AgentPolicy{
		TopK:           &topK,
		GraphWeight:    &graph,
		MetadataFilter: MetadataFilter{"tenant": "acme"},
	}

	base := DefaultHybridProfile()
	base.MetadataFilter = MetadataFilter{"lang": "en"}
	out := policy.Apply(base)

	assert.Equal(t, 5, out.TopK, "Policy top k should replace the profile default")
	assert.Equal(t, 0.2, out.Weights.Graph)
	assert.Equal(t, 0.6, out.Weights.Vector, "Untouched fields keep the base value")
	assert.Equal(t, base.SimilarityThreshold, out.SimilarityThreshold)
	assert.Equal(t, MetadataFilter{"lang": "en", "tenant": "acme"}, out.MetadataFilter)
	assert.Equal(t, 10, base.TopK, "Base profile must not be mutated")

	var nilPolicy *AgentPolicy
	assert.Equal(t, base, nilPolicy.Apply(base))
}
