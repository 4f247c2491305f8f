package database

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var profileColumns = []string{
	"id", "slug", "name", "vector_weight", "keyword_weight", "graph_weight", "top_k", "similarity_threshold",
	"min_keyword_score", "rerank_enabled", "reranker_model", "max_context_tokens", "chunk_overlap", "metadata_filter", "is_active",
}

var policyColumns = []string{
	"id", "agent_id", "skill_id", "profile_id", "agent_specific_top_k", "agent_specific_threshold",
	"vector_weight", "keyword_weight", "graph_weight", "rerank_enabled", "max_context_tokens", "metadata_filter", "is_active",
}

func TestProfilesMock(t *testing.T) {
	ctx := context.Background()

	t.Run("Select profile by slug", func(t *testing.T) {
		database, mock := newMockDatabase(t)
		h := &ProfilesDBHandler{db: database}
		id := uuid.New()

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM select_profile_by_slug($1)`)).
			WithArgs("hybrid").
			WillReturnRows(sqlmock.NewRows(profileColumns).
				AddRow(id.String(), "hybrid", "Hybrid", 0.6, 0.4, 0.0, 10, 0.7, 0.0, false, "", 4000, 50, []byte(`{}`), true))

		profile, err := h.SelectProfileBySlug(ctx, "hybrid")
		require.NoError(t, err)
		assert.Equal(t, id, profile.ID)
		assert.Equal(t, model.Weights{Vector: 0.6, Keyword: 0.4, Graph: 0}, profile.Weights)
		assert.Equal(t, 10, profile.TopK)
		assert.Nil(t, profile.MetadataFilter)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Select missing profile returns ErrNotFound", func(t *testing.T) {
		database, mock := newMockDatabase(t)
		h := &ProfilesDBHandler{db: database}

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM select_profile($1)`)).
			WillReturnRows(sqlmock.NewRows(profileColumns))

		_, err := h.SelectProfile(ctx, uuid.New())
		assert.ErrorIs(t, err, helper.ErrNotFound)
	})

	t.Run("Active policy keeps NULL overrides as nil", func(t *testing.T) {
		database, mock := newMockDatabase(t)
		h := &ProfilesDBHandler{db: database}
		id := uuid.New()

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM select_active_agent_policy($1, $2)`)).
			WithArgs("agent-7", "").
			WillReturnRows(sqlmock.NewRows(policyColumns).
				AddRow(id.String(), "agent-7", nil, nil, int64(5), nil, nil, nil, 0.3, nil, nil, []byte(`{"tenant":"acme"}`), true))

		policy, err := h.SelectActiveAgentPolicy(ctx, "agent-7", "")
		require.NoError(t, err)
		assert.Nil(t, policy.SkillID)
		assert.Nil(t, policy.ProfileID)
		require.NotNil(t, policy.TopK)
		assert.Equal(t, 5, *policy.TopK)
		assert.Nil(t, policy.SimilarityThreshold)
		require.NotNil(t, policy.GraphWeight)
		assert.Equal(t, 0.3, *policy.GraphWeight)
		assert.Nil(t, policy.RerankEnabled)
		assert.Equal(t, model.MetadataFilter{"tenant": "acme"}, policy.MetadataFilter)
	})

	t.Run("Insert profile validates weights before touching the database", func(t *testing.T) {
		database, mock := newMockDatabase(t)
		h := &ProfilesDBHandler{db: database}

		profile := model.DefaultHybridProfile()
		profile.Weights.Graph = 1.5
		err := h.InsertProfile(ctx, &profile)
		assert.ErrorContains(t, err, "graph weight")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Insert agent policy requires an agent", func(t *testing.T) {
		database, _ := newMockDatabase(t)
		h := &ProfilesDBHandler{db: database}

		err := h.InsertAgentPolicy(ctx, &model.AgentPolicy{})
		assert.ErrorContains(t, err, "agent id is required")
	})
}

func TestProfilesIntegration(t *testing.T) {
	database := initDB(t)
	ctx := context.Background()

	profilesDbHandler, err := NewProfilesDBHandler(database, true)
	require.NoError(t, err)

	t.Run("Default hybrid profile is seeded", func(t *testing.T) {
		profile, err := profilesDbHandler.SelectProfileBySlug(ctx, model.DefaultProfileSlug)
		require.NoError(t, err)
		assert.Equal(t, model.Weights{Vector: 0.6, Keyword: 0.4, Graph: 0}, profile.Weights)
		assert.Equal(t, 10, profile.TopK)
	})

	graphProfile := &model.RetrievalProfile{
		Slug:                "graph-heavy",
		Name:                "Graph heavy",
		Weights:             model.Weights{Vector: 0.4, Keyword: 0.2, Graph: 0.4},
		TopK:                15,
		SimilarityThreshold: 0.5,
		MaxContextTokens:    6000,
		ChunkOverlap:        50,
		MetadataFilter:      model.MetadataFilter{"tenant": "acme"},
	}

	t.Run("Insert and select profile", func(t *testing.T) {
		require.NoError(t, profilesDbHandler.InsertProfile(ctx, graphProfile))
		assert.NotEqual(t, uuid.Nil, graphProfile.ID)

		selected, err := profilesDbHandler.SelectProfile(ctx, graphProfile.ID)
		require.NoError(t, err)
		assert.Equal(t, "graph-heavy", selected.Slug)
		assert.Equal(t, model.MetadataFilter{"tenant": "acme"}, selected.MetadataFilter)
	})

	t.Run("Skill policy wins over the agent policy", func(t *testing.T) {
		topK := 5
		skill := "summarize"
		agentPolicy := &model.AgentPolicy{AgentID: "agent-1", TopK: &topK}
		skillPolicy := &model.AgentPolicy{AgentID: "agent-1", SkillID: &skill, ProfileID: &graphProfile.ID}
		require.NoError(t, profilesDbHandler.InsertAgentPolicy(ctx, agentPolicy))
		require.NoError(t, profilesDbHandler.InsertAgentPolicy(ctx, skillPolicy))

		policy, err := profilesDbHandler.SelectActiveAgentPolicy(ctx, "agent-1", "summarize")
		require.NoError(t, err)
		assert.Equal(t, skillPolicy.ID, policy.ID)

		policy, err = profilesDbHandler.SelectActiveAgentPolicy(ctx, "agent-1", "")
		require.NoError(t, err)
		assert.Equal(t, agentPolicy.ID, policy.ID)
		assert.Equal(t, 5, *policy.TopK)

		require.NoError(t, profilesDbHandler.DeactivateAgentPolicy(ctx, agentPolicy.ID))
		_, err = profilesDbHandler.SelectActiveAgentPolicy(ctx, "agent-1", "")
		assert.ErrorIs(t, err, helper.ErrNotFound)
	})
}
