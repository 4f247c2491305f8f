package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
	loadSql "github.com/siherrmann/graphrag/sql"
)

// ProfilesDBHandlerFunctions defines the interface for retrieval profile and
// agent policy operations.
type ProfilesDBHandlerFunctions interface {
	InsertProfile(ctx context.Context, profile *model.RetrievalProfile) error
	SelectProfile(ctx context.Context, id uuid.UUID) (*model.RetrievalProfile, error)
	SelectProfileBySlug(ctx context.Context, slug string) (*model.RetrievalProfile, error)
	InsertAgentPolicy(ctx context.Context, policy *model.AgentPolicy) error
	SelectActiveAgentPolicy(ctx context.Context, agentID string, skillID string) (*model.AgentPolicy, error)
	DeactivateAgentPolicy(ctx context.Context, id uuid.UUID) error
}

// ProfilesDBHandler handles the retrieval configuration store
type ProfilesDBHandler struct {
	db *helper.Database
}

// NewProfilesDBHandler creates a new profiles database handler.
// Creating the tables also seeds the default "hybrid" profile.
// If force is true, it will reload the SQL functions even if they already exist.
func NewProfilesDBHandler(db *helper.Database, force bool) (*ProfilesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	profilesDbHandler := &ProfilesDBHandler{
		db: db,
	}

	err := loadSql.LoadProfilesSql(profilesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load profiles sql", err)
	}

	err = profilesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ProfilesDBHandler")

	return profilesDbHandler, nil
}

// CreateTable creates the 'retrieval_profiles' and 'agent_retrieval_policies'
// tables. If they already exist, it does not create them again.
func (h *ProfilesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_profiles();`)
	if err != nil {
		return helper.NewError("init profiles", err)
	}

	h.db.Logger.Info("Checked/created tables retrieval_profiles and agent_retrieval_policies")

	return nil
}

// InsertProfile inserts a profile or updates the profile with the same slug
func (h *ProfilesDBHandler) InsertProfile(ctx context.Context, profile *model.RetrievalProfile) error {
	if err := profile.Validate(); err != nil {
		return err
	}
	filter, err := filterParam(profile.MetadataFilter)
	if err != nil {
		return err
	}

	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM insert_profile($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		profile.Slug,
		profile.Name,
		profile.Weights.Vector,
		profile.Weights.Keyword,
		profile.Weights.Graph,
		profile.TopK,
		profile.SimilarityThreshold,
		profile.MinKeywordScore,
		profile.RerankEnabled,
		profile.RerankerModel,
		profile.MaxContextTokens,
		profile.ChunkOverlap,
		filter,
	)

	err = scanProfile(row, profile)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectProfile retrieves an active profile by ID
func (h *ProfilesDBHandler) SelectProfile(ctx context.Context, id uuid.UUID) (*model.RetrievalProfile, error) {
	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM select_profile($1)`,
		id,
	)

	profile := &model.RetrievalProfile{}
	err := scanProfile(row, profile)
	if err != nil {
		return nil, scanError("scan", err)
	}

	return profile, nil
}

// SelectProfileBySlug retrieves an active profile by slug
func (h *ProfilesDBHandler) SelectProfileBySlug(ctx context.Context, slug string) (*model.RetrievalProfile, error) {
	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM select_profile_by_slug($1)`,
		slug,
	)

	profile := &model.RetrievalProfile{}
	err := scanProfile(row, profile)
	if err != nil {
		return nil, scanError("scan", err)
	}

	return profile, nil
}

// InsertAgentPolicy inserts an agent policy. Nil override fields are stored
// as NULL and leave the base profile untouched at resolution time.
func (h *ProfilesDBHandler) InsertAgentPolicy(ctx context.Context, policy *model.AgentPolicy) error {
	if policy.AgentID == "" {
		return helper.NewError("agent policy validation", fmt.Errorf("agent id is required"))
	}
	filter, err := nullableFilterParam(policy.MetadataFilter)
	if err != nil {
		return err
	}

	var profileID interface{}
	if policy.ProfileID != nil {
		profileID = *policy.ProfileID
	}

	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM insert_agent_policy($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		policy.AgentID,
		emptyToNil(policy.SkillID),
		profileID,
		policy.TopK,
		policy.SimilarityThreshold,
		policy.VectorWeight,
		policy.KeywordWeight,
		policy.GraphWeight,
		policy.RerankEnabled,
		policy.MaxContextTokens,
		filter,
	)

	err = scanAgentPolicy(row, policy)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectActiveAgentPolicy returns the active policy for agentID. A policy
// bound to skillID wins over an agent-wide one.
func (h *ProfilesDBHandler) SelectActiveAgentPolicy(ctx context.Context, agentID string, skillID string) (*model.AgentPolicy, error) {
	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM select_active_agent_policy($1, $2)`,
		agentID,
		skillID,
	)

	policy := &model.AgentPolicy{}
	err := scanAgentPolicy(row, policy)
	if err != nil {
		return nil, scanError("scan", err)
	}

	return policy, nil
}

// DeactivateAgentPolicy marks a policy inactive
func (h *ProfilesDBHandler) DeactivateAgentPolicy(ctx context.Context, id uuid.UUID) error {
	_, err := h.db.Instance.ExecContext(
		ctx,
		`SELECT deactivate_agent_policy($1)`,
		id,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

func scanProfile(row rowScanner, profile *model.RetrievalProfile) error {
	var filter model.Metadata
	err := row.Scan(
		&profile.ID,
		&profile.Slug,
		&profile.Name,
		&profile.Weights.Vector,
		&profile.Weights.Keyword,
		&profile.Weights.Graph,
		&profile.TopK,
		&profile.SimilarityThreshold,
		&profile.MinKeywordScore,
		&profile.RerankEnabled,
		&profile.RerankerModel,
		&profile.MaxContextTokens,
		&profile.ChunkOverlap,
		&filter,
		&profile.IsActive,
	)
	if err != nil {
		return err
	}

	profile.MetadataFilter = nil
	if len(filter) > 0 {
		profile.MetadataFilter = model.MetadataFilter(filter)
	}
	return nil
}

func scanAgentPolicy(row rowScanner, policy *model.AgentPolicy) error {
	var (
		skillID          sql.NullString
		profileID        uuid.NullUUID
		topK             sql.NullInt32
		threshold        sql.NullFloat64
		vectorWeight     sql.NullFloat64
		keywordWeight    sql.NullFloat64
		graphWeight      sql.NullFloat64
		rerankEnabled    sql.NullBool
		maxContextTokens sql.NullInt32
		filter           model.Metadata
	)

	err := row.Scan(
		&policy.ID,
		&policy.AgentID,
		&skillID,
		&profileID,
		&topK,
		&threshold,
		&vectorWeight,
		&keywordWeight,
		&graphWeight,
		&rerankEnabled,
		&maxContextTokens,
		&filter,
		&policy.IsActive,
	)
	if err != nil {
		return err
	}

	policy.SkillID = stringPtr(skillID)
	policy.ProfileID = uuidPtr(profileID)
	policy.TopK = intPtr(topK)
	policy.SimilarityThreshold = floatPtr(threshold)
	policy.VectorWeight = floatPtr(vectorWeight)
	policy.KeywordWeight = floatPtr(keywordWeight)
	policy.GraphWeight = floatPtr(graphWeight)
	policy.RerankEnabled = boolPtr(rerankEnabled)
	policy.MaxContextTokens = intPtr(maxContextTokens)
	policy.MetadataFilter = nil
	if len(filter) > 0 {
		policy.MetadataFilter = model.MetadataFilter(filter)
	}
	return nil
}
