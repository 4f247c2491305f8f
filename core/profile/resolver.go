package profile

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

const component = "profile_resolver"

// Store is the read path of the retrieval configuration store
type Store interface {
	SelectProfile(ctx context.Context, id uuid.UUID) (*model.RetrievalProfile, error)
	SelectProfileBySlug(ctx context.Context, slug string) (*model.RetrievalProfile, error)
	SelectActiveAgentPolicy(ctx context.Context, agentID string, skillID string) (*model.AgentPolicy, error)
}

type cacheKey struct {
	agentID   string
	skillID   string
	profileID uuid.UUID
}

// Resolver resolves the retrieval profile effective for an agent.
//
// Precedence, highest first:
//  1. active agent+skill policy
//  2. active agent-wide policy
//  3. explicitly requested profile
//  4. the "hybrid" default profile
//  5. the built-in semantic fallback, only when the store is unreachable
//
// A policy overrides its base profile field by field. The base of a policy
// is its own profile reference if set, else the requested profile, else the
// default.
type Resolver struct {
	store  Store
	logger *slog.Logger

	cacheEnabled bool
	mu           sync.RWMutex
	cache        map[cacheKey]model.RetrievalProfile
}

// NewResolver creates a resolver. With cacheEnabled resolved profiles are
// kept until Invalidate or InvalidateAll.
func NewResolver(store Store, logger *slog.Logger, cacheEnabled bool) *Resolver {
	if logger == nil {
		logger = helper.DiscardLogger()
	}
	return &Resolver{
		store:        store,
		logger:       logger.With(slog.String("component", component)),
		cacheEnabled: cacheEnabled,
		cache:        make(map[cacheKey]model.RetrievalProfile),
	}
}

// Resolve returns the effective profile. It never fails: store errors yield
// the fallback profile together with a diagnostic.
func (r *Resolver) Resolve(ctx context.Context, agentID string, profileID *uuid.UUID, skillID string) (model.RetrievalProfile, []model.Diagnostic) {
	key := cacheKey{agentID: agentID, skillID: skillID}
	if profileID != nil {
		key.profileID = *profileID
	}

	if cached, ok := r.cached(key); ok {
		return cached, nil
	}

	if r.store == nil {
		d := model.Diagnostic{Component: component, Message: "no configuration store configured, using fallback profile"}
		return model.FallbackProfile(), []model.Diagnostic{d}
	}

	resolved, diagnostics, err := r.resolve(ctx, agentID, profileID, skillID)
	if err != nil {
		r.logger.Warn(
			"Configuration store unreachable, using fallback profile",
			slog.String("agent_id", agentID),
			slog.String("error", err.Error()),
		)
		d := model.Diagnostic{Component: component, Message: "configuration store unreachable, using fallback profile", Err: err}
		return model.FallbackProfile(), append(diagnostics, d)
	}

	if r.cacheEnabled {
		r.mu.Lock()
		r.cache[key] = resolved
		r.mu.Unlock()
	}

	return resolved, diagnostics
}

func (r *Resolver) resolve(ctx context.Context, agentID string, profileID *uuid.UUID, skillID string) (model.RetrievalProfile, []model.Diagnostic, error) {
	var diagnostics []model.Diagnostic

	var policy *model.AgentPolicy
	if agentID != "" {
		p, err := r.store.SelectActiveAgentPolicy(ctx, agentID, skillID)
		if err != nil && !errors.Is(err, helper.ErrNotFound) {
			return model.RetrievalProfile{}, diagnostics, helper.NewError("select agent policy", err)
		}
		policy = p
	}

	candidates := []*uuid.UUID{}
	if policy != nil && policy.ProfileID != nil {
		candidates = append(candidates, policy.ProfileID)
	}
	if profileID != nil {
		candidates = append(candidates, profileID)
	}

	var base *model.RetrievalProfile
	for _, id := range candidates {
		p, err := r.store.SelectProfile(ctx, *id)
		if errors.Is(err, helper.ErrNotFound) {
			r.logger.Warn("Profile not found, trying next candidate", slog.String("profile_id", id.String()))
			diagnostics = append(diagnostics, model.Diagnostic{
				Component: component,
				Message:   fmt.Sprintf("profile %s not found", id),
				Err:       err,
			})
			continue
		}
		if err != nil {
			return model.RetrievalProfile{}, diagnostics, helper.NewError("select profile", err)
		}
		p.Source = model.ProfileSourceRequested
		base = p
		break
	}

	if base == nil {
		p, err := r.store.SelectProfileBySlug(ctx, model.DefaultProfileSlug)
		switch {
		case errors.Is(err, helper.ErrNotFound):
			builtin := model.DefaultHybridProfile()
			base = &builtin
		case err != nil:
			return model.RetrievalProfile{}, diagnostics, helper.NewError("select default profile", err)
		default:
			p.Source = model.ProfileSourceDefault
			base = p
		}
	}

	if policy == nil {
		return *base, diagnostics, nil
	}

	resolved := policy.Apply(*base)
	resolved.Source = model.ProfileSourceAgentPolicy
	if policy.SkillID != nil {
		resolved.Source = model.ProfileSourceSkillPolicy
	}

	if err := resolved.Validate(); err != nil {
		r.logger.Warn(
			"Agent policy produces an invalid profile, ignoring its overrides",
			slog.String("agent_id", agentID),
			slog.String("policy_id", policy.ID.String()),
			slog.String("error", err.Error()),
		)
		diagnostics = append(diagnostics, model.Diagnostic{
			Component: component,
			Message:   "agent policy overrides ignored",
			Err:       err,
		})
		return *base, diagnostics, nil
	}

	return resolved, diagnostics, nil
}

func (r *Resolver) cached(key cacheKey) (model.RetrievalProfile, bool) {
	if !r.cacheEnabled {
		return model.RetrievalProfile{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.cache[key]
	return p, ok
}

// Invalidate drops every cached profile of agentID
func (r *Resolver) Invalidate(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.cache {
		if k.agentID == agentID {
			delete(r.cache, k)
		}
	}
}

// InvalidateAll drops the whole cache
func (r *Resolver) InvalidateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[cacheKey]model.RetrievalProfile)
}
