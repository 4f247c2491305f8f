package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/graphrag/core/evidence"
	"github.com/siherrmann/graphrag/core/fusion"
	"github.com/siherrmann/graphrag/core/search"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const component = "orchestrator"

// ErrEmptyQuery is returned for a query without text
var ErrEmptyQuery = errors.New("query text is required")

// ProfileResolver resolves the retrieval profile of a query
type ProfileResolver interface {
	Resolve(ctx context.Context, agentID string, profileID *uuid.UUID, skillID string) (model.RetrievalProfile, []model.Diagnostic)
}

// ViewResolver resolves the knowledge graph view of a query
type ViewResolver interface {
	Resolve(ctx context.Context, agentID string, skillID string) (*model.KnowledgeGraphView, []model.Diagnostic)
	BuildFilters(view *model.KnowledgeGraphView) model.GraphFilters
}

// SeedExtractFunc returns the entity names of a query used as graph seeds
type SeedExtractFunc func(ctx context.Context, text string) ([]string, error)

// QueryRequest is one retrieval request
type QueryRequest struct {
	Query          string               `json:"query"`
	AgentID        string               `json:"agent_id"`
	SessionID      string               `json:"session_id,omitempty"`
	ProfileID      *uuid.UUID           `json:"profile_id,omitempty"`
	SkillID        string               `json:"skill_id,omitempty"`
	MetadataFilter model.MetadataFilter `json:"metadata_filter,omitempty"`
	Namespace      string               `json:"namespace,omitempty"`
	MaxTokens      int                  `json:"max_tokens,omitempty"`
}

// QueryResponse is the evidence context of a query with its statistics and
// every non-fatal problem absorbed on the way
type QueryResponse struct {
	model.EvidenceContext
	SearchStats model.SearchStats         `json:"search_stats"`
	SessionID   string                    `json:"session_id,omitempty"`
	Profile     model.RetrievalProfile    `json:"profile"`
	KGView      *model.KnowledgeGraphView `json:"kg_view,omitempty"`
	Diagnostics []model.Diagnostic        `json:"diagnostics"`
	State       model.QueryState          `json:"state"`
}

// Orchestrator runs a query through profile resolution, concurrent
// modality search, fusion and evidence building
type Orchestrator struct {
	profiles ProfileResolver
	views    ViewResolver
	vector   search.Adapter
	keyword  search.Adapter
	graph    search.Adapter
	fuser    *fusion.Fuser
	builder  *evidence.Builder
	reranker Reranker
	seeds    SeedExtractFunc
	config   *helper.EngineConfiguration
	metrics  *Metrics
	health   *HealthChecker
	tracer   trace.Tracer
	logger   *slog.Logger
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithReranker sets the post-fusion reranker
func WithReranker(r Reranker) Option {
	return func(o *Orchestrator) { o.reranker = r }
}

// WithSeedExtractor replaces the capitalized-token seed heuristic. The
// heuristic is still used when the extractor fails or finds nothing.
func WithSeedExtractor(f SeedExtractFunc) Option {
	return func(o *Orchestrator) { o.seeds = f }
}

// WithMetrics records query metrics
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithHealthChecker sets the checks run by HealthCheck
func WithHealthChecker(h *HealthChecker) Option {
	return func(o *Orchestrator) { o.health = h }
}

// WithTracer sets the tracer of the query spans
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithBuilder sets the evidence builder
func WithBuilder(b *evidence.Builder) Option {
	return func(o *Orchestrator) { o.builder = b }
}

// NewOrchestrator creates an orchestrator. Nil adapters contribute nothing;
// a nil config uses the defaults.
func NewOrchestrator(config *helper.EngineConfiguration, profiles ProfileResolver, views ViewResolver, vector, keyword, graph search.Adapter, opts ...Option) (*Orchestrator, error) {
	if config == nil {
		config = helper.DefaultEngineConfiguration()
	}
	if err := config.Validate(); err != nil {
		return nil, helper.NewError("orchestrator configuration", err)
	}

	o := &Orchestrator{
		profiles: profiles,
		views:    views,
		vector:   vector,
		keyword:  keyword,
		graph:    graph,
		fuser:    fusion.NewFuser(config.RRFK),
		config:   config,
		tracer:   otel.Tracer("github.com/siherrmann/graphrag/core/retrieval"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = helper.DiscardLogger()
	}
	if o.builder == nil {
		o.builder = evidence.NewBuilder(evidence.NewTiktokenTokenizer(config.TokenizerModel, o.logger), o.logger)
	}
	o.logger = o.logger.With(slog.String("component", component))

	return o, nil
}

// queryState tracks the lifecycle of one query
type queryState struct {
	state       model.QueryState
	diagnostics []model.Diagnostic
	span        trace.Span
	logger      *slog.Logger
}

func (q *queryState) enter(state model.QueryState) {
	q.logger.Debug("Query state", slog.String("from", string(q.state)), slog.String("to", string(state)))
	q.state = state
	q.span.AddEvent(string(state))
}

func (q *queryState) absorb(diagnostics ...model.Diagnostic) {
	for _, d := range diagnostics {
		q.logger.Warn("Degraded query", slog.String("diagnostic_component", d.Component), slog.String("modality", string(d.Modality)), slog.String("error", d.Error()))
	}
	q.diagnostics = append(q.diagnostics, diagnostics...)
}

// Query retrieves the evidence context of req. Adapter failures, a missing
// view or catalog and an unreachable profile store are absorbed into
// diagnostics; only an unusable request or profile returns an error.
func (o *Orchestrator) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "graphrag.query", trace.WithAttributes(
		attribute.String("agent_id", req.AgentID),
		attribute.String("skill_id", req.SkillID),
		attribute.String("session_id", req.SessionID),
	))
	defer span.End()

	q := &queryState{
		span:   span,
		logger: o.logger.With(slog.String("agent_id", req.AgentID), slog.String("query", req.Query)),
	}
	stats := model.SearchStats{}

	fail := func(err error) (*QueryResponse, error) {
		q.enter(model.QueryStateFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.metrics.recordQuery(model.QueryStateFailed, stats)
		return nil, err
	}

	if strings.TrimSpace(req.Query) == "" {
		return fail(helper.NewError("query", ErrEmptyQuery))
	}

	// Resolve
	q.enter(model.QueryStateResolving)
	profile := o.resolveProfile(ctx, req, q)
	if err := profile.Validate(); err != nil {
		return fail(helper.NewError("resolve profile", err))
	}

	var view *model.KnowledgeGraphView
	filters := model.DefaultGraphFilters()
	if o.views != nil {
		var diagnostics []model.Diagnostic
		view, diagnostics = o.views.Resolve(ctx, req.AgentID, req.SkillID)
		q.absorb(diagnostics...)
		filters = o.views.BuildFilters(view)
	}
	span.SetAttributes(
		attribute.String("profile", profile.Slug),
		attribute.String("profile_source", string(profile.Source)),
		attribute.Bool("kg_view", view != nil),
	)

	// Search
	q.enter(model.QueryStateSearching)
	searchStart := time.Now()
	searchReq := search.Request{
		Query:        req.Query,
		Profile:      profile,
		Filter:       req.MetadataFilter,
		Namespace:    req.Namespace,
		GraphFilters: filters,
	}
	searchGraph, skipReason := o.planGraphSearch(ctx, profile, view, &searchReq, q)
	stats.GraphSearched = searchGraph
	stats.GraphSkipReason = skipReason

	var outcomes [3]search.Outcome
	var g errgroup.Group
	g.Go(func() error {
		outcomes[0] = o.run(ctx, o.vector, model.ModalityVector, searchReq, o.config.AdapterTimeout)
		return nil
	})
	g.Go(func() error {
		outcomes[1] = o.run(ctx, o.keyword, model.ModalityKeyword, searchReq, o.config.AdapterTimeout)
		return nil
	})
	if searchGraph {
		g.Go(func() error {
			outcomes[2] = o.run(ctx, o.graph, model.ModalityGraph, searchReq, o.config.GraphTimeout)
			return nil
		})
	} else {
		outcomes[2] = search.Outcome{Modality: model.ModalityGraph, Results: []model.ModalityResult{}}
	}
	_ = g.Wait()

	for i, outcome := range outcomes {
		if outcome.Diagnostic != nil {
			q.absorb(*outcome.Diagnostic)
		}
		o.metrics.recordSearch(model.Modalities[i], len(outcome.Results), outcome.Failed(), i < 2 || searchGraph)
	}
	stats.VectorCount = len(outcomes[0].Results)
	stats.KeywordCount = len(outcomes[1].Results)
	stats.GraphCount = len(outcomes[2].Results)
	stats.SearchTime = time.Since(searchStart)

	// Fuse
	q.enter(model.QueryStateFusing)
	fusionStart := time.Now()
	fused := o.fuser.Fuse(outcomes[0].Results, outcomes[1].Results, outcomes[2].Results, profile.Weights)
	fused, stats.Reranked = o.rerank(ctx, req.Query, profile, fused, q)
	stats.FusedCount = len(fused)
	stats.FusionTime = time.Since(fusionStart)

	// Build evidence
	q.enter(model.QueryStateBuilding)
	buildStart := time.Now()
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = profile.MaxContextTokens
	}
	if maxTokens <= 0 {
		maxTokens = o.config.DefaultMaxTokens
	}
	evidenceContext := o.builder.Build(fused, maxTokens)
	stats.ContextBuildTime = time.Since(buildStart)
	stats.TotalTime = time.Since(start)

	q.enter(model.QueryStateDone)
	o.metrics.recordQuery(model.QueryStateDone, stats)
	span.SetAttributes(
		attribute.Int("vector_count", stats.VectorCount),
		attribute.Int("keyword_count", stats.KeywordCount),
		attribute.Int("graph_count", stats.GraphCount),
		attribute.Int("total_chunks", evidenceContext.TotalChunks),
	)
	q.logger.Debug("Query done",
		slog.Duration("search_time", stats.SearchTime),
		slog.Duration("fusion_time", stats.FusionTime),
		slog.Duration("context_build_time", stats.ContextBuildTime),
		slog.Int("total_chunks", evidenceContext.TotalChunks),
	)

	diagnostics := q.diagnostics
	if diagnostics == nil {
		diagnostics = []model.Diagnostic{}
	}
	return &QueryResponse{
		EvidenceContext: evidenceContext,
		SearchStats:     stats,
		SessionID:       req.SessionID,
		Profile:         profile,
		KGView:          view,
		Diagnostics:     diagnostics,
		State:           q.state,
	}, nil
}

func (o *Orchestrator) resolveProfile(ctx context.Context, req QueryRequest, q *queryState) model.RetrievalProfile {
	if o.profiles == nil {
		q.absorb(model.Diagnostic{Component: component, Message: "no profile resolver configured, using fallback profile"})
		return model.FallbackProfile()
	}
	profile, diagnostics := o.profiles.Resolve(ctx, req.AgentID, req.ProfileID, req.SkillID)
	q.absorb(diagnostics...)
	return profile
}

// planGraphSearch decides whether the graph adapter runs and sets its seeds
func (o *Orchestrator) planGraphSearch(ctx context.Context, profile model.RetrievalProfile, view *model.KnowledgeGraphView, req *search.Request, q *queryState) (bool, string) {
	if profile.Weights.Graph <= 0 {
		return false, "graph weight is zero"
	}
	if o.graph == nil {
		return false, "graph adapter not configured"
	}
	if o.config.RequireKGView && view == nil {
		return false, "no kg view for agent"
	}

	req.Seeds = o.extractSeeds(ctx, req.Query, q)
	if len(req.Seeds) == 0 {
		return false, "no seed entities in query"
	}
	return true, ""
}

func (o *Orchestrator) extractSeeds(ctx context.Context, query string, q *queryState) []string {
	if o.seeds != nil {
		seeds, err := o.seeds(ctx, query)
		if err != nil {
			q.absorb(model.Diagnostic{Component: component, Modality: model.ModalityGraph, Message: "seed extraction failed, using heuristic", Err: err})
		} else if len(seeds) > 0 {
			if len(seeds) > o.config.SeedLimit {
				seeds = seeds[:o.config.SeedLimit]
			}
			return seeds
		}
	}
	return search.ExtractSeeds(query, o.config.SeedLimit)
}

// run calls adapter with its own deadline. An adapter that does not return
// in time is reported as timed out and its late result is discarded.
func (o *Orchestrator) run(ctx context.Context, adapter search.Adapter, modality model.Modality, req search.Request, timeout time.Duration) search.Outcome {
	start := time.Now()
	if adapter == nil {
		return search.Outcome{Modality: modality, Results: []model.ModalityResult{}}
	}

	ctx, span := o.tracer.Start(ctx, "graphrag.search."+string(modality))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan search.Outcome, 1)
	go func() {
		done <- adapter.Search(ctx, req)
	}()

	var outcome search.Outcome
	select {
	case outcome = <-done:
	case <-ctx.Done():
		outcome = search.Outcome{
			Modality: modality,
			Results:  []model.ModalityResult{},
			Diagnostic: &model.Diagnostic{
				Component: component,
				Modality:  modality,
				Message:   fmt.Sprintf("%s search timed out after %s", modality, timeout),
				Err:       ctx.Err(),
			},
			Duration: time.Since(start),
		}
	}
	if outcome.Results == nil {
		outcome.Results = []model.ModalityResult{}
	}

	span.SetAttributes(attribute.Int("results", len(outcome.Results)))
	if outcome.Diagnostic != nil {
		span.RecordError(outcome.Diagnostic)
		span.SetStatus(codes.Error, outcome.Diagnostic.Message)
	}
	return outcome
}

func (o *Orchestrator) rerank(ctx context.Context, query string, profile model.RetrievalProfile, fused []model.FusedResult, q *queryState) ([]model.FusedResult, bool) {
	if !profile.RerankEnabled || len(fused) == 0 {
		return fused, false
	}
	if o.reranker == nil {
		q.logger.Debug("Reranking enabled but no reranker configured", slog.String("reranker_model", profile.RerankerModel))
		return fused, false
	}

	reranked, err := o.reranker.Rerank(ctx, query, fused)
	if err != nil {
		q.absorb(model.Diagnostic{Component: "reranker", Message: "reranking failed, keeping fused order", Err: err})
		return fused, false
	}

	known := make(map[string]bool, len(fused))
	for _, r := range fused {
		known[r.ID] = true
	}
	out := make([]model.FusedResult, 0, len(reranked))
	for _, r := range reranked {
		if !known[r.ID] {
			continue
		}
		known[r.ID] = false
		r.Rank = len(out) + 1
		out = append(out, r)
	}
	return out, true
}

// HealthCheck probes every backing component independently of any query
func (o *Orchestrator) HealthCheck(ctx context.Context) HealthReport {
	if o.health == nil {
		return HealthReport{Status: HealthStatusHealthy, Components: map[string]ComponentHealth{}, CheckedAt: time.Now()}
	}
	return o.health.Check(ctx)
}
