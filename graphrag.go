package graphrag

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/siherrmann/graphrag/core/kgview"
	"github.com/siherrmann/graphrag/core/pipeline"
	"github.com/siherrmann/graphrag/core/profile"
	"github.com/siherrmann/graphrag/core/retrieval"
	"github.com/siherrmann/graphrag/core/search"
	"github.com/siherrmann/graphrag/database"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
	loadSql "github.com/siherrmann/graphrag/sql"
)

// graphStore joins the entity and edge handlers into the graph read path
type graphStore struct {
	*database.EntitiesDBHandler
	*database.EdgesDBHandler
}

// GraphRAG wires the stores, resolvers, search adapters and orchestrator
// into one retrieval engine
type GraphRAG struct {
	DB        *helper.Database
	Documents *database.DocumentsDBHandler
	Chunks    *database.ChunksDBHandler
	Entities  *database.EntitiesDBHandler
	Edges     *database.EdgesDBHandler
	Profiles  *database.ProfilesDBHandler
	KGViews   *database.KGViewsDBHandler

	ProfileResolver *profile.Resolver
	ViewResolver    *kgview.Resolver
	Orchestrator    *retrieval.Orchestrator
	// Registry holds the engine metrics, serve it with promhttp.HandlerFor
	Registry *prometheus.Registry

	config *helper.EngineConfiguration
	// Logging
	log *slog.Logger

	mu       sync.RWMutex
	pipeline *pipeline.Pipeline
}

// NewGraphRAG connects to the database, loads the SQL functions of every
// handler and builds the retrieval engine. A nil engineConfig uses the
// defaults.
func NewGraphRAG(dbConfig *helper.DatabaseConfiguration, engineConfig *helper.EngineConfiguration, embeddingDim int) (*GraphRAG, error) {
	if engineConfig == nil {
		engineConfig = helper.DefaultEngineConfiguration()
	}
	if err := engineConfig.Validate(); err != nil {
		return nil, helper.NewError("engine configuration", err)
	}

	// Logger
	logger := helper.NewLogger(os.Stdout, slog.LevelInfo)

	// Initialize database
	db, err := helper.NewDatabase("graphrag", dbConfig, logger)
	if err != nil {
		return nil, helper.NewError("connect database", err)
	}
	err = loadSql.Init(db.Instance)
	if err != nil {
		_ = db.Close()
		return nil, helper.NewError("initialize database extensions", err)
	}

	g := &GraphRAG{
		DB:       db,
		Registry: prometheus.NewRegistry(),
		config:   engineConfig,
		log:      logger,
	}

	// Documents first, chunks reference them.
	// force=false to not reload if functions already exist
	if err := g.initHandlers(embeddingDim); err != nil {
		_ = db.Close()
		return nil, err
	}

	g.ProfileResolver = profile.NewResolver(g.Profiles, logger, engineConfig.CacheProfiles)
	g.ViewResolver = kgview.NewResolver(g.KGViews, logger)
	if err := g.ViewResolver.LoadCatalog(context.Background()); err != nil {
		logger.Warn("KG catalog not loaded, retrying on first query", slog.String("error", err.Error()))
	}

	metrics := retrieval.NewMetrics(engineConfig.MetricsNamespace, g.Registry)
	health := retrieval.NewHealthChecker(engineConfig.AdapterTimeout, metrics, logger,
		retrieval.HealthCheck{Name: "postgres", Critical: true, Check: db.Ping},
		retrieval.HealthCheck{Name: "embedder", Check: g.checkEmbedder},
		retrieval.HealthCheck{Name: "kg_catalog", Check: g.checkCatalog},
	)

	vector := search.NewVectorAdapter(g.embed, g.Chunks, logger)
	keyword := search.NewKeywordAdapter(g.Chunks, logger)
	graph := search.NewGraphAdapter(graphStore{g.Entities, g.Edges}, engineConfig.HighValueLabels, logger)

	g.Orchestrator, err = retrieval.NewOrchestrator(engineConfig, g.ProfileResolver, g.ViewResolver, vector, keyword, graph,
		retrieval.WithLogger(logger),
		retrieval.WithMetrics(metrics),
		retrieval.WithHealthChecker(health),
		retrieval.WithSeedExtractor(g.extractSeeds),
	)
	if err != nil {
		_ = db.Close()
		return nil, helper.NewError("create orchestrator", err)
	}

	return g, nil
}

func (g *GraphRAG) initHandlers(embeddingDim int) error {
	var err error
	g.Documents, err = database.NewDocumentsDBHandler(g.DB, false)
	if err != nil {
		return helper.NewError("create documents handler", err)
	}

	g.Chunks, err = database.NewChunksDBHandler(g.DB, embeddingDim, false)
	if err != nil {
		return helper.NewError("create chunks handler", err)
	}

	g.Entities, err = database.NewEntitiesDBHandler(g.DB, false)
	if err != nil {
		return helper.NewError("create entities handler", err)
	}

	g.Edges, err = database.NewEdgesDBHandler(g.DB, false)
	if err != nil {
		return helper.NewError("create edges handler", err)
	}

	g.Profiles, err = database.NewProfilesDBHandler(g.DB, false)
	if err != nil {
		return helper.NewError("create profiles handler", err)
	}

	g.KGViews, err = database.NewKGViewsDBHandler(g.DB, false)
	if err != nil {
		return helper.NewError("create kg views handler", err)
	}

	return nil
}

// Close closes the database connection
func (g *GraphRAG) Close() error {
	return g.DB.Close()
}

// Config returns the engine configuration
func (g *GraphRAG) Config() *helper.EngineConfiguration {
	return g.config
}

// SetPipeline sets the ingestion pipeline. Its embedder also embeds queries
// and its entity extractor, if any, finds graph seeds.
func (g *GraphRAG) SetPipeline(p *pipeline.Pipeline) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pipeline = p
}

// Pipeline returns the ingestion pipeline, nil until one is set
func (g *GraphRAG) Pipeline() *pipeline.Pipeline {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.pipeline
}

// UseDefaultPipeline sets up semantic chunking with 500 char chunks and a 0.7
// similarity threshold, embedded with all-MiniLM-L6-v2 (384 dimensions)
func (g *GraphRAG) UseDefaultPipeline() error {
	embedder, err := pipeline.DefaultEmbedder()
	if err != nil {
		return helper.NewError("create default embedder", err)
	}

	g.SetPipeline(pipeline.NewPipeline(pipeline.SemanticChunker(embedder, 500, 0.7), embedder))
	return nil
}

// UseDefaultEntityExtractor adds the local NER model to the pipeline. It
// extracts entities during ingestion and graph seeds from queries.
func (g *GraphRAG) UseDefaultEntityExtractor() error {
	extractor, err := pipeline.DefaultEntityExtractor()
	if err != nil {
		return helper.NewError("create default entity extractor", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pipeline == nil {
		return helper.NewError("set entity extractor", fmt.Errorf("pipeline not set, use SetPipeline() first"))
	}
	g.pipeline.SetEntityExtractor(extractor)
	return nil
}

// ProcessAndInsertDocument processes a document by:
// 1. Inserting the document metadata (without content)
// 2. Chunking and embedding the content with the pipeline
// 3. Inserting all chunks into the document's namespace
// 4. Inserting the extracted entities into the graph store
// Returns the number of chunks inserted.
func (g *GraphRAG) ProcessAndInsertDocument(ctx context.Context, doc *model.Document) (int, error) {
	p := g.Pipeline()
	if p == nil {
		return 0, helper.NewError("process document", fmt.Errorf("pipeline not set, use SetPipeline() first"))
	}
	if doc.Content == "" {
		return 0, helper.NewError("process document", fmt.Errorf("document content is empty"))
	}

	content := doc.Content
	doc.Content = ""

	if err := g.Documents.InsertDocument(ctx, doc); err != nil {
		return 0, helper.NewError("insert document", err)
	}

	g.log.Info("Inserted document", slog.String("document_id", doc.RID.String()), slog.String("title", doc.Title))

	result, err := p.ProcessWithExtraction(ctx, content)
	if err != nil {
		return 0, helper.NewError("process chunks", err)
	}

	g.log.Info("Processed document into chunks", slog.Int("num_chunks", len(result.Chunks)), slog.Int("num_entities", len(result.Entities)), slog.String("document_id", doc.RID.String()))

	for i, chunk := range result.Chunks {
		chunk.DocumentID = doc.ID
		chunk.Namespace = doc.Namespace
		if err := g.Chunks.InsertChunk(ctx, chunk); err != nil {
			return i, helper.NewError(fmt.Sprintf("insert chunk %d", i), err)
		}
	}

	for _, entity := range result.Entities {
		if entity.Properties == nil {
			entity.Properties = model.Metadata{}
		}
		entity.Properties["document_rid"] = doc.RID.String()
		if err := g.Entities.InsertEntity(ctx, entity); err != nil {
			return len(result.Chunks), helper.NewError(fmt.Sprintf("insert entity %s", entity.Name), err)
		}
	}

	return len(result.Chunks), nil
}

// Query retrieves the token-budgeted, cited evidence context of a query
func (g *GraphRAG) Query(ctx context.Context, req retrieval.QueryRequest) (*retrieval.QueryResponse, error) {
	return g.Orchestrator.Query(ctx, req)
}

// HealthCheck probes the database, the embedder and the kg catalog
func (g *GraphRAG) HealthCheck(ctx context.Context) retrieval.HealthReport {
	return g.Orchestrator.HealthCheck(ctx)
}

// ReloadCatalog reloads the node/edge type catalog and drops cached views
func (g *GraphRAG) ReloadCatalog(ctx context.Context) error {
	return g.ViewResolver.ReloadCatalog(ctx)
}

// InvalidateAgent drops the cached profile and views of an agent after its
// policies or views changed
func (g *GraphRAG) InvalidateAgent(agentID string) {
	g.ProfileResolver.Invalidate(agentID)
	g.ViewResolver.Invalidate(agentID)
}

// ChangeIndexType changes the vector index type between HNSW and IVFFlat
func (g *GraphRAG) ChangeIndexType(ctx context.Context, indexType string, params map[string]interface{}) error {
	return g.Chunks.ChangeIndexType(ctx, indexType, params)
}

func (g *GraphRAG) embed(ctx context.Context, text string) ([]float32, error) {
	p := g.Pipeline()
	if p == nil || p.Embedder == nil {
		return nil, fmt.Errorf("pipeline with embedder not set, use SetPipeline() first")
	}
	return p.Embedder(ctx, text)
}

// extractSeeds returns no seeds without an entity extractor so the
// orchestrator uses its heuristic
func (g *GraphRAG) extractSeeds(ctx context.Context, text string) ([]string, error) {
	p := g.Pipeline()
	if p == nil || p.EntityExtractor == nil {
		return nil, nil
	}
	entities, err := p.EntityExtractor(ctx, text)
	if err != nil {
		return nil, err
	}
	return pipeline.EntityNames(entities), nil
}

func (g *GraphRAG) checkEmbedder(ctx context.Context) error {
	_, err := g.embed(ctx, "health check")
	return err
}

func (g *GraphRAG) checkCatalog(ctx context.Context) error {
	if g.ViewResolver.CatalogLoaded() {
		return nil
	}
	return g.ViewResolver.LoadCatalog(ctx)
}
