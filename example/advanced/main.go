package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/siherrmann/graphrag"
	"github.com/siherrmann/graphrag/core/pipeline"
	"github.com/siherrmann/graphrag/core/retrieval"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
)

const drugContent = `Aspirin is a nonsteroidal anti-inflammatory drug used to treat headache and fever.
Aspirin irreversibly inhibits the COX1 enzyme, which reduces the production of thromboxane.

Ibuprofen is another common analgesic. It is often used to treat migraine attacks.
Both drugs can irritate the stomach lining when taken for a long time.`

const diseaseContent = `Migraine is a primary headache disorder with recurrent attacks of moderate to severe pain.
Typical migraine treatments include triptans and nonsteroidal anti-inflammatory drugs.

Tension headache is the most common form of headache and usually responds to simple analgesics.`

func main() {
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	// Engine configuration from YAML if given, else the defaults
	engineConfig := helper.DefaultEngineConfiguration()
	if path := os.Getenv("GRAPHRAG_CONFIG"); path != "" {
		engineConfig, err = helper.LoadEngineConfiguration(path)
		if err != nil {
			log.Fatalf("Failed to load engine configuration: %v", err)
		}
	}

	// OpenAI embeddings when a key is set, the local model otherwise
	embeddingDim := pipeline.DefaultEmbeddingDimension
	var embedder pipeline.EmbedFunc
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		embeddingDim = pipeline.OpenAIEmbeddingDimensions[pipeline.DefaultOpenAIEmbeddingModel]
		embedder, err = pipeline.OpenAIEmbedder(pipeline.NewOpenAIClient(key, os.Getenv("OPENAI_BASE_URL")), "")
	} else {
		embedder, err = pipeline.DefaultEmbedder()
	}
	if err != nil {
		log.Fatalf("Failed to create embedder: %v", err)
	}

	g, err := graphrag.NewGraphRAG(dbConfig, engineConfig, embeddingDim)
	if err != nil {
		log.Fatalf("Failed to create graphrag: %v", err)
	}
	defer g.Close()

	g.SetPipeline(pipeline.NewPipeline(pipeline.SentenceChunker(3, 1), embedder))

	ctx := context.Background()

	docs := []*model.Document{
		{Title: "Common Analgesics", Source: "advanced_example", URL: "https://example.org/analgesics", Namespace: "pharma", Content: drugContent},
		{Title: "Headache Disorders", Source: "advanced_example", URL: "https://example.org/headache", Namespace: "pharma", Content: diseaseContent},
	}
	for _, doc := range docs {
		n, err := g.ProcessAndInsertDocument(ctx, doc)
		if err != nil {
			log.Fatalf("Failed to ingest %s: %v", doc.Title, err)
		}
		fmt.Printf("Ingested %q into %d chunks\n", doc.Title, n)
	}

	// Knowledge graph
	entities := map[string]*model.Entity{
		"Aspirin":   {Name: "Aspirin", Labels: []string{"Drug"}},
		"Ibuprofen": {Name: "Ibuprofen", Labels: []string{"Drug"}},
		"Headache":  {Name: "Headache", Labels: []string{"Disease"}},
		"Migraine":  {Name: "Migraine", Labels: []string{"Disease"}},
		"COX1":      {Name: "COX1", Labels: []string{"Protein"}},
	}
	for _, e := range entities {
		if err := g.Entities.InsertEntity(ctx, e); err != nil {
			log.Fatalf("Failed to insert entity %s: %v", e.Name, err)
		}
	}
	edges := []struct{ from, edgeType, to string }{
		{"Aspirin", "TREATS", "Headache"},
		{"Aspirin", "INHIBITS", "COX1"},
		{"Ibuprofen", "TREATS", "Migraine"},
		{"Migraine", "SUBTYPE_OF", "Headache"},
	}
	for _, e := range edges {
		edge := &model.Edge{SourceEntityID: entities[e.from].ID, TargetEntityID: entities[e.to].ID, EdgeType: e.edgeType, Weight: 1}
		if err := g.Edges.InsertEdge(ctx, edge); err != nil {
			log.Fatalf("Failed to insert edge: %v", err)
		}
	}

	// Catalog and a view restricting the agent to drugs, diseases and TREATS
	nodeTypes := map[string]uuid.UUID{}
	for _, name := range []string{"Drug", "Disease", "Protein"} {
		t, err := g.KGViews.InsertNodeType(ctx, name)
		if err != nil {
			log.Fatalf("Failed to insert node type: %v", err)
		}
		nodeTypes[name] = t.ID
	}
	treats, err := g.KGViews.InsertEdgeType(ctx, "TREATS")
	if err != nil {
		log.Fatalf("Failed to insert edge type: %v", err)
	}
	if _, err := g.KGViews.InsertEdgeType(ctx, "INHIBITS"); err != nil {
		log.Fatalf("Failed to insert edge type: %v", err)
	}
	err = g.KGViews.InsertKGView(ctx, &model.KGViewRecord{
		AgentID:            "pharma-agent",
		AllowedNodeTypeIDs: []uuid.UUID{nodeTypes["Drug"], nodeTypes["Disease"]},
		AllowedEdgeTypeIDs: []uuid.UUID{treats.ID},
		MaxHops:            2,
		ResultLimit:        20,
		Strategy:           model.TraversalBFS,
		IsActive:           true,
	})
	if err != nil {
		log.Fatalf("Failed to insert kg view: %v", err)
	}
	if err := g.ReloadCatalog(ctx); err != nil {
		log.Fatalf("Failed to reload catalog: %v", err)
	}

	// Agent policy turning on the graph modality
	graphWeight, threshold := 0.4, 0.3
	err = g.Profiles.InsertAgentPolicy(ctx, &model.AgentPolicy{
		AgentID:             "pharma-agent",
		GraphWeight:         &graphWeight,
		SimilarityThreshold: &threshold,
		IsActive:            true,
	})
	if err != nil {
		log.Fatalf("Failed to insert agent policy: %v", err)
	}

	for _, agent := range []string{"generic-agent", "pharma-agent"} {
		resp, err := g.Query(ctx, retrieval.QueryRequest{
			Query:     "Which drugs treat Headache and how does Aspirin work?",
			AgentID:   agent,
			SessionID: "advanced-example",
			Namespace: "pharma",
			MaxTokens: 800,
		})
		if err != nil {
			log.Fatalf("Failed to query: %v", err)
		}

		fmt.Printf("\n=== %s (profile %s, %s) ===\n", agent, resp.Profile.Slug, resp.Profile.Source)
		fmt.Printf("Vector: %d, keyword: %d, graph: %d, fused: %d\n",
			resp.SearchStats.VectorCount, resp.SearchStats.KeywordCount, resp.SearchStats.GraphCount, resp.SearchStats.FusedCount)
		if !resp.SearchStats.GraphSearched {
			fmt.Printf("Graph skipped: %s\n", resp.SearchStats.GraphSkipReason)
		}
		for _, d := range resp.Diagnostics {
			fmt.Printf("Diagnostic: %s\n", d.Error())
		}
		for _, entry := range resp.EvidenceChain {
			fmt.Printf("%s rank %d score %.4f sources %v\n", entry.Citation, entry.Rank, entry.CombinedScore, entry.Sources)
			for _, node := range entry.GraphPath {
				fmt.Printf("    node %s %v\n", node.Properties.String("name"), node.Labels)
			}
		}
		fmt.Printf("\n%s\n\nReferences:\n%s\n", resp.Context, resp.Bibliography)
	}

	report := g.HealthCheck(ctx)
	fmt.Printf("\nHealth: %s\n", report.Status)
	for name, c := range report.Components {
		fmt.Printf("  %s: %s (%s) %s\n", name, c.Status, c.Latency, c.Error)
	}

	fmt.Println("\nAdvanced example completed successfully!")
}
