package main

import (
	"context"
	"fmt"
	"log"

	"github.com/siherrmann/graphrag"
	"github.com/siherrmann/graphrag/core/retrieval"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
)

const sampleContent = `This is a sample document about graph databases.

Graph databases are designed to store and query data with complex relationships.
They use nodes to represent entities and edges to represent relationships between them.

PostgreSQL with extensions like pgvector can be used to build powerful retrieval systems.
Full-text search finds exact terms, while pgvector enables vector similarity search.

Combining these features allows for hybrid retrieval strategies that leverage both semantic similarity
and lexical matches for more sophisticated information retrieval.`

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration using the container port
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	g, err := graphrag.NewGraphRAG(dbConfig, nil, 384)
	if err != nil {
		log.Fatalf("Failed to create graphrag: %v", err)
	}
	defer g.Close()

	// Set up the default pipeline (semantic chunking + embeddings)
	if err := g.UseDefaultPipeline(); err != nil {
		log.Fatalf("Failed to set up pipeline: %v", err)
	}

	doc := &model.Document{
		Title:   "Introduction to Graph Databases",
		Source:  "basic_example",
		URL:     "https://example.org/graph-databases",
		Content: sampleContent,
		Metadata: model.Metadata{
			"author": "Example Author",
			"topic":  "graph databases",
		},
	}

	ctx := context.Background()

	fmt.Println("Ingesting document...")
	numChunks, err := g.ProcessAndInsertDocument(ctx, doc)
	if err != nil {
		log.Fatalf("Failed to process and insert document: %v", err)
	}
	fmt.Printf("Document inserted with ID: %s\n", doc.RID)
	fmt.Printf("Inserted %d chunks\n", numChunks)

	queryText := "What are graph databases?"
	fmt.Printf("\nQuerying: %s\n", queryText)

	// The default "hybrid" profile fuses vector and keyword results
	resp, err := g.Query(ctx, retrieval.QueryRequest{
		Query:     queryText,
		AgentID:   "basic-agent",
		MaxTokens: 500,
	})
	if err != nil {
		log.Fatalf("Failed to query: %v", err)
	}

	fmt.Printf("\nProfile: %s (%s)\n", resp.Profile.Slug, resp.Profile.Source)
	fmt.Printf("Vector: %d, keyword: %d, graph: %d (%s)\n",
		resp.SearchStats.VectorCount, resp.SearchStats.KeywordCount, resp.SearchStats.GraphCount, resp.SearchStats.GraphSkipReason)

	for _, entry := range resp.EvidenceChain {
		fmt.Printf("\n--- Rank %d %s ---\n", entry.Rank, entry.Citation)
		fmt.Printf("Score: %.4f (vector %.3f, keyword %.3f)\n", entry.CombinedScore, entry.VectorScore, entry.KeywordScore)
		fmt.Printf("Sources: %v\n", entry.Sources)
	}

	fmt.Printf("\nContext (%d tokens):\n%s\n", resp.TotalTokens, resp.Context)
	fmt.Printf("\nReferences:\n%s\n", resp.Bibliography)

	fmt.Println("\nBasic example completed successfully!")
}
