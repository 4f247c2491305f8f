package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
)

var errPipelineIncomplete = errors.New("pipeline needs a chunker and an embedder")

// ChunkFunc splits text into ordered chunks
type ChunkFunc func(text string) ([]TextChunk, error)

// EmbedFunc generates the embedding of a text
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// EntityExtractFunc extracts named entities from a text
type EntityExtractFunc func(ctx context.Context, text string) ([]*model.Entity, error)

// TextChunk is one piece of a document before embedding
type TextChunk struct {
	Content    string
	ChunkIndex int
	StartPos   int
	EndPos     int
	Metadata   model.Metadata
}

// Pipeline combines chunking, embedding and optional entity extraction
type Pipeline struct {
	Chunker         ChunkFunc
	Embedder        EmbedFunc
	EntityExtractor EntityExtractFunc // Optional
}

// NewPipeline creates a new processing pipeline
func NewPipeline(chunker ChunkFunc, embedder EmbedFunc) *Pipeline {
	return &Pipeline{
		Chunker:  chunker,
		Embedder: embedder,
	}
}

// SetEntityExtractor sets the entity extraction function
func (p *Pipeline) SetEntityExtractor(extractor EntityExtractFunc) {
	p.EntityExtractor = extractor
}

// ProcessingResult contains the embedded chunks and the distinct entities
// found in them
type ProcessingResult struct {
	Chunks   []*model.Chunk
	Entities []*model.Entity
}

// Process returns the embedded chunks of text
func (p *Pipeline) Process(ctx context.Context, text string) ([]*model.Chunk, error) {
	result, err := p.ProcessWithExtraction(ctx, text)
	if err != nil {
		return nil, err
	}
	return result.Chunks, nil
}

// ProcessWithExtraction chunks and embeds text and, if an extractor is set,
// collects its entities. Extraction errors skip the chunk's entities.
func (p *Pipeline) ProcessWithExtraction(ctx context.Context, text string) (*ProcessingResult, error) {
	if p.Chunker == nil || p.Embedder == nil {
		return nil, helper.NewError("process", errPipelineIncomplete)
	}

	textChunks, err := p.Chunker(text)
	if err != nil {
		return nil, helper.NewError("chunk", err)
	}

	result := &ProcessingResult{Chunks: make([]*model.Chunk, 0, len(textChunks))}
	seen := map[string]bool{}
	for _, tc := range textChunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		embedding, err := p.Embedder(ctx, tc.Content)
		if err != nil {
			return nil, helper.NewError("embed", err)
		}

		metadata := tc.Metadata.Clone()
		metadata["start_pos"] = tc.StartPos
		metadata["end_pos"] = tc.EndPos
		result.Chunks = append(result.Chunks, &model.Chunk{
			Content:    tc.Content,
			Embedding:  embedding,
			ChunkIndex: tc.ChunkIndex,
			Metadata:   metadata,
		})

		if p.EntityExtractor == nil {
			continue
		}
		entities, err := p.EntityExtractor(ctx, tc.Content)
		if err != nil {
			continue
		}
		for _, e := range entities {
			key := strings.ToLower(e.Name) + "|" + strings.Join(e.Labels, ",")
			if e.Name == "" || seen[key] {
				continue
			}
			seen[key] = true
			result.Entities = append(result.Entities, e)
		}
	}

	return result, nil
}
