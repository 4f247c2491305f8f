package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
)

// EmbedFunc turns query text into an embedding
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// VectorIndex is the similarity read path of the chunk store
type VectorIndex interface {
	SelectChunksBySimilarity(ctx context.Context, embedding []float32, limit int, namespace string, filter model.MetadataFilter) ([]*model.Chunk, error)
}

// VectorAdapter searches chunks by embedding similarity
type VectorAdapter struct {
	embed  EmbedFunc
	index  VectorIndex
	logger *slog.Logger
}

// NewVectorAdapter creates a vector adapter
func NewVectorAdapter(embed EmbedFunc, index VectorIndex, logger *slog.Logger) *VectorAdapter {
	if logger == nil {
		logger = helper.DiscardLogger()
	}
	return &VectorAdapter{
		embed:  embed,
		index:  index,
		logger: logger,
	}
}

func (a *VectorAdapter) Modality() model.Modality {
	return model.ModalityVector
}

// Search embeds the query and returns the chunks at or above the profile's
// similarity threshold, best first.
func (a *VectorAdapter) Search(ctx context.Context, req Request) Outcome {
	start := time.Now()
	if a.embed == nil || a.index == nil {
		return failed(model.ModalityVector, "vector backend not configured", nil, start)
	}

	embedding, err := a.embed(ctx, req.Query)
	if err != nil {
		a.logger.Warn("Query embedding failed", slog.String("query", req.Query), slog.String("modality", string(model.ModalityVector)), slog.String("error", err.Error()))
		return failed(model.ModalityVector, "query embedding failed", err, start)
	}
	if len(embedding) == 0 {
		return failed(model.ModalityVector, "query embedding failed", fmt.Errorf("embedder returned an empty vector"), start)
	}

	filter := req.Profile.MetadataFilter.And(req.Filter)
	if filter.IsImpossible() {
		a.logger.Debug("Metadata filters contradict each other", slog.String("query", req.Query))
		return succeeded(model.ModalityVector, nil, start)
	}

	chunks, err := a.index.SelectChunksBySimilarity(ctx, embedding, req.Profile.TopK, req.Namespace, filter)
	if err != nil {
		a.logger.Warn("Vector search failed", slog.String("query", req.Query), slog.String("modality", string(model.ModalityVector)), slog.String("error", err.Error()))
		return failed(model.ModalityVector, "vector search failed", err, start)
	}

	results := make([]model.ModalityResult, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.Similarity < req.Profile.SimilarityThreshold {
			continue
		}
		results = append(results, model.NewVectorResult(chunk))
	}

	return succeeded(model.ModalityVector, truncate(results, req.Profile.TopK), start)
}
