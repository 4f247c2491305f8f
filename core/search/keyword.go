package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
)

// KeywordIndex is the full-text read path of the chunk store
type KeywordIndex interface {
	SelectChunksByKeyword(ctx context.Context, query string, limit int, namespace string, filter model.MetadataFilter) ([]*model.Chunk, error)
}

// KeywordAdapter searches chunks by full-text rank. Without an index it
// returns empty results.
type KeywordAdapter struct {
	index  KeywordIndex
	logger *slog.Logger
}

// NewKeywordAdapter creates a keyword adapter, index may be nil
func NewKeywordAdapter(index KeywordIndex, logger *slog.Logger) *KeywordAdapter {
	if logger == nil {
		logger = helper.DiscardLogger()
	}
	return &KeywordAdapter{
		index:  index,
		logger: logger,
	}
}

func (a *KeywordAdapter) Modality() model.Modality {
	return model.ModalityKeyword
}

// Search returns chunks whose rank reaches the profile's minimum keyword score
func (a *KeywordAdapter) Search(ctx context.Context, req Request) Outcome {
	start := time.Now()
	if a.index == nil || strings.TrimSpace(req.Query) == "" {
		return succeeded(model.ModalityKeyword, nil, start)
	}

	filter := req.Profile.MetadataFilter.And(req.Filter)
	if filter.IsImpossible() {
		return succeeded(model.ModalityKeyword, nil, start)
	}

	chunks, err := a.index.SelectChunksByKeyword(ctx, req.Query, req.Profile.TopK, req.Namespace, filter)
	if err != nil {
		a.logger.Warn("Keyword search failed", slog.String("query", req.Query), slog.String("modality", string(model.ModalityKeyword)), slog.String("error", err.Error()))
		return failed(model.ModalityKeyword, "keyword search failed", err, start)
	}

	results := make([]model.ModalityResult, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.KeywordRank < req.Profile.MinKeywordScore {
			continue
		}
		results = append(results, model.NewKeywordResult(chunk))
	}

	return succeeded(model.ModalityKeyword, truncate(results, req.Profile.TopK), start)
}
