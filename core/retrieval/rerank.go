package retrieval

import (
	"context"

	"github.com/siherrmann/graphrag/model"
)

// Reranker re-scores fused results after fusion. It is only invoked when
// the resolved profile enables reranking. Implementations may reorder or
// drop results but must not add new ones.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []model.FusedResult) ([]model.FusedResult, error)
}

// RerankFunc adapts a function to the Reranker interface
type RerankFunc func(ctx context.Context, query string, results []model.FusedResult) ([]model.FusedResult, error)

func (f RerankFunc) Rerank(ctx context.Context, query string, results []model.FusedResult) ([]model.FusedResult, error) {
	return f(ctx, query, results)
}
