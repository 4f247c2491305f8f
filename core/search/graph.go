package search

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/siherrmann/graphrag/core/graph"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
)

const (
	pathLengthPenalty = 0.2
	highValueBonus    = 0.1
)

// GraphStore is the read path of the entity graph
type GraphStore interface {
	graph.GraphDB
	SelectEntitiesByNames(ctx context.Context, names []string, labels []string, limit int) ([]*model.Entity, error)
}

// GraphAdapter resolves seed entities by name and scores the paths reached
// from them.
type GraphAdapter struct {
	store     GraphStore
	highValue map[string]bool
	logger    *slog.Logger
}

// NewGraphAdapter creates a graph adapter. Nodes carrying one of
// highValueLabels raise the score of their path.
func NewGraphAdapter(store GraphStore, highValueLabels []string, logger *slog.Logger) *GraphAdapter {
	if logger == nil {
		logger = helper.DiscardLogger()
	}
	highValue := make(map[string]bool, len(highValueLabels))
	for _, l := range highValueLabels {
		highValue[l] = true
	}
	return &GraphAdapter{
		store:     store,
		highValue: highValue,
		logger:    logger,
	}
}

func (a *GraphAdapter) Modality() model.Modality {
	return model.ModalityGraph
}

// Search traverses from every entity matching req.Seeds and returns one
// result per distinct path, best scored first.
func (a *GraphAdapter) Search(ctx context.Context, req Request) Outcome {
	start := time.Now()
	if a.store == nil {
		return failed(model.ModalityGraph, "graph backend not configured", nil, start)
	}
	if len(req.Seeds) == 0 {
		return succeeded(model.ModalityGraph, nil, start)
	}

	filters := req.GraphFilters
	if filters.MaxHops <= 0 {
		filters.MaxHops = model.DefaultMaxHops
	}
	if filters.Limit <= 0 {
		filters.Limit = model.DefaultGraphLimit
	}

	seeds, err := a.store.SelectEntitiesByNames(ctx, req.Seeds, filters.AllowedLabels, filters.Limit)
	if err != nil {
		return a.fail(ctx, req, "seed lookup failed", err, start)
	}
	if len(seeds) == 0 {
		a.logger.Debug("No seed entities found", slog.String("query", req.Query), slog.Any("seeds", req.Seeds))
		return succeeded(model.ModalityGraph, nil, start)
	}

	results := []model.ModalityResult{}
	seen := map[string]bool{}
	for _, seed := range seeds {
		traversed, err := graph.Traverse(ctx, a.store, seed, filters)
		if err != nil {
			return a.fail(ctx, req, "graph traversal failed", err, start)
		}

		for _, r := range traversed {
			if r.Distance < 1 || r.Path == nil {
				continue
			}
			signature := r.Path.Signature()
			if seen[signature] {
				continue
			}
			seen[signature] = true
			results = append(results, model.NewGraphResult(r.Path, a.Score(r.Path)))
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	limit := req.Profile.TopK
	if limit <= 0 || filters.Limit < limit {
		limit = filters.Limit
	}
	return succeeded(model.ModalityGraph, truncate(results, limit), start)
}

// Score rates a path: 1 / (1 + hops * 0.2), plus 0.1 per high value node,
// capped at 1.0.
func (a *GraphAdapter) Score(path *model.GraphPath) float64 {
	score := 1.0 / (1.0 + float64(path.Length())*pathLengthPenalty)
	for _, node := range path.Nodes {
		for _, label := range node.Labels {
			if a.highValue[label] {
				score += highValueBonus
				break
			}
		}
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func (a *GraphAdapter) fail(ctx context.Context, req Request, message string, err error, start time.Time) Outcome {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		message = "graph search timed out"
	}
	a.logger.Warn("Graph search failed", slog.String("query", req.Query), slog.String("modality", string(model.ModalityGraph)), slog.String("message", message), slog.String("error", err.Error()))
	return failed(model.ModalityGraph, message, err, start)
}
