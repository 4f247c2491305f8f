package search

import (
	"context"
	"time"

	"github.com/siherrmann/graphrag/model"
)

// Request is the input shared by every modality adapter
type Request struct {
	Query     string
	Profile   model.RetrievalProfile
	Filter    model.MetadataFilter
	Namespace string
	// Graph adapter only
	Seeds        []string
	GraphFilters model.GraphFilters
}

// Outcome is the result of one adapter call. A failed adapter returns no
// results and a diagnostic; it never returns an error.
type Outcome struct {
	Modality   model.Modality
	Results    []model.ModalityResult
	Diagnostic *model.Diagnostic
	Duration   time.Duration
}

// Failed reports whether the adapter degraded to an empty result
func (o Outcome) Failed() bool {
	return o.Diagnostic != nil
}

// Adapter is one retrieval modality
type Adapter interface {
	Modality() model.Modality
	Search(ctx context.Context, req Request) Outcome
}

func succeeded(modality model.Modality, results []model.ModalityResult, start time.Time) Outcome {
	if results == nil {
		results = []model.ModalityResult{}
	}
	return Outcome{
		Modality: modality,
		Results:  results,
		Duration: time.Since(start),
	}
}

func failed(modality model.Modality, message string, err error, start time.Time) Outcome {
	return Outcome{
		Modality: modality,
		Results:  []model.ModalityResult{},
		Diagnostic: &model.Diagnostic{
			Component: "search",
			Modality:  modality,
			Message:   message,
			Err:       err,
		},
		Duration: time.Since(start),
	}
}

func truncate(results []model.ModalityResult, topK int) []model.ModalityResult {
	if topK > 0 && len(results) > topK {
		return results[:topK]
	}
	return results
}
