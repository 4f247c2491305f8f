package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
)

// DefaultEntityExtractor creates an entity extractor running distilbert-NER
// locally. Entities are labeled PER, ORG, LOC or MISC.
func DefaultEntityExtractor() (EntityExtractFunc, error) {
	// Fetch the distilbert-NER ONNX export into the model cache on first use
	modelPath, err := helper.PrepareModel("KnightsAnalytics/distilbert-NER", "model.onnx")
	if err != nil {
		return nil, err
	}

	// Pure Go hugot session, no ONNX runtime library needed
	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	// Token classification with word-level aggregation, "O" tokens dropped
	config := hugot.TokenClassificationConfig{
		ModelPath: modelPath,
		Name:      "ner-pipeline",
		Options: []hugot.TokenClassificationOption{
			pipelines.WithSimpleAggregation(),
			pipelines.WithIgnoreLabels([]string{"O"}),
		},
	}
	nerPipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create NER pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create NER pipeline: %w", err)
	}

	return func(ctx context.Context, text string) ([]*model.Entity, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.TrimSpace(text) == "" {
			return nil, nil
		}

		// Tag the text as a batch of one
		result, err := nerPipeline.RunPipeline([]string{text})
		if err != nil {
			return nil, fmt.Errorf("failed to run NER: %w", err)
		}
		if len(result.Entities) == 0 {
			return nil, nil
		}

		// Map the tagged spans to graph entities
		var entities []*model.Entity
		for _, entity := range result.Entities[0] {
			name := strings.TrimSpace(entity.Word)
			if name == "" {
				continue
			}
			entities = append(entities, &model.Entity{
				ID:     uuid.New(),
				Name:   name,
				Labels: []string{normalizeEntityType(entity.Entity)},
				Properties: model.Metadata{
					"confidence": entity.Score,
					"start":      entity.Start,
					"end":        entity.End,
				},
			})
		}
		return entities, nil
	}, nil
}

// EntityNames returns the distinct names of entities in order
func EntityNames(entities []*model.Entity) []string {
	seen := map[string]bool{}
	var names []string
	for _, e := range entities {
		key := strings.ToLower(e.Name)
		if e.Name == "" || seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, e.Name)
	}
	return names
}

// normalizeEntityType removes B- and I- prefixes from NER labels
func normalizeEntityType(label string) string {
	// B-DRUG and I-DRUG both become DRUG
	if strings.HasPrefix(label, "B-") || strings.HasPrefix(label, "I-") {
		return label[2:]
	}
	return label
}
