package pipeline

import (
	"context"
	"fmt"

	"github.com/knights-analytics/hugot"
	"github.com/siherrmann/graphrag/helper"
)

const (
	// DefaultEmbeddingModel is the sentence transformer used by DefaultEmbedder
	DefaultEmbeddingModel = "sentence-transformers/all-MiniLM-L6-v2"
	// DefaultEmbeddingDimension is the output size of DefaultEmbeddingModel
	DefaultEmbeddingDimension = 384
)

// DefaultEmbedder creates an embedder running all-MiniLM-L6-v2 locally.
// The returned function ignores ctx once the model is loaded.
func DefaultEmbedder() (EmbedFunc, error) {
	// Fetch the ONNX export into the model cache on first use
	modelPath, err := helper.PrepareModel(DefaultEmbeddingModel, "onnx/model.onnx")
	if err != nil {
		return nil, err
	}

	// Pure Go hugot session, no ONNX runtime library needed
	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	// Feature extraction pipeline producing one vector per input
	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "embedder-pipeline",
	}
	sentencePipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create sentence pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create sentence pipeline: %w", err)
	}

	return func(ctx context.Context, text string) ([]float32, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Embed the text as a batch of one
		result, err := sentencePipeline.RunPipeline([]string{text})
		if err != nil {
			return nil, fmt.Errorf("failed to generate embedding: %w", err)
		}
		if len(result.Embeddings) == 0 {
			return nil, fmt.Errorf("no embedding generated")
		}

		// Single input, single embedding
		return result.Embeddings[0], nil
	}, nil
}
