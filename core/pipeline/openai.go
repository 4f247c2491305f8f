package pipeline

import (
	"context"
	"errors"
	"math"

	openai "github.com/sashabaranov/go-openai"
	"github.com/siherrmann/graphrag/helper"
)

// DefaultOpenAIEmbeddingModel is used when OpenAIEmbedder gets no model
const DefaultOpenAIEmbeddingModel = string(openai.SmallEmbedding3)

// OpenAIEmbeddingDimensions lists the output size of the OpenAI embedding models
var OpenAIEmbeddingDimensions = map[string]int{
	string(openai.SmallEmbedding3): 1536,
	string(openai.LargeEmbedding3): 3072,
	string(openai.AdaEmbeddingV2):  1536,
}

// OpenAIEmbedder creates an embedder calling the OpenAI embeddings API.
// Embeddings are normalized to unit length.
func OpenAIEmbedder(client *openai.Client, model string) (EmbedFunc, error) {
	if client == nil {
		return nil, errors.New("openai client is required")
	}
	if model == "" {
		model = DefaultOpenAIEmbeddingModel
	}

	return func(ctx context.Context, text string) ([]float32, error) {
		if text == "" {
			return nil, errors.New("cannot embed empty text")
		}

		// Request a single embedding
		resp, err := client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(model),
			Input: []string{text},
		})
		if err != nil {
			return nil, helper.NewError("openai embeddings", err)
		}
		if len(resp.Data) == 0 {
			return nil, errors.New("no embedding data returned from API")
		}

		// Convert to float32 and scale to unit length
		raw := resp.Data[0].Embedding
		v := make([]float32, len(raw))
		for i := range raw {
			v[i] = float32(raw[i])
		}
		l2normalize(v)
		return v, nil
	}, nil
}

// NewOpenAIClient creates a client, baseURL may point to a compatible server
func NewOpenAIClient(apiKey string, baseURL string) *openai.Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(config)
}

func l2normalize(v []float32) {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(float64(sum)))
	for i := range v {
		v[i] *= inv
	}
}
