package vector

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/Dicklesworthstone/meta-skill-sub000/internal/logging"
)

// genaiDefaultDims is fixed at construction so Dims() can be a pure
// getter; gemini-embedding-001 defaults to 3072 but accepts a smaller
// requested output width via OutputDimensionality.
const genaiDefaultDims = 768

// GenAIEmbedder generates embeddings via Google's Gemini API, adapted
// from the teacher's embedding.GenAIEngine (internal/embedding/genai.go)
// to the narrower vector.Embedder contract.
type GenAIEmbedder struct {
	client   *genai.Client
	model    string
	taskType string
	dims     int
	log      *logging.Logger
}

// NewGenAIEmbedder constructs a GenAIEmbedder. apiKey is required;
// model and taskType default to the teacher's values when empty.
func NewGenAIEmbedder(ctx context.Context, apiKey, model, taskType string, dims int) (*GenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("genai embedder: API key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	if taskType == "" {
		taskType = "SEMANTIC_SIMILARITY"
	}
	if dims <= 0 {
		dims = genaiDefaultDims
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GenAIEmbedder{
		client:   client,
		model:    model,
		taskType: taskType,
		dims:     dims,
		log:      logging.Get(logging.CategoryIndex),
	}, nil
}

func (e *GenAIEmbedder) Dims() int { return e.dims }

// Embed calls GenAI's EmbedContent for a single text, requesting an
// output width matching e.dims.
func (e *GenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	timer := logging.StartTimer(logging.CategoryIndex, "GenAIEmbedder.Embed")
	defer timer.Stop()

	dims := int32(e.dims)
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	})
	if err != nil {
		return nil, fmt.Errorf("genai embed failed: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("genai returned no embeddings")
	}
	return result.Embeddings[0].Values, nil
}
