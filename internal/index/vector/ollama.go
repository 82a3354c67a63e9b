package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Dicklesworthstone/meta-skill-sub000/internal/logging"
)

// OllamaEmbedder generates embeddings via a local Ollama server,
// adapted from the teacher's embedding.OllamaEngine
// (internal/embedding/ollama.go) to the narrower vector.Embedder
// contract: production installs may opt into a real encoder without
// any change to the search/index API, per spec.md §4.3.
type OllamaEmbedder struct {
	endpoint string
	model    string
	dims     int
	client   *http.Client
	log      *logging.Logger
}

// NewOllamaEmbedder constructs an OllamaEmbedder. dims must be known
// up front since Embedder.Dims() is fixed for the process lifetime;
// it is the caller's responsibility to match the configured model's
// actual output width.
func NewOllamaEmbedder(endpoint, model string, dims int) *OllamaEmbedder {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	if model == "" {
		model = "embeddinggemma"
	}
	if dims <= 0 {
		dims = DefaultDims
	}
	return &OllamaEmbedder{
		endpoint: endpoint,
		model:    model,
		dims:     dims,
		client:   &http.Client{Timeout: 30 * time.Second},
		log:      logging.Get(logging.CategoryIndex),
	}
}

func (e *OllamaEmbedder) Dims() int { return e.dims }

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed calls Ollama's /api/embeddings endpoint for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	timer := logging.StartTimer(logging.CategoryIndex, "OllamaEmbedder.Embed")
	defer timer.Stop()

	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(data))
	}

	var parsed ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode ollama response: %w", err)
	}
	return parsed.Embedding, nil
}
