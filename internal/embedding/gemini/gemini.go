package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"mpkai/internal/embedding"
)

// Embedder uses the Gemini embedding API (text-embedding-004 by default).
type Embedder struct {
	client    *genai.Client
	model     *genai.EmbeddingModel
	name      string
	mu        sync.RWMutex
	dimension int
}

// New creates a Gemini embedder reading the API key from apiKeyEnv.
func New(ctx context.Context, apiKeyEnv, model string) (*Embedder, error) {
	key := os.Getenv(apiKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", apiKeyEnv)
	}
	if model == "" {
		model = "text-embedding-004"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return nil, embedding.Unavailable("gemini", err)
	}
	em := client.EmbeddingModel(model)
	em.TaskType = genai.TaskTypeRetrievalDocument
	return &Embedder{client: client, model: em, name: model}, nil
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "gemini:" + e.name }

// Prepare probes the model once and records the dimension.
func (e *Embedder) Prepare(ctx context.Context, _ []string) error {
	v, err := e.Embed(ctx, "probe")
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.dimension = len(v)
	e.mu.Unlock()
	return nil
}

// Dimension returns the dimensionality of the produced embedding vectors.
func (e *Embedder) Dimension() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dimension
}

// Embed returns an embedding vector for the given text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, embedding.Unavailable(e.Name(), err)
	}
	if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, embedding.Unavailable(e.Name(), errors.New("empty embedding response"))
	}
	return resp.Embedding.Values, nil
}

// Close releases the underlying client.
func (e *Embedder) Close() error {
	return e.client.Close()
}
