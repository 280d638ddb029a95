package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ollama/ollama/api"

	"mpkai/internal/embedding"
)

// Config configures the Ollama embeddings client.
type Config struct {
	Host    string
	Model   string
	Device  string
	Timeout time.Duration
}

// Embedder calls the /api/embed endpoint of an Ollama server.
type Embedder struct {
	client    *api.Client
	model     string
	device    string
	mu        sync.RWMutex
	dimension int
}

// New creates an embedder; the model is probed in Prepare, not here.
func New(cfg Config) (*Embedder, error) {
	if cfg.Model == "" {
		return nil, errors.New("ollama embedder: model is required")
	}
	base, err := url.Parse(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: bad host %q: %w", cfg.Host, err)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &Embedder{
		client: api.NewClient(base, &http.Client{Timeout: timeout}),
		model:  cfg.Model,
		device: embedding.SelectDevice(cfg.Device),
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "ollama:" + e.model }

// Device reports the resolved compute device.
func (e *Embedder) Device() string { return e.device }

// Prepare loads the model by embedding a probe and records the dimension.
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
	req := &api.EmbedRequest{
		Model: e.model,
		Input: text,
	}
	if e.device == embedding.DeviceCPU {
		req.Options = map[string]any{"num_gpu": 0}
	}
	resp, err := e.client.Embed(ctx, req)
	if err != nil {
		return nil, embedding.Unavailable(e.Name(), err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, embedding.Unavailable(e.Name(), errors.New("no embedding returned"))
	}
	return resp.Embeddings[0], nil
}
