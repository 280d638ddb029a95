package ollama

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"mpkai/internal/domain"
	"mpkai/internal/generation"
)

var errStopped = errors.New("stream stopped by consumer")

// Generator streams completions from the /api/generate endpoint of an Ollama server.
type Generator struct {
	client *api.Client
	model  string
}

// New creates a generator. Request deadlines come from the caller's context.
func New(host, model string) (*Generator, error) {
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("ollama generator: bad host %q: %w", host, err)
	}
	return &Generator{client: api.NewClient(base, http.DefaultClient), model: model}, nil
}

func (g *Generator) Name() string { return "ollama:" + g.model }

func (g *Generator) Generate(ctx context.Context, prompt string, params domain.GenerationParams) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		model := params.Model
		if model == "" {
			model = g.model
		}
		stream := true
		req := &api.GenerateRequest{
			Model:   model,
			Prompt:  prompt,
			Stream:  &stream,
			Options: Options(params),
		}
		err := g.client.Generate(ctx, req, func(r api.GenerateResponse) error {
			if r.Response == "" {
				return nil
			}
			if !yield(r.Response, nil) {
				return errStopped
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStopped) {
			yield("", generation.Failed(g.Name(), err))
		}
	}
}

// Options maps the deployment's sampling parameters onto Ollama model options.
func Options(p domain.GenerationParams) map[string]any {
	opts := map[string]any{
		"temperature": p.Temperature,
		"top_p":       p.TopP,
		"top_k":       p.TopK,
	}
	if p.NumGPU > 0 {
		opts["num_gpu"] = p.NumGPU
	}
	if p.NumThread > 0 {
		opts["num_thread"] = p.NumThread
	}
	return opts
}
