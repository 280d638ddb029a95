package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"mpkai/internal/domain"
	"mpkai/internal/generation"
)

// Generator streams content from the Gemini API.
type Generator struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, apiKeyEnv, model string) (*Generator, error) {
	key := os.Getenv(apiKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", apiKeyEnv)
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return nil, generation.Failed("gemini", err)
	}
	return &Generator{client: client, model: model}, nil
}

func (g *Generator) Name() string { return "gemini:" + g.model }

func (g *Generator) Generate(ctx context.Context, prompt string, params domain.GenerationParams) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		name := params.Model
		if name == "" {
			name = g.model
		}
		m := g.client.GenerativeModel(name)
		m.SetTemperature(float32(params.Temperature))
		m.SetTopP(float32(params.TopP))
		if params.TopK > 0 {
			m.SetTopK(int32(params.TopK))
		}

		it := m.GenerateContentStream(ctx, genai.Text(prompt))
		for {
			resp, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				yield("", generation.Failed(g.Name(), err))
				return
			}
			if text := responseText(resp); text != "" {
				if !yield(text, nil) {
					return
				}
			}
		}
	}
}

func (g *Generator) Close() error { return g.client.Close() }

func responseText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
	}
	return b.String()
}
