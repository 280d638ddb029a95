package openai

import (
	"context"
	"fmt"
	"iter"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"mpkai/internal/domain"
	"mpkai/internal/generation"
)

// Generator streams chat completions from an OpenAI-compatible endpoint.
type Generator struct {
	client openai.Client
	model  string
}

type Config struct {
	BaseURL    string
	APIKeyEnv  string
	Model      string
	MaxRetries int
}

func New(cfg Config) (*Generator, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	return &Generator{
		client: openai.NewClient(
			option.WithAPIKey(key),
			option.WithBaseURL(cfg.BaseURL),
			option.WithMaxRetries(cfg.MaxRetries),
		),
		model: cfg.Model,
	}, nil
}

func (g *Generator) Name() string { return "openai:" + g.model }

// Generate sends the prompt as a single user message. top_k is not part of the
// OpenAI schema and is passed as an extra field for compatible servers.
func (g *Generator) Generate(ctx context.Context, prompt string, params domain.GenerationParams) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		model := params.Model
		if model == "" {
			model = g.model
		}
		req := openai.ChatCompletionNewParams{
			Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
			Model:       openai.ChatModel(model),
			Temperature: openai.Float(params.Temperature),
			TopP:        openai.Float(params.TopP),
		}
		var opts []option.RequestOption
		if params.TopK > 0 {
			opts = append(opts, option.WithJSONSet("top_k", params.TopK))
		}

		stream := g.client.Chat.Completions.NewStreaming(ctx, req, opts...)
		defer stream.Close()
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if d := chunk.Choices[0].Delta.Content; d != "" {
				if !yield(d, nil) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield("", generation.Failed(g.Name(), err))
		}
	}
}
