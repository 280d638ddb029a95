package retrieval

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"mpkai/internal/domain"
	"mpkai/internal/telemetry"
)

// Searcher is the part of an index retrieval needs.
type Searcher interface {
	Query(ctx context.Context, vector []float32, k int) ([]domain.SearchResult, error)
}

// Engine embeds a question, takes the top-K chunks and drops the ones below the similarity floor.
type Engine struct {
	embedder domain.Embedder
	log      *zap.Logger
}

func NewEngine(embedder domain.Embedder, log *zap.Logger) *Engine {
	return &Engine{embedder: embedder, log: log}
}

// Retrieve returns the chunks scoring at least minSimilarity among the k best, best first.
// An empty result means no relevant context and is not an error.
func (e *Engine) Retrieve(ctx context.Context, ix Searcher, question string, k int, minSimilarity float64) ([]domain.SearchResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "retrieval.retrieve")
	defer span.End()

	vec, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return nil, err
	}
	candidates, err := ix.Query(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	kept := Filter(candidates, minSimilarity)

	span.SetAttributes(attribute.Int("candidates", len(candidates)), attribute.Int("kept", len(kept)))
	if len(candidates) > 0 {
		e.log.Debug("retrieved",
			zap.Int("candidates", len(candidates)),
			zap.Int("kept", len(kept)),
			zap.Float64("best_score", candidates[0].Score),
		)
	}
	return kept, nil
}

// Filter keeps results whose score reaches minSimilarity, preserving order.
func Filter(results []domain.SearchResult, minSimilarity float64) []domain.SearchResult {
	kept := make([]domain.SearchResult, 0, len(results))
	for _, r := range results {
		if r.Score >= minSimilarity {
			kept = append(kept, r)
		}
	}
	return kept
}
