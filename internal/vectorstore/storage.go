package vectorstore

import (
	"context"
	"math"
	"sort"

	"mpkai/internal/domain"
)

// Storage persists chunk vectors and supports cosine similarity search.
// Search returns at most topK results ordered by descending score, ties by chunk ordinal.
type Storage interface {
	Init(ctx context.Context, key string, dimension int) error
	Upsert(ctx context.Context, chunks []domain.Chunk) error
	Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error)
	Count() int
	Clear(ctx context.Context) error
}

// Restorer is implemented by stores that persist across restarts.
// Restore reports whether a complete snapshot for key was found and loaded.
type Restorer interface {
	Restore(ctx context.Context, key string) (bool, error)
}

// tieMargin is how many extra candidates backends with their own top-k cut
// fetch so that ties at the boundary are decided by corpus order.
const tieMargin = 8

// Overfetch is the candidate count to request from a backend for a top-k query.
func Overfetch(k int) int { return k + tieMargin }

// Top sorts results and keeps the best k.
func Top(results []domain.SearchResult, k int) []domain.SearchResult {
	SortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// SortResults orders results by descending score, breaking ties by corpus order.
func SortResults(results []domain.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.Ordinal < results[j].Chunk.Ordinal
	})
}

// ClampScore keeps float error from pushing a cosine outside [-1, 1].
// NaN, produced by backends normalizing a zero vector, scores as 0.
func ClampScore(s float64) float64 {
	if math.IsNaN(s) {
		return 0
	}
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}
