package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"mpkai/internal/domain"
	"mpkai/internal/vectorstore"
)

// Storage is a simple in-memory vector store using exact brute-force cosine similarity.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	chunks    []domain.Chunk
	norms     []float64
}

func NewStorage() *Storage { return &Storage{} }

func (s *Storage) Init(_ context.Context, _ string, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.chunks = nil
	s.norms = nil
	return nil
}

func (s *Storage) Upsert(_ context.Context, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range chunks {
		if len(ch.Vector) != s.dimension {
			return fmt.Errorf("chunk %s: vector dimension %d, want %d", ch.ID, len(ch.Vector), s.dimension)
		}
	}
	for _, ch := range chunks {
		s.chunks = append(s.chunks, ch)
		s.norms = append(s.norms, norm(ch.Vector))
	}
	return nil
}

func (s *Storage) Search(_ context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("query dimension %d, want %d", len(vector), s.dimension)
	}
	if topK <= 0 {
		return nil, nil
	}
	qn := norm(vector)
	results := make([]domain.SearchResult, len(s.chunks))
	for i, ch := range s.chunks {
		results[i] = domain.SearchResult{Chunk: ch, Score: cosine(ch.Vector, vector, s.norms[i], qn)}
	}
	vectorstore.SortResults(results)
	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK], nil
}

func (s *Storage) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

func (s *Storage) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	s.norms = nil
	return nil
}

func cosine(a, b []float32, na, nb float64) float64 {
	if na == 0 || nb == 0 {
		return 0
	}
	dot := 0.0
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return vectorstore.ClampScore(dot / (na * nb))
}

func norm(v []float32) float64 {
	sum := 0.0
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
