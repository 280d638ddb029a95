package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"mpkai/internal/domain"
	"mpkai/internal/vectorstore"
)

// pointNamespace derives stable point IDs, since Qdrant only accepts integers or UUIDs.
var pointNamespace = uuid.MustParse("6f1c2a4e-8d7b-4c35-9a0e-2b5d7f3e9c11")

// Storage is a minimal REST client to Qdrant.
// It assumes cosine distance and keeps one collection per corpus version.
type Storage struct {
	url    string
	apiKey string
	base   string
	client *http.Client

	mu         sync.RWMutex
	collection string
	dimension  int
	count      int
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	base := cfg.Collection
	if base == "" {
		base = "mpkai"
	}
	return &Storage{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		base:   base,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *Storage) collectionFor(key string) string { return s.base + "_" + key }

// Restore attaches to an existing collection for key if it holds points.
func (s *Storage) Restore(ctx context.Context, key string) (bool, error) {
	name := s.collectionFor(key)
	var resp struct {
		Result struct {
			PointsCount int `json:"points_count"`
			Config      struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodGet, fmt.Sprintf("%s/collections/%s", s.url, name), nil, &resp)
	if status == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if resp.Result.PointsCount == 0 {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collection = name
	s.dimension = resp.Result.Config.Params.Vectors.Size
	s.count = resp.Result.PointsCount
	return true, nil
}

// Init recreates the collection for key with the given dimension.
func (s *Storage) Init(ctx context.Context, key string, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	name := s.collectionFor(key)
	// A missing collection answers 404, which is fine here.
	if status, err := s.do(ctx, http.MethodDelete, fmt.Sprintf("%s/collections/%s", s.url, name), nil, nil); err != nil && status != http.StatusNotFound {
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if _, err := s.do(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s", s.url, name), body, nil); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collection = name
	s.dimension = dimension
	s.count = 0
	return nil
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	s.mu.RLock()
	name, dim := s.collection, s.dimension
	s.mu.RUnlock()
	if name == "" {
		return errors.New("qdrant storage not initialized")
	}
	points := make([]map[string]any, len(chunks))
	for i, ch := range chunks {
		if len(ch.Vector) != dim {
			return fmt.Errorf("chunk %s: vector dimension %d, want %d", ch.ID, len(ch.Vector), dim)
		}
		points[i] = map[string]any{
			"id":     uuid.NewSHA1(pointNamespace, []byte(ch.ID)).String(),
			"vector": ch.Vector,
			"payload": map[string]any{
				"chunk_id": ch.ID,
				"source":   ch.SourceFile,
				"page":     ch.PageLabel,
				"ordinal":  ch.Ordinal,
				"text":     ch.Text,
			},
		}
	}
	body := map[string]any{"points": points}
	if _, err := s.do(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, name), body, nil); err != nil {
		return err
	}
	s.mu.Lock()
	s.count += len(chunks)
	s.mu.Unlock()
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	name := s.collection
	s.mu.RUnlock()
	if name == "" {
		return nil, errors.New("qdrant storage not initialized")
	}
	if topK <= 0 {
		return nil, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        vectorstore.Overfetch(topK),
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload struct {
				ChunkID string `json:"chunk_id"`
				Source  string `json:"source"`
				Page    string `json:"page"`
				Ordinal int    `json:"ordinal"`
				Text    string `json:"text"`
			} `json:"payload"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/points/search", s.url, name), req, &resp); err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, domain.SearchResult{
			Chunk: domain.Chunk{
				ID:         r.Payload.ChunkID,
				Text:       r.Payload.Text,
				SourceFile: r.Payload.Source,
				PageLabel:  r.Payload.Page,
				Ordinal:    r.Payload.Ordinal,
			},
			Score: vectorstore.ClampScore(r.Score),
		})
	}
	return vectorstore.Top(results, topK), nil
}

func (s *Storage) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Clear drops the active collection.
func (s *Storage) Clear(ctx context.Context) error {
	s.mu.Lock()
	name := s.collection
	s.collection, s.count = "", 0
	s.mu.Unlock()
	if name == "" {
		return nil
	}
	status, err := s.do(ctx, http.MethodDelete, fmt.Sprintf("%s/collections/%s", s.url, name), nil, nil)
	if err != nil && status != http.StatusNotFound {
		return err
	}
	return nil
}

func (s *Storage) do(ctx context.Context, method, url string, body, out any) (int, error) {
	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		return resp.StatusCode, json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode, nil
}
