package chromem

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"

	"mpkai/internal/domain"
	"mpkai/internal/vectorstore"
)

const collectionPrefix = "corpus-"

// Storage keeps chunk vectors in an embedded chromem-go database.
// With a path the database is persisted to disk and can be restored on restart.
type Storage struct {
	db         *chromem.DB
	mu         sync.RWMutex
	collection *chromem.Collection
	dimension  int
}

type Config struct {
	Path     string
	Compress bool
}

func NewStorage(cfg Config) (*Storage, error) {
	if cfg.Path == "" {
		return &Storage{db: chromem.NewDB()}, nil
	}
	db, err := chromem.NewPersistentDB(cfg.Path, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("open chromem db %s: %w", cfg.Path, err)
	}
	return &Storage{db: db}, nil
}

// Restore reopens the collection written for key by a previous run.
func (s *Storage) Restore(_ context.Context, key string) (bool, error) {
	c := s.db.GetCollection(collectionPrefix+key, nil)
	if c == nil || c.Count() == 0 {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collection = c
	s.dimension = 0
	return true, nil
}

// Init drops collections left over from other corpus versions and creates a fresh one for key.
func (s *Storage) Init(_ context.Context, key string, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	for name := range s.db.ListCollections() {
		if strings.HasPrefix(name, collectionPrefix) {
			if err := s.db.DeleteCollection(name); err != nil {
				return fmt.Errorf("drop collection %s: %w", name, err)
			}
		}
	}
	c, err := s.db.GetOrCreateCollection(collectionPrefix+key, map[string]string{"hnsw:space": "cosine"}, nil)
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collection = c
	s.dimension = dimension
	return nil
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	s.mu.RLock()
	c, dim := s.collection, s.dimension
	s.mu.RUnlock()
	if c == nil {
		return errors.New("chromem storage not initialized")
	}
	docs := make([]chromem.Document, len(chunks))
	for i, ch := range chunks {
		if dim > 0 && len(ch.Vector) != dim {
			return fmt.Errorf("chunk %s: vector dimension %d, want %d", ch.ID, len(ch.Vector), dim)
		}
		docs[i] = chromem.Document{
			ID:        ch.ID,
			Content:   ch.Text,
			Embedding: ch.Vector,
			Metadata: map[string]string{
				"source":  ch.SourceFile,
				"page":    ch.PageLabel,
				"ordinal": strconv.Itoa(ch.Ordinal),
			},
		}
	}
	if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add documents: %w", err)
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	c := s.collection
	s.mu.RUnlock()
	if c == nil {
		return nil, errors.New("chromem storage not initialized")
	}
	if topK <= 0 {
		return nil, nil
	}
	n := min(vectorstore.Overfetch(topK), c.Count())
	if n == 0 {
		return nil, nil
	}
	res, err := c.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	results := make([]domain.SearchResult, 0, len(res))
	for _, r := range res {
		ord, _ := strconv.Atoi(r.Metadata["ordinal"])
		results = append(results, domain.SearchResult{
			Chunk: domain.Chunk{
				ID:         r.ID,
				Text:       r.Content,
				SourceFile: r.Metadata["source"],
				PageLabel:  r.Metadata["page"],
				Ordinal:    ord,
			},
			Score: vectorstore.ClampScore(float64(r.Similarity)),
		})
	}
	return vectorstore.Top(results, topK), nil
}

func (s *Storage) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.collection == nil {
		return 0
	}
	return s.collection.Count()
}

func (s *Storage) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collection == nil {
		return nil
	}
	name := s.collection.Name
	s.collection = nil
	return s.db.DeleteCollection(name)
}
