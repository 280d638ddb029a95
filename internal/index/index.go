// Package index turns an ingested chunk sequence into a searchable vector index.
//
// Building is memoized: the builder remembers the last index by a key derived
// from the embedder name and the corpus fingerprint, so asking for the same
// corpus twice embeds it once. Concurrent builds of the same key share one
// execution.
package index

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"mpkai/internal/domain"
	"mpkai/internal/embedding"
	"mpkai/internal/ingest"
	"mpkai/internal/telemetry"
	"mpkai/internal/vectorstore"
)

const upsertBatch = 64

// ErrSuperseded is returned by Query on an index whose vectors were replaced by a later build.
var ErrSuperseded = errors.New("index superseded by a newer build")

// Index is a built, immutable view over the vector store for one corpus version.
// All indexes of a Builder share its store, so once a later build starts
// loading the store an older Index answers only with ErrSuperseded.
type Index struct {
	key       string
	owner     *Builder
	store     vectorstore.Storage
	size      int
	dimension int
	restored  bool
}

// Query returns at most k results, best first. k larger than Len returns every chunk.
func (ix *Index) Query(ctx context.Context, vector []float32, k int) ([]domain.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	if !ix.owner.holds(ix.key) {
		return nil, fmt.Errorf("%w: %s", ErrSuperseded, ix.key)
	}
	if ix.dimension > 0 && len(vector) != ix.dimension {
		return nil, fmt.Errorf("query vector dimension %d, index dimension %d", len(vector), ix.dimension)
	}
	return ix.store.Search(ctx, vector, k)
}

// Len is the number of indexed chunks.
func (ix *Index) Len() int { return ix.size }

// Key identifies the corpus version and embedder the index was built for.
func (ix *Index) Key() string { return ix.key }

// Restored reports whether the vectors were loaded from a persisted store instead of embedded.
func (ix *Index) Restored() bool { return ix.restored }

// Builder embeds chunks and loads them into a vector store.
type Builder struct {
	embedder    domain.Embedder
	store       vectorstore.Storage
	log         *zap.Logger
	concurrency int

	group  singleflight.Group
	mu     sync.Mutex
	last   *Index
	force  bool
	gen    uint64
	loaded string
}

// NewBuilder creates a builder. concurrency bounds parallel Embed calls; values below 1 mean 1.
func NewBuilder(embedder domain.Embedder, store vectorstore.Storage, concurrency int, log *zap.Logger) *Builder {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Builder{embedder: embedder, store: store, concurrency: concurrency, log: log}
}

// Key derives the memo key for a chunk sequence under this builder's embedder.
func (b *Builder) Key(chunks []domain.Chunk) string {
	sum := sha1.Sum([]byte(b.embedder.Name() + "\x00" + ingest.Fingerprint(chunks)))
	return hex.EncodeToString(sum[:8])
}

// Build returns the index for chunks, embedding them only if this corpus
// version has not been built before. Embedding failures are returned wrapped
// in domain.ErrEmbeddingUnavailable and are not remembered.
//
// The build itself is not cancelled with ctx: other callers may be waiting on
// it. A caller whose ctx ends stops waiting and gets ctx.Err().
func (b *Builder) Build(ctx context.Context, chunks []domain.Chunk) (*Index, error) {
	if len(chunks) == 0 {
		return nil, domain.ErrCorpusEmpty
	}
	key := b.Key(chunks)

	b.mu.Lock()
	if b.last != nil && b.last.key == key {
		ix := b.last
		b.mu.Unlock()
		return ix, nil
	}
	gen, force := b.gen, b.force
	b.mu.Unlock()

	ch := b.group.DoChan(key+":"+strconv.FormatUint(gen, 10), func() (any, error) {
		ix, err := b.build(context.WithoutCancel(ctx), key, chunks, force)
		if err != nil {
			return nil, err
		}
		b.mu.Lock()
		if b.gen == gen {
			b.last = ix
			b.force = false
		}
		b.mu.Unlock()
		return ix, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Index), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reset forgets the memoized index. The next Build embeds again, ignoring any
// persisted copy. A build still running when Reset is called is not remembered.
func (b *Builder) Reset() {
	b.mu.Lock()
	b.last = nil
	b.force = true
	b.gen++
	b.mu.Unlock()
}

func (b *Builder) holds(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loaded == key
}

func (b *Builder) setLoaded(key string) {
	b.mu.Lock()
	b.loaded = key
	b.mu.Unlock()
}

func (b *Builder) build(ctx context.Context, key string, chunks []domain.Chunk, force bool) (*Index, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "index.build")
	defer span.End()
	span.SetAttributes(
		attribute.String("index.key", key),
		attribute.String("embedder", b.embedder.Name()),
		attribute.Int("chunks", len(chunks)),
	)

	ix, err := b.embedAndLoad(ctx, key, chunks, force)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Bool("restored", ix.restored))
	return ix, nil
}

func (b *Builder) embedAndLoad(ctx context.Context, key string, chunks []domain.Chunk, force bool) (*Index, error) {
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	if err := b.embedder.Prepare(ctx, texts); err != nil {
		return nil, err
	}
	dim := b.embedder.Dimension()

	if r, ok := b.store.(vectorstore.Restorer); ok && !force {
		b.setLoaded("")
		restored, err := r.Restore(ctx, key)
		if err != nil {
			b.log.Warn("restoring persisted index failed, rebuilding", zap.String("key", key), zap.Error(err))
		} else if restored && b.store.Count() == len(chunks) {
			b.setLoaded(key)
			b.log.Info("index restored", zap.String("key", key), zap.Int("chunks", len(chunks)))
			return &Index{key: key, owner: b, store: b.store, size: len(chunks), dimension: dim, restored: true}, nil
		}
	}

	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i := range chunks {
		g.Go(func() error {
			v, err := b.embedder.Embed(gctx, chunks[i].Text)
			if err != nil {
				return err
			}
			vectors[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if dim == 0 {
		dim = len(vectors[0])
	}
	embedded := make([]domain.Chunk, len(chunks))
	for i, ch := range chunks {
		if len(vectors[i]) == 0 || len(vectors[i]) != dim {
			return nil, embedding.Unavailable(b.embedder.Name(),
				fmt.Errorf("chunk %s: got %d-dimensional vector, want %d", ch.ID, len(vectors[i]), dim))
		}
		ch.Vector = vectors[i]
		embedded[i] = ch
	}

	b.setLoaded("")
	if err := b.store.Init(ctx, key, dim); err != nil {
		return nil, fmt.Errorf("init vector store: %w", err)
	}
	for start := 0; start < len(embedded); start += upsertBatch {
		end := min(start+upsertBatch, len(embedded))
		if err := b.store.Upsert(ctx, embedded[start:end]); err != nil {
			return nil, fmt.Errorf("upsert chunks: %w", err)
		}
	}
	b.setLoaded(key)
	b.log.Info("index built", zap.String("key", key), zap.Int("chunks", len(embedded)), zap.Int("dimension", dim))
	return &Index{key: key, owner: b, store: b.store, size: len(embedded), dimension: dim}, nil
}
