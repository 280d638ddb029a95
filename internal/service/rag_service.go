package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"mpkai/internal/citation"
	"mpkai/internal/domain"
	"mpkai/internal/generation"
	"mpkai/internal/index"
	"mpkai/internal/prompt"
	"mpkai/internal/retrieval"
	"mpkai/internal/telemetry"
)

// ChunkSource turns the corpus directory into chunks in corpus order.
type ChunkSource interface {
	Ingest(ctx context.Context, dir string) ([]domain.Chunk, error)
}

// Config holds the per-deployment knobs of the pipeline.
type Config struct {
	CorpusDir       string
	TopK            int
	MinSimilarity   float64
	Params          domain.GenerationParams
	DigestSentences int
}

// Deps are the collaborators of the pipeline. Summarizer may be nil.
type Deps struct {
	Source     ChunkSource
	Builder    *index.Builder
	Retriever  *retrieval.Engine
	Composer   *prompt.Composer
	Generator  domain.Generator
	Summarizer domain.Summarizer
}

// Status describes whether questions can currently be answered.
type Status struct {
	Ready    bool
	Chunks   int
	Digest   string
	IndexKey string
	Restored bool
	Err      error
}

type readiness struct {
	index  *index.Index
	digest string
	err    error
}

// RAGService answers questions from the corpus. The index is built lazily on
// first need and kept until Invalidate. Corpus errors are remembered the same
// way; embedding errors are not, so a restarted backend is picked up by the next call.
type RAGService struct {
	deps Deps
	cfg  Config
	log  *zap.Logger

	group singleflight.Group
	mu    sync.RWMutex
	ready *readiness
	gen   uint64
}

func NewRAGService(deps Deps, cfg Config, log *zap.Logger) *RAGService {
	return &RAGService{deps: deps, cfg: cfg, log: log}
}

// CorpusDir is the directory the service reads documents from.
func (s *RAGService) CorpusDir() string { return s.cfg.CorpusDir }

// Ready returns the index, building it if needed. Concurrent callers share one build.
func (s *RAGService) Ready(ctx context.Context) (*index.Index, error) {
	r, err := s.readiness(ctx)
	if err != nil {
		return nil, err
	}
	return r.index, r.err
}

// Status reports readiness, building the index if needed.
func (s *RAGService) Status(ctx context.Context) Status {
	r, err := s.readiness(ctx)
	if err != nil {
		return Status{Err: err}
	}
	if r.err != nil {
		return Status{Err: r.err}
	}
	return Status{
		Ready:    true,
		Chunks:   r.index.Len(),
		Digest:   r.digest,
		IndexKey: r.index.Key(),
		Restored: r.index.Restored(),
	}
}

// Invalidate forgets the index and any remembered corpus error. The next call
// rebuilds, including when a build is running right now: its result is dropped.
func (s *RAGService) Invalidate() {
	s.mu.Lock()
	s.ready = nil
	s.gen++
	s.mu.Unlock()
	s.deps.Builder.Reset()
	s.log.Info("index invalidated")
}

// readiness shares one build per invalidation generation. The build runs
// detached from ctx so a caller abandoning its query does not fail the others
// waiting on the same build.
func (s *RAGService) readiness(ctx context.Context) (*readiness, error) {
	s.mu.RLock()
	r, gen := s.ready, s.gen
	s.mu.RUnlock()
	if r != nil {
		return r, nil
	}

	ch := s.group.DoChan("ready:"+strconv.FormatUint(gen, 10), func() (any, error) {
		s.mu.RLock()
		r := s.ready
		s.mu.RUnlock()
		if r != nil {
			return r, nil
		}
		r, err := s.prepare(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		if s.gen == gen {
			s.ready = r
		}
		s.mu.Unlock()
		return r, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*readiness), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// prepare returns a readiness to remember, or an error that must not be remembered.
func (s *RAGService) prepare(ctx context.Context) (*readiness, error) {
	start := time.Now()
	chunks, err := s.deps.Source.Ingest(ctx, s.cfg.CorpusDir)
	if err != nil {
		if errors.Is(err, domain.ErrCorpusMissing) || errors.Is(err, domain.ErrCorpusEmpty) {
			s.log.Warn("corpus not available", zap.String("dir", s.cfg.CorpusDir), zap.Error(err))
			return &readiness{err: err}, nil
		}
		return nil, err
	}
	ix, err := s.deps.Builder.Build(ctx, chunks)
	if err != nil {
		return nil, err
	}
	r := &readiness{index: ix, digest: s.digest(chunks)}
	s.log.Info("index ready",
		zap.Int("chunks", ix.Len()),
		zap.Bool("restored", ix.Restored()),
		zap.Duration("took", time.Since(start)),
	)
	return r, nil
}

func (s *RAGService) digest(chunks []domain.Chunk) string {
	if s.deps.Summarizer == nil {
		return ""
	}
	var b strings.Builder
	for _, ch := range chunks {
		b.WriteString(ch.Text)
		b.WriteString("\n")
	}
	d, err := s.deps.Summarizer.Summarize(b.String(), s.cfg.DigestSentences)
	if err != nil {
		s.log.Warn("corpus digest failed", zap.Error(err))
		return ""
	}
	return d
}

// Ask answers one question in lang. Generated fragments are passed to onFragment
// as they arrive; it may be nil. The returned Answer always carries displayable
// text: the generated answer, the no-data refusal, the setup warning or a
// labeled system error. A non-nil error accompanies the last two.
func (s *RAGService) Ask(ctx context.Context, question string, lang domain.Language, onFragment func(string)) (domain.Answer, error) {
	q := &query{
		QueryContext: domain.QueryContext{TurnID: uuid.NewString(), Question: question, Language: lang},
		log:          s.log,
	}
	ctx, span := telemetry.Tracer().Start(ctx, "service.ask")
	defer span.End()
	span.SetAttributes(attribute.String("turn.id", q.TurnID), attribute.String("language", lang.Code()))

	a, err := s.run(ctx, q, onFragment)
	span.SetAttributes(attribute.String("outcome", a.Outcome.String()), attribute.Int("citations", len(a.Citations)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return a, err
}

func (s *RAGService) run(ctx context.Context, q *query, onFragment func(string)) (domain.Answer, error) {
	answer := domain.Answer{TurnID: q.TurnID, Language: q.Language}

	ix, err := s.Ready(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrCorpusMissing) || errors.Is(err, domain.ErrCorpusEmpty) {
			answer.Outcome = domain.NotReady
			answer.Text = prompt.SetupWarning(s.cfg.CorpusDir, q.Language)
			return answer, fmt.Errorf("%w: %w", domain.ErrNotReady, err)
		}
		return q.fail(answer, err)
	}

	q.enter(StateEmbedding)
	q.enter(StateRetrieving)
	retrieved, err := s.deps.Retriever.Retrieve(ctx, ix, q.Question, s.cfg.TopK, s.cfg.MinSimilarity)
	if err != nil {
		return q.fail(answer, err)
	}
	q.enter(StateFiltering)
	q.Retrieved = retrieved

	if len(retrieved) == 0 {
		q.enter(StateNoContext)
		answer.Outcome = domain.NoRelevantContext
		answer.Text = prompt.NoDataMessage(q.Language)
		q.enter(StateDone)
		return answer, nil
	}

	q.enter(StateComposing)
	text := s.deps.Composer.Compose(q.Question, q.Retrieved, q.Language)

	q.enter(StateGenerating)
	genCtx := ctx
	if s.cfg.Params.Timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, s.cfg.Params.Timeout)
		defer cancel()
	}
	generated, err := generation.Collect(s.deps.Generator.Generate(genCtx, text, s.cfg.Params), onFragment)
	if err != nil {
		if !errors.Is(err, domain.ErrGenerationFailed) {
			err = generation.Failed(s.deps.Generator.Name(), err)
		}
		return q.fail(answer, err)
	}

	q.enter(StateCiting)
	answer.Outcome = domain.Answered
	answer.Text = generated
	answer.Citations = citation.Cite(q.Retrieved)
	q.enter(StateDone)
	return answer, nil
}
