package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mpkai/internal/chunker"
	"mpkai/internal/config"
	"mpkai/internal/domain"
	embgemini "mpkai/internal/embedding/gemini"
	embollama "mpkai/internal/embedding/ollama"
	embopenai "mpkai/internal/embedding/openai"
	"mpkai/internal/embedding/tfidf"
	"mpkai/internal/generation"
	gengemini "mpkai/internal/generation/gemini"
	genollama "mpkai/internal/generation/ollama"
	genopenai "mpkai/internal/generation/openai"
	"mpkai/internal/index"
	"mpkai/internal/ingest"
	"mpkai/internal/prompt"
	"mpkai/internal/retrieval"
	"mpkai/internal/service"
	"mpkai/internal/summarizer"
	"mpkai/internal/vectorstore"
	"mpkai/internal/vectorstore/chromem"
	"mpkai/internal/vectorstore/memory"
	"mpkai/internal/vectorstore/qdrant"
)

const embedConcurrency = 4

type application struct {
	service *service.RAGService
	closers []func() error
	log     *zap.Logger
}

func (a *application) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.log.Warn("close failed", zap.Error(err))
		}
	}
}

// assemble builds the pipeline described by cfg. Nothing is ingested or embedded here.
func assemble(ctx context.Context, cfg *config.AppConfig, reindex bool, log *zap.Logger) (*application, error) {
	app := &application{log: log}

	var ch domain.Chunker
	switch cfg.Chunker.Type {
	case "sentence", "":
		ch = chunker.NewSentenceChunker(cfg.Chunker.SentencesPerChunk, cfg.Chunker.OverlapSentences)
	default:
		return nil, fmt.Errorf("unknown chunker: %s", cfg.Chunker.Type)
	}

	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case "tfidf":
		emb = tfidf.NewEmbedder()
	case "ollama":
		e, err := embollama.New(embollama.Config{
			Host:   cfg.Embedder.Ollama.Host,
			Model:  cfg.Embedder.Ollama.Model,
			Device: cfg.Embedder.Device,
		})
		if err != nil {
			return nil, err
		}
		log.Info("embedding device selected", zap.String("device", e.Device()))
		emb = e
	case "openai":
		oc := cfg.Embedder.OpenAI
		e, err := embopenai.NewClient(embopenai.Config{
			BaseURL:    oc.BaseURL,
			APIKeyEnv:  oc.APIKeyEnv,
			Model:      oc.Model,
			Timeout:    time.Duration(oc.TimeoutSecs) * time.Second,
			MaxRetries: 2,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		emb = e
	case "gemini":
		e, err := embgemini.New(ctx, cfg.Embedder.Gemini.APIKeyEnv, cfg.Embedder.Gemini.Model)
		if err != nil {
			return nil, fmt.Errorf("gemini embedder init failed: %w", err)
		}
		app.closers = append(app.closers, e.Close)
		emb = e
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}

	var st vectorstore.Storage
	switch cfg.VectorStore.Type {
	case "memory", "":
		st = memory.NewStorage()
	case "chromem":
		c, err := chromem.NewStorage(chromem.Config{Path: cfg.VectorStore.Chromem.Path, Compress: cfg.VectorStore.Chromem.Compress})
		if err != nil {
			return nil, err
		}
		st = c
	case "qdrant":
		q := cfg.VectorStore.Qdrant
		st = qdrant.NewStorage(qdrant.Config{
			URL:        q.URL,
			APIKey:     q.APIKey,
			Collection: q.Collection,
			Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
		})
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}

	params := cfg.GenerationParams()
	var gen domain.Generator
	switch cfg.Generator.Type {
	case "ollama":
		g, err := genollama.New(cfg.Generator.Ollama.Host, cfg.Generator.Model)
		if err != nil {
			return nil, err
		}
		gen = g
	case "openai":
		oc := cfg.Generator.OpenAI
		if oc.Model != "" {
			params.Model = oc.Model
		}
		g, err := genopenai.New(genopenai.Config{BaseURL: oc.BaseURL, APIKeyEnv: oc.APIKeyEnv, Model: params.Model, MaxRetries: 2})
		if err != nil {
			return nil, fmt.Errorf("openai generator init failed: %w", err)
		}
		gen = g
	case "gemini":
		if m := cfg.Generator.Gemini.Model; m != "" {
			params.Model = m
		}
		g, err := gengemini.New(ctx, cfg.Generator.Gemini.APIKeyEnv, params.Model)
		if err != nil {
			return nil, fmt.Errorf("gemini generator init failed: %w", err)
		}
		app.closers = append(app.closers, g.Close)
		gen = g
	default:
		return nil, fmt.Errorf("unknown generator: %s", cfg.Generator.Type)
	}
	guard := cfg.Generator.Guard
	gen = generation.NewGuard(gen, generation.GuardConfig{
		RequestsPerMinute: guard.RequestsPerMinute,
		BreakerFailures:   guard.BreakerFailures,
		BreakerCooldown:   time.Duration(guard.BreakerCooldown) * time.Second,
	}, log)

	var sum domain.Summarizer
	switch cfg.Summarizer.Type {
	case "frequency", "":
		sum = summarizer.NewFrequencySummarizer()
	default:
		return nil, fmt.Errorf("unknown summarizer: %s", cfg.Summarizer.Type)
	}

	builder := index.NewBuilder(emb, st, embedConcurrency, log)
	if reindex {
		builder.Reset()
	}
	app.service = service.NewRAGService(service.Deps{
		Source:     ingest.New(ch, cfg.Corpus.Extensions, log),
		Builder:    builder,
		Retriever:  retrieval.NewEngine(emb, log),
		Composer:   prompt.NewComposer(prompt.Persona{Name: cfg.Persona.Name, Role: cfg.Persona.Role, Rules: cfg.Persona.Rules}),
		Generator:  gen,
		Summarizer: sum,
	}, service.Config{
		CorpusDir:       cfg.Corpus.Dir,
		TopK:            cfg.Retrieval.TopK,
		MinSimilarity:   cfg.Retrieval.MinSimilarity,
		Params:          params,
		DigestSentences: cfg.Summarizer.MaxSentences,
	}, log)

	log.Info("pipeline assembled",
		zap.String("embedder", emb.Name()),
		zap.String("vector_store", cfg.VectorStore.Type),
		zap.String("generator", gen.Name()),
		zap.String("corpus", cfg.Corpus.Dir),
	)
	return app, nil
}
