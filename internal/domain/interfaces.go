package domain

import (
	"context"
	"iter"
	"time"
)

// Sentinel metadata used when a source does not expose a file name or page.
const (
	UnknownSource = "Unknown"
	UnknownPage   = "?"
)

// Page is one extractable unit of a source document (a PDF page, or a whole text file).
type Page struct {
	SourceFile string
	PageLabel  string
	Text       string
}

// Chunk is the smallest indexed unit of corpus text.
type Chunk struct {
	ID         string
	Text       string
	SourceFile string
	PageLabel  string
	// Ordinal is the position of the chunk in corpus order and breaks score ties.
	Ordinal int
	Vector  []float32
}

// SearchResult pairs a chunk with its cosine similarity to a query vector.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// QueryContext holds everything one query needs after retrieval.
type QueryContext struct {
	TurnID    string
	Question  string
	Language  Language
	Retrieved []SearchResult
}

// GenerationParams are fixed per deployment.
type GenerationParams struct {
	Model       string
	Temperature float64
	TopP        float64
	TopK        int
	NumGPU      int
	NumThread   int
	Timeout     time.Duration
}

// Embedder converts free text into a numeric vector representation.
// Prepare is called once per index build with the full corpus; local
// embedders build their vocabulary there, remote ones probe the model.
type Embedder interface {
	Name() string
	Prepare(ctx context.Context, corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits a page into chunks that keep the page's metadata.
type Chunker interface {
	Chunk(page Page) ([]Chunk, error)
}

// Generator streams an answer for a composed prompt.
// The sequence ends after the first non-nil error.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string, params GenerationParams) iter.Seq2[string, error]
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
