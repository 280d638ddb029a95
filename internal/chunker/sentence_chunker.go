package chunker

import (
	"regexp"
	"strings"

	"mpkai/internal/domain"
)

// SentenceChunker splits page text into sentence-based chunks with overlap.
// Every chunk inherits the source file and page label of its page.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
	splitter          *regexp.Regexp
}

func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 8
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	// overlap must leave progress
	if overlapSentences >= sentencesPerChunk {
		overlapSentences = sentencesPerChunk - 1
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
		splitter:          regexp.MustCompile(`(?s)[^.!?]+(?:[.!?]+|$)`),
	}
}

func (c *SentenceChunker) Chunk(page domain.Page) ([]domain.Chunk, error) {
	var sentences []string
	for _, s := range c.splitter.FindAllString(page.Text, -1) {
		s = strings.Join(strings.Fields(s), " ")
		if s == "" || strings.Trim(s, ".!? ") == "" {
			continue
		}
		sentences = append(sentences, s)
	}
	if len(sentences) == 0 {
		return nil, nil
	}

	var chunks []domain.Chunk
	i := 0
	for i < len(sentences) {
		end := i + c.sentencesPerChunk
		if end > len(sentences) {
			end = len(sentences)
		}
		chunks = append(chunks, domain.Chunk{
			Text:       strings.Join(sentences[i:end], " "),
			SourceFile: page.SourceFile,
			PageLabel:  page.PageLabel,
		})
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
	}
	return chunks, nil
}
