package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mpkai/internal/domain"
)

func TestChunk_SplitsSentencesWithOverlap(t *testing.T) {
	c := NewSentenceChunker(2, 1)
	page := domain.Page{
		SourceFile: "Profile.pdf",
		PageLabel:  "3",
		Text:       "One is first. Two is second! Three is third? Four is last.",
	}

	chunks, err := c.Chunk(page)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, "One is first. Two is second!", chunks[0].Text)
	assert.Equal(t, "Two is second! Three is third?", chunks[1].Text)
	assert.Equal(t, "Three is third? Four is last.", chunks[2].Text)
	for _, ch := range chunks {
		assert.Equal(t, "Profile.pdf", ch.SourceFile)
		assert.Equal(t, "3", ch.PageLabel)
	}
}

func TestChunk_KeepsTrailingTextWithoutPunctuation(t *testing.T) {
	c := NewSentenceChunker(5, 0)
	chunks, err := c.Chunk(domain.Page{Text: "Owner: PT MPK\nNotary  Refizal, SH"})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Owner: PT MPK Notary Refizal, SH", chunks[0].Text)
}

func TestChunk_EmptyInput(t *testing.T) {
	c := NewSentenceChunker(3, 1)
	chunks, err := c.Chunk(domain.Page{Text: "  \n\t ... "})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestNewSentenceChunker_ClampsOverlap(t *testing.T) {
	c := NewSentenceChunker(2, 5)
	chunks, err := c.Chunk(domain.Page{Text: "A a. B b. C c."})
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
}
