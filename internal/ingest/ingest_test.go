package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mpkai/internal/chunker"
	"mpkai/internal/domain"
)

func newTestIngestor() *Ingestor {
	return New(chunker.NewSentenceChunker(2, 0), []string{".pdf", ".txt", "md", ".docx"}, zap.NewNop())
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestIngest_MissingDirectory(t *testing.T) {
	_, err := newTestIngestor().Ingest(context.Background(), filepath.Join(t.TempDir(), "data"))
	assert.ErrorIs(t, err, domain.ErrCorpusMissing)
}

func TestIngest_FileInsteadOfDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	writeFile(t, path, "not a dir")
	_, err := newTestIngestor().Ingest(context.Background(), path)
	assert.ErrorIs(t, err, domain.ErrCorpusMissing)
}

func TestIngest_EmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "notes.bin"), "ignored")
	writeFile(t, filepath.Join(dir, "blank.txt"), "   ")

	_, err := newTestIngestor().Ingest(context.Background(), dir)
	assert.ErrorIs(t, err, domain.ErrCorpusEmpty)
}

func TestIngest_RecursiveInCorpusOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.txt"), "Beta one. Beta two. Beta three.")
	writeFile(t, filepath.Join(dir, "a", "nested.md"), "Alpha one.")
	writeFile(t, filepath.Join(dir, "a", "skip.json"), `{"x": 1}`)

	chunks, err := newTestIngestor().Ingest(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, "nested.md", chunks[0].SourceFile)
	assert.Equal(t, "Alpha one.", chunks[0].Text)
	assert.Equal(t, "b.txt", chunks[1].SourceFile)
	assert.Equal(t, "Beta one. Beta two.", chunks[1].Text)
	assert.Equal(t, "Beta three.", chunks[2].Text)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Ordinal)
		assert.Equal(t, domain.UnknownPage, ch.PageLabel)
		assert.NotEmpty(t, ch.ID)
	}
	assert.NotEqual(t, chunks[1].ID, chunks[2].ID)
}

func TestIngest_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "Alpha.")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestIngestor().Ingest(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIngest_SkipsBrokenPDF(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "broken.pdf"), "%PDF-1.4 garbage")
	writeFile(t, filepath.Join(dir, "ok.txt"), "Still indexed.")

	chunks, err := newTestIngestor().Ingest(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "ok.txt", chunks[0].SourceFile)
}

func TestFingerprint(t *testing.T) {
	a := []domain.Chunk{{Text: "x", SourceFile: "f.pdf", PageLabel: "1"}, {Text: "y", SourceFile: "f.pdf", PageLabel: "2", Ordinal: 1}}
	b := []domain.Chunk{{Text: "x", SourceFile: "f.pdf", PageLabel: "1"}, {Text: "y", SourceFile: "f.pdf", PageLabel: "2", Ordinal: 1}}
	c := []domain.Chunk{{Text: "x", SourceFile: "f.pdf", PageLabel: "1"}, {Text: "y", SourceFile: "f.pdf", PageLabel: "3", Ordinal: 1}}

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))
}

func TestWithSentinels(t *testing.T) {
	p := withSentinels(domain.Page{Text: "x"})
	assert.Equal(t, domain.UnknownSource, p.SourceFile)
	assert.Equal(t, domain.UnknownPage, p.PageLabel)
}
