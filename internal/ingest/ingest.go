package ingest

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"mpkai/internal/domain"
)

// PageReader extracts the pages of one file.
type PageReader func(path string) ([]domain.Page, error)

// Ingestor walks a corpus directory and turns every supported file into chunks.
type Ingestor struct {
	chunker domain.Chunker
	readers map[string]PageReader
	log     *zap.Logger
}

// New creates an ingestor for the given extensions. Unknown extensions are ignored
// with a warning; ".pdf" is read page by page, everything else as plain text.
func New(chunker domain.Chunker, extensions []string, log *zap.Logger) *Ingestor {
	readers := make(map[string]PageReader, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		switch ext {
		case ".pdf":
			readers[ext] = ReadPDF
		case ".txt", ".md", ".markdown", ".csv":
			readers[ext] = ReadText
		default:
			log.Warn("no reader for extension, skipping", zap.String("ext", ext))
		}
	}
	return &Ingestor{chunker: chunker, readers: readers, log: log}
}

// Ingest reads dir recursively in lexical order and returns chunks in corpus order.
// It returns domain.ErrCorpusMissing when dir does not exist and
// domain.ErrCorpusEmpty when nothing chunkable was found.
func (in *Ingestor) Ingest(ctx context.Context, dir string) ([]domain.Chunk, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrCorpusMissing, dir)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", domain.ErrCorpusMissing, dir)
	}

	var chunks []domain.Chunk
	files := 0
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			in.log.Warn("unreadable corpus entry", zap.String("path", path), zap.Error(walkErr))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		read, ok := in.readers[strings.ToLower(filepath.Ext(path))]
		if !ok {
			return nil
		}
		pages, err := read(path)
		if err != nil {
			in.log.Warn("skipping unreadable document", zap.String("path", path), zap.Error(err))
			return nil
		}
		files++
		for _, page := range pages {
			page = withSentinels(page)
			pieces, err := in.chunker.Chunk(page)
			if err != nil {
				return fmt.Errorf("chunk %s page %s: %w", path, page.PageLabel, err)
			}
			for _, ch := range pieces {
				ch.Ordinal = len(chunks)
				ch.ID = chunkID(ch)
				chunks = append(chunks, ch)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s (%d documents read)", domain.ErrCorpusEmpty, dir, files)
	}
	in.log.Info("corpus ingested", zap.String("dir", dir), zap.Int("documents", files), zap.Int("chunks", len(chunks)))
	return chunks, nil
}

// Fingerprint identifies a chunk sequence by content, metadata and order.
func Fingerprint(chunks []domain.Chunk) string {
	h := sha1.New()
	for _, ch := range chunks {
		fmt.Fprintf(h, "%s\x00%s\x00%d\x00%s\x01", ch.SourceFile, ch.PageLabel, ch.Ordinal, ch.Text)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func withSentinels(p domain.Page) domain.Page {
	if strings.TrimSpace(p.SourceFile) == "" {
		p.SourceFile = domain.UnknownSource
	}
	if strings.TrimSpace(p.PageLabel) == "" {
		p.PageLabel = domain.UnknownPage
	}
	return p
}

func chunkID(ch domain.Chunk) string {
	return hashString(ch.SourceFile+"#"+ch.PageLabel) + ":" + strconv.Itoa(ch.Ordinal)
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}
