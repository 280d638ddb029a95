package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"mpkai/internal/domain"
)

// ReadText reads a whole text file as a single unit without a page label.
func ReadText(path string) ([]domain.Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		data = []byte(strings.ToValidUTF8(string(data), ""))
	}
	return []domain.Page{{
		SourceFile: filepath.Base(path),
		PageLabel:  domain.UnknownPage,
		Text:       string(data),
	}}, nil
}

// ReadPDF extracts plain text page by page; the page label is the 1-based page number.
// Pages that fail to decode are skipped.
func ReadPDF(path string) (pages []domain.Page, err error) {
	// the pdf package panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("malformed pdf %s: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	name := filepath.Base(path)
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		fonts := make(map[string]*pdf.Font)
		text, err := p.GetPlainText(fonts)
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, domain.Page{
			SourceFile: name,
			PageLabel:  strconv.Itoa(i),
			Text:       text,
		})
	}
	return pages, nil
}
