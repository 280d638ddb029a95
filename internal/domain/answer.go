package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCorpusMissing        = errors.New("corpus directory does not exist")
	ErrCorpusEmpty          = errors.New("corpus yielded no chunks")
	ErrEmbeddingUnavailable = errors.New("embedding model unavailable")
	ErrGenerationFailed     = errors.New("generation failed")
	ErrNotReady             = errors.New("index not ready")
)

// Language is the locked output language of one request.
type Language int

const (
	Indonesian Language = iota
	English
)

func (l Language) String() string {
	switch l {
	case Indonesian:
		return "Bahasa Indonesia"
	case English:
		return "English"
	default:
		return fmt.Sprintf("Language(%d)", int(l))
	}
}

// Code returns the short config code of the language.
func (l Language) Code() string {
	if l == English {
		return "en"
	}
	return "id"
}

// Toggle returns the other supported language.
func (l Language) Toggle() Language {
	if l == English {
		return Indonesian
	}
	return English
}

// ParseLanguage accepts a config code or a display name.
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "id", "ind", "indonesian", "bahasa indonesia", "bahasa":
		return Indonesian, nil
	case "en", "eng", "english":
		return English, nil
	}
	return Indonesian, fmt.Errorf("unsupported language %q", s)
}

// Outcome tells how a query ended.
type Outcome int

const (
	Answered Outcome = iota
	NoRelevantContext
	NotReady
	Errored
)

func (o Outcome) String() string {
	switch o {
	case Answered:
		return "answered"
	case NoRelevantContext:
		return "no_context"
	case NotReady:
		return "not_ready"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// Answer is the final, immutable result of one query.
type Answer struct {
	TurnID    string
	Language  Language
	Text      string
	Citations []string
	Outcome   Outcome
}
