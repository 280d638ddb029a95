// Package generation holds what the generation backends share. Backends live in
// subpackages and stream answers as iter.Seq2[string, error]; the sequence ends
// after the first error, which always wraps domain.ErrGenerationFailed.
package generation

import (
	"fmt"
	"iter"
	"strings"

	"mpkai/internal/domain"
)

// Failed wraps a backend failure as domain.ErrGenerationFailed.
func Failed(backend string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrGenerationFailed, backend, err)
}

// Collect drains a stream, forwarding every fragment to onFragment when it is not nil.
// On error the partial text is discarded and only the error is returned.
func Collect(stream iter.Seq2[string, error], onFragment func(string)) (string, error) {
	var b strings.Builder
	for frag, err := range stream {
		if err != nil {
			return "", err
		}
		b.WriteString(frag)
		if onFragment != nil {
			onFragment(frag)
		}
	}
	return b.String(), nil
}
