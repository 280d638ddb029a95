package citation

import (
	"fmt"
	"strings"

	"mpkai/internal/domain"
	"mpkai/internal/prompt"
)

// Format renders one chunk's origin as "file (page N)".
func Format(ch domain.Chunk) string {
	return fmt.Sprintf("%s (page %s)", ch.SourceFile, ch.PageLabel)
}

// Cite returns the distinct citations of the retrieved chunks in first-seen order.
// The set of citations does not depend on the input order.
func Cite(retrieved []domain.SearchResult) []string {
	seen := make(map[string]struct{}, len(retrieved))
	out := make([]string, 0, len(retrieved))
	for _, r := range retrieved {
		c := Format(r.Chunk)
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Block renders citations as the markdown footer appended to a displayed answer.
// No citations render as an empty string.
func Block(citations []string, lang domain.Language) string {
	if len(citations) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "\n\n---\n**%s:**\n", prompt.SourcesLabel(lang))
	for _, c := range citations {
		fmt.Fprintf(&b, "- `%s`\n", c)
	}
	return b.String()
}

// Render is the answer text as displayed: generated text followed by its citation block.
func Render(a domain.Answer) string {
	return a.Text + Block(a.Citations, a.Language)
}
