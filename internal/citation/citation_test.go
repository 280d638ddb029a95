package citation

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"

	"mpkai/internal/domain"
)

func hit(file, page string, ord int) domain.SearchResult {
	return domain.SearchResult{Chunk: domain.Chunk{SourceFile: file, PageLabel: page, Ordinal: ord}, Score: 0.8}
}

func TestCite_DeduplicatesSamePage(t *testing.T) {
	got := Cite([]domain.SearchResult{
		hit("Profile.pdf", "3", 0),
		hit("Profile.pdf", "3", 1),
		hit("Notes.txt", "?", 2),
	})
	assert.Equal(t, []string{"Profile.pdf (page 3)", "Notes.txt (page ?)"}, got)
}

func TestCite_OrderIndependentSet(t *testing.T) {
	in := []domain.SearchResult{
		hit("a.pdf", "1", 0),
		hit("b.pdf", "2", 1),
		hit("a.pdf", "1", 2),
		hit("c.txt", "?", 3),
	}
	rev := slices.Clone(in)
	slices.Reverse(rev)

	assert.ElementsMatch(t, Cite(in), Cite(rev))
}

func TestCite_Empty(t *testing.T) {
	assert.Empty(t, Cite(nil))
}

func TestBlock(t *testing.T) {
	got := Block([]string{"Profile.pdf (page 3)"}, domain.Indonesian)
	assert.Equal(t, "\n\n---\n**Sumber Data:**\n- `Profile.pdf (page 3)`\n", got)

	got = Block([]string{"a (page 1)", "b (page 2)"}, domain.English)
	assert.Equal(t, "\n\n---\n**Sources:**\n- `a (page 1)`\n- `b (page 2)`\n", got)

	assert.Empty(t, Block(nil, domain.English))
}

func TestRender(t *testing.T) {
	a := domain.Answer{Text: "Founded in 2010.", Language: domain.English, Citations: []string{"Profile.pdf (page 3)"}}
	assert.Equal(t, "Founded in 2010.\n\n---\n**Sources:**\n- `Profile.pdf (page 3)`\n", Render(a))

	refusal := domain.Answer{Text: "Data not found in MPK official documents.", Language: domain.English}
	assert.Equal(t, refusal.Text, Render(refusal))
}
