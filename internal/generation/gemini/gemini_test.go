package gemini

import (
	"context"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
)

func TestNew_MissingKey(t *testing.T) {
	t.Setenv("MPKAI_GEMINI_TEST_KEY", "")
	_, err := New(context.Background(), "MPKAI_GEMINI_TEST_KEY", "")
	assert.Error(t, err)
}

func TestResponseText_JoinsTextParts(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("PT "), genai.Text("MPK")}}},
			{Content: nil},
		},
	}
	assert.Equal(t, "PT MPK", responseText(resp))
}
