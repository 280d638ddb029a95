package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mpkai/internal/domain"
	"mpkai/internal/generation"
)

func TestNew_MissingKey(t *testing.T) {
	t.Setenv("MPKAI_OPENAI_TEST_KEY", "")
	_, err := New(Config{APIKeyEnv: "MPKAI_OPENAI_TEST_KEY", Model: "gpt-4o-mini"})
	assert.Error(t, err)
}

func TestGenerate_StreamsDeltas(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range []string{"Data ", "found."} {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", delta)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	t.Setenv("MPKAI_OPENAI_TEST_KEY", "test-key")
	g, err := New(Config{BaseURL: srv.URL + "/v1", APIKeyEnv: "MPKAI_OPENAI_TEST_KEY", Model: "gpt-4o-mini"})
	require.NoError(t, err)

	text, err := generation.Collect(g.Generate(context.Background(), "prompt", domain.GenerationParams{Temperature: 0.1, TopP: 0.85, TopK: 20}), nil)
	require.NoError(t, err)
	assert.Equal(t, "Data found.", text)

	assert.Equal(t, "gpt-4o-mini", body["model"])
	assert.Equal(t, true, body["stream"])
	assert.InDelta(t, 0.1, body["temperature"], 1e-9)
	assert.InDelta(t, 0.85, body["top_p"], 1e-9)
	assert.EqualValues(t, 20, body["top_k"])
}

func TestGenerate_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad prompt","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	t.Setenv("MPKAI_OPENAI_TEST_KEY", "test-key")
	g, err := New(Config{BaseURL: srv.URL + "/v1", APIKeyEnv: "MPKAI_OPENAI_TEST_KEY", Model: "m"})
	require.NoError(t, err)

	_, err = generation.Collect(g.Generate(context.Background(), "prompt", domain.GenerationParams{}), nil)
	assert.ErrorIs(t, err, domain.ErrGenerationFailed)
}
