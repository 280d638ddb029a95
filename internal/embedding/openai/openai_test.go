package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mpkai/internal/domain"
)

func TestNewClient_MissingKey(t *testing.T) {
	t.Setenv("MPKAI_TEST_KEY", "")
	_, err := NewClient(Config{APIKeyEnv: "MPKAI_TEST_KEY"})
	assert.Error(t, err)
}

func TestEmbed_ParsesResponse(t *testing.T) {
	t.Setenv("MPKAI_TEST_KEY", "sk-test")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/embeddings"))
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "text-embedding-3-small", body["model"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small",
			"data":[{"object":"embedding","index":0,"embedding":[0.1,0.2,0.3]}],
			"usage":{"prompt_tokens":1,"total_tokens":1}}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL + "/v1", APIKeyEnv: "MPKAI_TEST_KEY"})
	require.NoError(t, err)
	require.NoError(t, c.Prepare(context.Background(), nil))

	v, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.1, 0.2, 0.3}, v, 1e-6)
	assert.Equal(t, 3, c.Dimension())
}

func TestEmbed_ServerErrorIsUnavailable(t *testing.T) {
	t.Setenv("MPKAI_TEST_KEY", "sk-test")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"model does not exist","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, APIKeyEnv: "MPKAI_TEST_KEY"})
	require.NoError(t, err)

	_, err = c.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}
