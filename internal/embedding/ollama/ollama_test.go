package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mpkai/internal/domain"
)

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestEmbed_ParsesEmbeddings(t *testing.T) {
	var got map[string]any
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"bge-m3","embeddings":[[0.6,0.8,0]]}`))
	})

	e, err := New(Config{Host: srv.URL, Model: "bge-m3", Device: "cpu"})
	require.NoError(t, err)
	require.NoError(t, e.Prepare(context.Background(), nil))

	v, err := e.Embed(context.Background(), "notary")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.6, 0.8, 0}, v)
	assert.Equal(t, 3, e.Dimension())
	assert.Equal(t, "bge-m3", got["model"])
	assert.Equal(t, "notary", got["input"])
	assert.Equal(t, map[string]any{"num_gpu": float64(0)}, got["options"])
}

func TestEmbed_ModelMissingIsUnavailable(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model \"bge-m3\" not found, try pulling it first"}`))
	})

	e, err := New(Config{Host: srv.URL, Model: "bge-m3", Device: "cuda"})
	require.NoError(t, err)

	err = e.Prepare(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	assert.Contains(t, err.Error(), "not found")
}

func TestNew_RequiresModel(t *testing.T) {
	_, err := New(Config{Host: "http://127.0.0.1:11434"})
	assert.Error(t, err)
}
