package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mpkai/internal/domain"
	"mpkai/internal/generation"
)

func params() domain.GenerationParams {
	return domain.GenerationParams{Temperature: 0.1, TopP: 0.85, TopK: 20, NumGPU: 35, NumThread: 8}
}

func TestGenerate_StreamsFragments(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, line := range []string{
			`{"model":"MPK-AI","response":"PT MPK ","done":false}`,
			`{"model":"MPK-AI","response":"was founded in 2010.","done":false}`,
			`{"model":"MPK-AI","response":"","done":true}`,
		} {
			_, _ = w.Write([]byte(line + "\n"))
		}
	}))
	defer srv.Close()

	g, err := New(srv.URL, "MPK-AI")
	require.NoError(t, err)

	text, err := generation.Collect(g.Generate(context.Background(), "prompt", params()), nil)
	require.NoError(t, err)
	assert.Equal(t, "PT MPK was founded in 2010.", text)

	assert.Equal(t, "MPK-AI", got["model"])
	assert.Equal(t, "prompt", got["prompt"])
	opts, ok := got["options"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 0.1, opts["temperature"], 1e-9)
	assert.InDelta(t, 0.85, opts["top_p"], 1e-9)
	assert.EqualValues(t, 20, opts["top_k"])
	assert.EqualValues(t, 35, opts["num_gpu"])
	assert.EqualValues(t, 8, opts["num_thread"])
}

func TestGenerate_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model 'MPK-AI' not found"}`))
	}))
	defer srv.Close()

	g, err := New(srv.URL, "MPK-AI")
	require.NoError(t, err)

	_, err = generation.Collect(g.Generate(context.Background(), "prompt", params()), nil)
	assert.ErrorIs(t, err, domain.ErrGenerationFailed)
	assert.Contains(t, err.Error(), "not found")
}

func TestGenerate_TimeoutMidStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"partial","done":false}` + "\n"))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	g, err := New(srv.URL, "MPK-AI")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var fragments []string
	text, err := generation.Collect(g.Generate(ctx, "prompt", params()), func(f string) { fragments = append(fragments, f) })
	assert.ErrorIs(t, err, domain.ErrGenerationFailed)
	assert.Empty(t, text)
	assert.Equal(t, []string{"partial"}, fragments)
}

func TestGenerate_ConsumerStopsEarly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for range 3 {
			_, _ = w.Write([]byte(`{"response":"x","done":false}` + "\n"))
		}
	}))
	defer srv.Close()

	g, err := New(srv.URL, "MPK-AI")
	require.NoError(t, err)

	n := 0
	for _, err := range g.Generate(context.Background(), "prompt", params()) {
		require.NoError(t, err)
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestOptions_OmitsUnsetHardwareHints(t *testing.T) {
	opts := Options(domain.GenerationParams{Temperature: 0.1})
	assert.NotContains(t, opts, "num_gpu")
	assert.NotContains(t, opts, "num_thread")
}
