package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTEIServer returns a fake TEI server that embeds each input as
// [len(runes), 1, 0].
func newTEIServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Inputs   json.RawMessage `json:"inputs"`
			Truncate bool            `json:"truncate"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Truncate)

		var inputs []string
		if err := json.Unmarshal(req.Inputs, &inputs); err != nil {
			var single string
			require.NoError(t, json.Unmarshal(req.Inputs, &single))
			inputs = []string{single}
		}
		out := make([][]float32, len(inputs))
		for i, in := range inputs {
			out[i] = []float32{float32(len([]rune(in))), 1, 0}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewService(t *testing.T) {
	_, err := NewService(Config{})
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "base URL required")

	svc, err := NewService(Config{BaseURL: "http://localhost:8080/", Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", svc.config.BaseURL)
}

func TestService_EmbedDocuments(t *testing.T) {
	srv := newTEIServer(t)
	svc, err := NewService(Config{BaseURL: srv.URL, Model: "test"})
	require.NoError(t, err)

	vectors, err := svc.EmbedDocuments(context.Background(), []string{"დღგ", "hello"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{3, 1, 0}, vectors[0])
	assert.Equal(t, []float32{5, 1, 0}, vectors[1])
}

func TestService_EmbedDocuments_Empty(t *testing.T) {
	svc, err := NewService(Config{BaseURL: "http://unused"})
	require.NoError(t, err)

	_, err = svc.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestService_EmbedQuery(t *testing.T) {
	srv := newTEIServer(t)
	svc, err := NewService(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	vector, err := svc.EmbedQuery(context.Background(), "ქვითარი")
	require.NoError(t, err)
	assert.Equal(t, []float32{7, 1, 0}, vector)

	_, err = svc.EmbedQuery(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestService_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	svc, err := NewService(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = svc.EmbedDocuments(context.Background(), []string{"x"})
	require.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestService_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[[1,0]]`))
	}))
	defer srv.Close()

	svc, err := NewService(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = svc.EmbedDocuments(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestService_ContextCancelled(t *testing.T) {
	srv := newTEIServer(t)
	svc, err := NewService(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.EmbedQuery(ctx, "x")
	assert.Error(t, err)
}
