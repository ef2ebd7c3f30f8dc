package openai

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFakeServer serves deterministic embeddings: text i in a request embeds
// to [i, i, ...]. Entries come back in reverse order to exercise reordering.
func newFakeServer(t *testing.T, dim int, requests *atomic.Int64) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests != nil {
			requests.Add(1)
		}

		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := embeddingResponse{Data: make([]embeddingObject, len(req.Input))}
		for i := range req.Input {
			vec := make([]float64, dim)
			for j := range vec {
				vec[j] = float64(i)
			}
			// Reverse order on the wire.
			resp.Data[len(req.Input)-1-i] = embeddingObject{Embedding: vec, Index: i}
		}

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func newTestEmbedder(t *testing.T, server *httptest.Server, dim int, optFns ...func(o *Options)) *Embedder {
	t.Helper()

	all := append([]func(o *Options){func(o *Options) {
		o.APIBase = server.URL + "/v1"
		o.Model = "test-model"
		o.Dimension = dim
	}}, optFns...)

	e, err := New("test-key", all...)
	require.NoError(t, err)

	return e
}

func TestEncodeBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("OrderRestored", func(t *testing.T) {
		server := newFakeServer(t, 3, nil)
		defer server.Close()

		e := newTestEmbedder(t, server, 3)

		vectors, err := e.EncodeBatch(ctx, []string{"a", "b", "c"})
		require.NoError(t, err)
		require.Len(t, vectors, 3)

		for i, vec := range vectors {
			assert.Equal(t, []float32{float32(i), float32(i), float32(i)}, vec, "position %d", i)
		}
	})

	t.Run("SplitsByMaxBatchSize", func(t *testing.T) {
		var requests atomic.Int64

		server := newFakeServer(t, 2, &requests)
		defer server.Close()

		e := newTestEmbedder(t, server, 2, func(o *Options) {
			o.MaxBatchSize = 2
		})

		vectors, err := e.EncodeBatch(ctx, []string{"a", "b", "c", "d", "e"})
		require.NoError(t, err)
		assert.Len(t, vectors, 5)
		assert.Equal(t, int64(3), requests.Load())

		// Chunks restart index numbering, so position 2 is index 0 of the
		// second request.
		assert.Equal(t, []float32{0, 0}, vectors[2])
	})

	t.Run("Empty", func(t *testing.T) {
		e, err := New("test-key")
		require.NoError(t, err)

		vectors, err := e.EncodeBatch(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, vectors)
	})
}

func TestEncode(t *testing.T) {
	server := newFakeServer(t, 4, nil)
	defer server.Close()

	e := newTestEmbedder(t, server, 4)

	vec, err := e.Encode(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0, 0}, vec)
}

func TestAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limit exceeded"}}`)
	}))
	defer server.Close()

	e := newTestEmbedder(t, server, 4)

	_, err := e.Encode(context.Background(), "hello")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "rate limit exceeded", apiErr.Message)
}

func TestDimensionValidation(t *testing.T) {
	t.Run("BadOptions", func(t *testing.T) {
		_, err := New("test-key", func(o *Options) {
			o.Dimension = 0
		})
		require.Error(t, err)
	})

	t.Run("ResponseMismatch", func(t *testing.T) {
		server := newFakeServer(t, 3, nil)
		defer server.Close()

		// Server produces 3-dim vectors, client expects 8.
		e := newTestEmbedder(t, server, 8)

		_, err := e.Encode(context.Background(), "hello")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dimension")
	})
}

func TestModelName(t *testing.T) {
	e, err := New("test-key", func(o *Options) {
		o.Model = "custom-model"
	})
	require.NoError(t, err)

	assert.Equal(t, "custom-model", e.ModelName())
	assert.Equal(t, DefaultOptions.Dimension, e.Dimension())
}
