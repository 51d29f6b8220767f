package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProviderEmbedBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := embedResponse{}
		for range req.Input {
			resp.Data = append(resp.Data, embedResponseRow{Embedding: []float64{1, 2, 3}})
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	p := NewHTTPProvider(ProviderConfig{Endpoint: srv.URL, Model: "test-model", Dimensions: 3})
	vecs, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Len(t, vecs[0], 3)
}

func TestHTTPProviderEmbedEmptyText(t *testing.T) {
	p := NewHTTPProvider(ProviderConfig{Endpoint: "http://unused", Dimensions: 8})
	vec, err := p.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Len(t, vec, 8)
}

func TestHTTPProviderRetriesThenFails(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewHTTPProvider(ProviderConfig{Endpoint: srv.URL, Model: "test-model", Dimensions: 3, MaxRetries: 2})
	_, err := p.EmbedBatch(context.Background(), []string{"a"})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestHTTPProviderCloseRejectsFurtherCalls(t *testing.T) {
	p := NewHTTPProvider(ProviderConfig{Endpoint: "http://unused", Dimensions: 4})
	require.NoError(t, p.Close())
	_, err := p.EmbedBatch(context.Background(), []string{"a"})
	assert.Error(t, err)
}
