package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePersistentCache struct {
	store map[string][]float32
	gets  int
	puts  int
}

func newFakePersistentCache() *fakePersistentCache {
	return &fakePersistentCache{store: map[string][]float32{}}
}

func (f *fakePersistentCache) Get(_ context.Context, textHash, model string) ([]float32, bool, error) {
	f.gets++
	v, ok := f.store[textHash+model]
	return v, ok, nil
}

func (f *fakePersistentCache) Put(_ context.Context, textHash, model string, embedding []float32) error {
	f.puts++
	f.store[textHash+model] = embedding
	return nil
}

func TestPersistentCachedEmbedderMissThenHit(t *testing.T) {
	inner := NewStaticEmbedderDims(16)
	cache := newFakePersistentCache()
	p := NewPersistentCachedEmbedder(inner, cache)

	ctx := context.Background()
	v1, err := p.Embed(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.puts)

	v2, err := p.Embed(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, cache.puts, "second call should hit the cache, not write again")
}

func TestPersistentCachedEmbedderBatchPartialHit(t *testing.T) {
	inner := NewStaticEmbedderDims(16)
	cache := newFakePersistentCache()
	p := NewPersistentCachedEmbedder(inner, cache)

	ctx := context.Background()
	_, err := p.Embed(ctx, "cached")
	require.NoError(t, err)

	vecs, err := p.EmbedBatch(ctx, []string{"cached", "fresh"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, 2, cache.puts)
}
