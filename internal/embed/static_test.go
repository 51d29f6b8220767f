package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedderDefaultDimensions(t *testing.T) {
	e := NewStaticEmbedder()
	assert.Equal(t, DefaultDimensions, e.Dimensions())
}

func TestStaticEmbedderCustomDimensions(t *testing.T) {
	e := NewStaticEmbedderDims(128)
	vec, err := e.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Len(t, vec, 128)
}

func TestStaticEmbedderEmptyTextIsZeroVector(t *testing.T) {
	e := NewStaticEmbedderDims(64)
	vec, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Len(t, vec, 64)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestStaticEmbedderDeterministic(t *testing.T) {
	e := NewStaticEmbedderDims(64)
	ctx := context.Background()
	v1, err := e.Embed(ctx, "the quick brown fox")
	require.NoError(t, err)
	v2, err := e.Embed(ctx, "the quick brown fox")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestStaticEmbedderBatch(t *testing.T) {
	e := NewStaticEmbedderDims(64)
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", ""})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.Len(t, v, 64)
	}
}

func TestStaticEmbedderCloseRejectsFurtherCalls(t *testing.T) {
	e := NewStaticEmbedder()
	require.NoError(t, e.Close())
	_, err := e.Embed(context.Background(), "text")
	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}
