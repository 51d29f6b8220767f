package embed

import (
	"context"
	"errors"
	"testing"

	amanerrors "github.com/romiluz13/clawmongo/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingEmbedder struct{ err error }

func (f *failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, f.err
}
func (f *failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, f.err
}
func (f *failingEmbedder) Dimensions() int          { return 8 }
func (f *failingEmbedder) ModelName() string        { return "failing" }
func (f *failingEmbedder) Available(ctx context.Context) bool { return f.err == nil }
func (f *failingEmbedder) Close() error             { return nil }

func TestCircuitBreakerEmbedderOpensAfterFailures(t *testing.T) {
	inner := &failingEmbedder{err: errors.New("provider down")}
	cb := amanerrors.NewCircuitBreaker("test-embedder", amanerrors.WithMaxFailures(2))
	e := NewCircuitBreakerEmbedder(inner, cb)

	_, err := e.Embed(context.Background(), "a")
	require.Error(t, err)
	_, err = e.Embed(context.Background(), "b")
	require.Error(t, err)

	assert.Equal(t, amanerrors.StateOpen, e.State())

	_, err = e.Embed(context.Background(), "c")
	require.ErrorIs(t, err, amanerrors.ErrCircuitOpen)
	assert.False(t, e.Available(context.Background()), "Available must not call a provider behind an open circuit")
}
