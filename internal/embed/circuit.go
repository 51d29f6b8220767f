package embed

import (
	"context"

	amanerrors "github.com/romiluz13/clawmongo/internal/errors"
)

// CircuitBreakerEmbedder wraps an Embedder with a circuit breaker (spec
// SPEC_FULL.md "a circuit breaker must guard the embedding provider ...
// surfaced through status()'s fallback field"). Once the provider has
// failed enough times in a row, Embed/EmbedBatch short-circuit to
// errors.ErrCircuitOpen instead of retrying a provider that's down, letting
// the sync engine's existing "persist chunks without vectors" fallback take
// over immediately rather than after a full retry-with-backoff cycle.
type CircuitBreakerEmbedder struct {
	inner Embedder
	cb    *amanerrors.CircuitBreaker
}

var _ Embedder = (*CircuitBreakerEmbedder)(nil)

// NewCircuitBreakerEmbedder wraps inner behind cb.
func NewCircuitBreakerEmbedder(inner Embedder, cb *amanerrors.CircuitBreaker) *CircuitBreakerEmbedder {
	return &CircuitBreakerEmbedder{inner: inner, cb: cb}
}

func (c *CircuitBreakerEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return amanerrors.CircuitExecuteWithResult(c.cb,
		func() ([]float32, error) { return c.inner.Embed(ctx, text) },
		func() ([]float32, error) { return nil, amanerrors.ErrCircuitOpen },
	)
}

func (c *CircuitBreakerEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return amanerrors.CircuitExecuteWithResult(c.cb,
		func() ([][]float32, error) { return c.inner.EmbedBatch(ctx, texts) },
		func() ([][]float32, error) { return nil, amanerrors.ErrCircuitOpen },
	)
}

func (c *CircuitBreakerEmbedder) Dimensions() int { return c.inner.Dimensions() }

func (c *CircuitBreakerEmbedder) ModelName() string { return c.inner.ModelName() }

// Available reports false without calling the provider when the circuit is
// already open, saving a doomed round trip.
func (c *CircuitBreakerEmbedder) Available(ctx context.Context) bool {
	if !c.cb.Allow() {
		return false
	}
	return c.inner.Available(ctx)
}

func (c *CircuitBreakerEmbedder) Close() error { return c.inner.Close() }

// State reports the breaker's current state, for status() reporting.
func (c *CircuitBreakerEmbedder) State() amanerrors.State { return c.cb.State() }
