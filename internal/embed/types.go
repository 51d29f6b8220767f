package embed

import (
	"context"
	"math"
	"time"
)

// Batch and retry limits for the external embedding provider (spec §4.4).
const (
	// MinBatchSize is the minimum allowed batch size.
	MinBatchSize = 1

	// MaxBatchSize is the maximum allowed batch size (prevents memory exhaustion).
	MaxBatchSize = 256

	// DefaultBatchSize is the default batch size for embedding requests.
	DefaultBatchSize = 32

	// DefaultTimeout bounds a single provider call.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the number of retry attempts embedBatch/embedQuery
	// make before giving up (spec §4.4: "up to 3 times").
	DefaultMaxRetries = 3

	// DefaultRetryBaseDelay and DefaultRetryFactor give the exponential
	// backoff schedule 1s, 2s, 4s (spec §4.4: "base 1 s, factor 2").
	DefaultRetryBaseDelay = 1 * time.Second
	DefaultRetryFactor    = 2.0
)

// DefaultDimensions is the default embedding width (spec §6: numDimensions=1024).
const DefaultDimensions = 1024

// StaticDimensions is the embedding dimension produced by the deterministic
// fallback embedder when no explicit dimensionality is requested.
const StaticDimensions = DefaultDimensions

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text (embedQuery, spec §4.4).
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts (embedBatch, spec §4.4).
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks if the embedder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
