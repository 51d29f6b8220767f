package embed

import (
	"context"
	"log/slog"

	"github.com/romiluz13/clawmongo/internal/store"
)

// PersistentCache is the interface internal/store.EmbedCacheStore satisfies;
// declared here so embed does not need to import mongo-driver types.
type PersistentCache interface {
	Get(ctx context.Context, textHash, model string) ([]float32, bool, error)
	Put(ctx context.Context, textHash, model string, embedding []float32) error
}

// PersistentCachedEmbedder wraps an Embedder with a durable L2 cache in the
// embedding_cache collection, sitting behind the in-process LRU
// (CachedEmbedder) so repeated text across process restarts still avoids a
// provider round-trip (spec §3 "embedding_cache", §6 embeddingCacheTtlDays).
type PersistentCachedEmbedder struct {
	inner Embedder
	cache PersistentCache
}

var _ Embedder = (*PersistentCachedEmbedder)(nil)

// NewPersistentCachedEmbedder wraps inner with the durable cache.
func NewPersistentCachedEmbedder(inner Embedder, cache PersistentCache) *PersistentCachedEmbedder {
	return &PersistentCachedEmbedder{inner: inner, cache: cache}
}

func (p *PersistentCachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	hash := store.HashText(text)
	model := p.inner.ModelName()

	if vec, ok, err := p.cache.Get(ctx, hash, model); err == nil && ok {
		return vec, nil
	} else if err != nil {
		slog.Warn("embed: persistent cache read failed, falling back to provider", slog.String("error", err.Error()))
	}

	vec, err := p.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := p.cache.Put(ctx, hash, model, vec); err != nil {
		slog.Warn("embed: persistent cache write failed", slog.String("error", err.Error()))
	}
	return vec, nil
}

func (p *PersistentCachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	model := p.inner.ModelName()
	results := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		hash := store.HashText(text)
		if vec, ok, err := p.cache.Get(ctx, hash, model); err == nil && ok {
			results[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	vecs, err := p.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		results[idx] = vecs[j]
		hash := store.HashText(texts[idx])
		if err := p.cache.Put(ctx, hash, model, vecs[j]); err != nil {
			slog.Warn("embed: persistent cache write failed", slog.String("error", err.Error()))
		}
	}
	return results, nil
}

func (p *PersistentCachedEmbedder) Dimensions() int             { return p.inner.Dimensions() }
func (p *PersistentCachedEmbedder) ModelName() string           { return p.inner.ModelName() }
func (p *PersistentCachedEmbedder) Available(ctx context.Context) bool { return p.inner.Available(ctx) }
func (p *PersistentCachedEmbedder) Close() error                { return p.inner.Close() }
