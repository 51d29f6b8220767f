package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EmbedCacheStore persists embedding_cache, the durable backstop behind the
// in-process LRU in internal/embed (spec §3 "embedding_cache").
type EmbedCacheStore struct {
	coll *mongo.Collection
}

// NewEmbedCacheStore wraps the embedding_cache collection.
func NewEmbedCacheStore(c *Collections) *EmbedCacheStore {
	return &EmbedCacheStore{coll: c.EmbedCache}
}

// Get returns the cached vector for (textHash, model), if any.
func (s *EmbedCacheStore) Get(ctx context.Context, textHash, model string) ([]float32, bool, error) {
	var entry EmbeddingCacheEntry
	err := s.coll.FindOne(ctx, bson.M{"_id": EmbeddingCacheID(textHash, model)}).Decode(&entry)
	if err == mongo.ErrNoDocuments {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return entry.Embedding, true, nil
}

// Put stores a computed embedding for (textHash, model).
func (s *EmbedCacheStore) Put(ctx context.Context, textHash, model string, embedding []float32) error {
	entry := EmbeddingCacheEntry{
		ID:        EmbeddingCacheID(textHash, model),
		Embedding: embedding,
		CreatedAt: nowUTC(),
	}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": entry.ID}, entry, upsertOpts())
	return err
}

// EnsureTTLIndex creates a TTL index on createdAt using the configured
// embeddingCacheTtlDays (spec §4.2, §6, default 30).
func (s *EmbedCacheStore) EnsureTTLIndex(ctx context.Context, ttlSeconds int32) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "createdAt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(ttlSeconds).SetName("embedding_cache_ttl"),
	})
	return err
}
