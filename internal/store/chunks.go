package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MaxChunkSnippetChars is the cap on stored chunk text for snippet
// presentation (spec §3 "capped at ~700 chars").
const MaxChunkSnippetChars = 700

// ChunkStore persists the chunks collection (spec §3 "chunks").
type ChunkStore struct {
	coll *mongo.Collection
}

// NewChunkStore wraps the chunks collection.
func NewChunkStore(c *Collections) *ChunkStore {
	return &ChunkStore{coll: c.Chunks}
}

// replaceModelsForPath returns the WriteModel sequence that deletes every
// existing chunk for path and inserts the given replacements — the first
// two of the three operations in the atomic per-file write (spec §4.5).
func replaceModelsForPath(path string, chunks []*Chunk) []mongo.WriteModel {
	models := make([]mongo.WriteModel, 0, len(chunks)+1)
	models = append(models, mongo.NewDeleteManyModel().SetFilter(bson.M{"path": path}))
	now := nowUTC()
	for _, c := range chunks {
		if len(c.Text) > MaxChunkSnippetChars {
			c.Text = c.Text[:MaxChunkSnippetChars]
		}
		c.UpdatedAt = now
		models = append(models, mongo.NewInsertOneModel().SetDocument(c))
	}
	return models
}

// ByPath returns every chunk row owned by path, ordered by start line.
func (s *ChunkStore) ByPath(ctx context.Context, path string) ([]*Chunk, error) {
	opts := options.Find().SetSort(bson.D{{Key: "startLine", Value: 1}})
	cur, err := s.coll.Find(ctx, bson.M{"path": path}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*Chunk
	for cur.Next(ctx) {
		var c Chunk
		if err := cur.Decode(&c); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, cur.Err()
}

// CountByPath returns the number of chunk rows currently owned by path, used
// by the maxSessionChunks eviction protocol (SPEC_FULL.md Open Questions).
func (s *ChunkStore) CountByPath(ctx context.Context, path string) (int64, error) {
	return s.coll.CountDocuments(ctx, bson.M{"path": path})
}

// EvictOldest deletes the oldest chunk rows for path down to keep, ordered by
// startLine ascending. Implements the "evict oldest chunks of a file when
// inserting" protocol chosen for maxSessionChunks in SPEC_FULL.md.
func (s *ChunkStore) EvictOldest(ctx context.Context, path string, keep int) (int64, error) {
	count, err := s.CountByPath(ctx, path)
	if err != nil || count <= int64(keep) {
		return 0, err
	}
	excess := count - int64(keep)

	opts := options.Find().SetSort(bson.D{{Key: "startLine", Value: 1}}).SetLimit(excess).SetProjection(bson.M{"_id": 1})
	cur, err := s.coll.Find(ctx, bson.M{"path": path}, opts)
	if err != nil {
		return 0, err
	}
	defer cur.Close(ctx)

	var ids []string
	for cur.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return 0, err
		}
		ids = append(ids, doc.ID)
	}
	if err := cur.Err(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// DeleteStale removes every chunk row whose path is not in validPaths,
// scoped to source (spec §4.5 phase C).
func (s *ChunkStore) DeleteStale(ctx context.Context, source Source, validPaths map[string]struct{}) (int64, error) {
	keep := make([]string, 0, len(validPaths))
	for p := range validPaths {
		keep = append(keep, p)
	}
	res, err := s.coll.DeleteMany(ctx, bson.M{
		"source": source,
		"path":   bson.M{"$nin": keep},
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// DeleteByPath removes every chunk row owned by path (used outside of sync,
// e.g. gitignore-driven single-file removal).
func (s *ChunkStore) DeleteByPath(ctx context.Context, path string) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{"path": path})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// EnsureTextIndex creates the standard text index used as the keyword
// fallback (spec §4.2).
func (s *ChunkStore) EnsureTextIndex(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "text", Value: "text"}},
		Options: options.Index().SetName("chunks_text"),
	})
	return err
}
