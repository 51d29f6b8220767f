package store

import (
	"context"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// KBStore persists kb_documents and kb_chunks (spec §3, §4.8).
type KBStore struct {
	docs   *mongo.Collection
	chunks *mongo.Collection
}

// NewKBStore wraps the kb_documents / kb_chunks collections.
func NewKBStore(c *Collections) *KBStore {
	return &KBStore{docs: c.KBDocuments, chunks: c.KBChunks}
}

// NewDocumentID mints a random UUID primary key (spec §3 "kb_documents:
// primary key = random UUID").
func NewDocumentID() string { return uuid.NewString() }

// FindByContentHash returns the existing document with the given hash, if
// any, implementing ingest's hash-dedup check (spec §4.8).
func (s *KBStore) FindByContentHash(ctx context.Context, hash string) (*KBDocument, error) {
	var doc KBDocument
	err := s.docs.FindOne(ctx, bson.M{"contentHash": hash}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Get returns a document by ID.
func (s *KBStore) Get(ctx context.Context, id string) (*KBDocument, error) {
	var doc KBDocument
	if err := s.docs.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// List returns documents matching an optional category/tags filter, sorted
// by updatedAt descending (spec §4.8 listKBDocuments).
func (s *KBStore) List(ctx context.Context, category string, tags []string) ([]*KBDocument, error) {
	filter := bson.M{}
	if category != "" {
		filter["category"] = category
	}
	if len(tags) > 0 {
		filter["tags"] = bson.M{"$all": tags}
	}
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	cur, err := s.docs.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*KBDocument
	for cur.Next(ctx) {
		var d KBDocument
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, cur.Err()
}

// Upsert inserts or replaces a kb_documents row, and replaces its kb_chunks
// wholesale (spec §4.8: delete prior doc+chunks then re-insert on force, or
// plain insert on a fresh ingest).
func (s *KBStore) Upsert(ctx context.Context, doc *KBDocument, chunks []*KBChunk) error {
	doc.UpdatedAt = nowUTC()
	doc.ChunkCount = len(chunks)

	if _, err := s.chunks.DeleteMany(ctx, bson.M{"docId": doc.ID}); err != nil {
		return err
	}
	if _, err := s.docs.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, upsertOpts()); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(chunks))
	now := nowUTC()
	for _, c := range chunks {
		if len(c.Text) > MaxChunkSnippetChars {
			c.Text = c.Text[:MaxChunkSnippetChars]
		}
		c.UpdatedAt = now
		models = append(models, mongo.NewInsertOneModel().SetDocument(c))
	}
	_, err := s.chunks.BulkWrite(ctx, models)
	return err
}

// Remove deletes a document's chunks then the document itself (spec §4.8
// removeKBDocument: "deletes chunks first, then the document").
func (s *KBStore) Remove(ctx context.Context, id string) error {
	if _, err := s.chunks.DeleteMany(ctx, bson.M{"docId": id}); err != nil {
		return err
	}
	_, err := s.docs.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// ChunksByDoc returns every kb_chunks row for docID, ordered by start line.
func (s *KBStore) ChunksByDoc(ctx context.Context, docID string) ([]*KBChunk, error) {
	opts := options.Find().SetSort(bson.D{{Key: "startLine", Value: 1}})
	cur, err := s.chunks.Find(ctx, bson.M{"docId": docID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*KBChunk
	for cur.Next(ctx) {
		var c KBChunk
		if err := cur.Decode(&c); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, cur.Err()
}

// Stats aggregates {documents, chunks, categories, sourcesByType} for
// getKBStats (spec §4.8).
type Stats struct {
	Documents     int64
	Chunks        int64
	Categories    []string
	SourcesByType map[string]int64
}

// GetStats computes KB-wide aggregates.
func (s *KBStore) GetStats(ctx context.Context) (*Stats, error) {
	docCount, err := s.docs.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	chunkCount, err := s.chunks.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	categories, err := s.docs.Distinct(ctx, "category", bson.M{})
	if err != nil {
		return nil, err
	}
	cats := make([]string, 0, len(categories))
	for _, c := range categories {
		if str, ok := c.(string); ok && str != "" {
			cats = append(cats, str)
		}
	}

	cur, err := s.docs.Aggregate(ctx, bson.A{
		bson.M{"$group": bson.M{"_id": "$sourceKind", "count": bson.M{"$sum": 1}}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	sourcesByType := make(map[string]int64)
	for cur.Next(ctx) {
		var row struct {
			ID    string `bson:"_id"`
			Count int64  `bson:"count"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		sourcesByType[row.ID] = row.Count
	}

	return &Stats{
		Documents:     docCount,
		Chunks:        chunkCount,
		Categories:    cats,
		SourcesByType: sourcesByType,
	}, cur.Err()
}

// EnsureTextIndex creates the standard text index on kb_chunks.text.
func (s *KBStore) EnsureTextIndex(ctx context.Context) error {
	_, err := s.chunks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "text", Value: "text"}},
		Options: options.Index().SetName("kb_chunks_text"),
	})
	return err
}
