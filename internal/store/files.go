package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// FileStore persists the files collection (spec §3 "files").
type FileStore struct {
	coll *mongo.Collection
}

// NewFileStore wraps the files collection.
func NewFileStore(c *Collections) *FileStore {
	return &FileStore{coll: c.Files}
}

// Get returns the stored metadata row for path, or mongo.ErrNoDocuments.
func (s *FileStore) Get(ctx context.Context, path string) (*File, error) {
	var f File
	if err := s.coll.FindOne(ctx, bson.M{"_id": path}).Decode(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

// LoadAll loads every stored files row for source, keyed by path. Used by
// the sync engine to diff the on-disk set against stored metadata in one
// round trip (spec §4.5 "Load the stored files metadata once at phase start").
func (s *FileStore) LoadAll(ctx context.Context, source Source) (map[string]*File, error) {
	cur, err := s.coll.Find(ctx, bson.M{"source": source})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make(map[string]*File)
	for cur.Next(ctx) {
		var f File
		if err := cur.Decode(&f); err != nil {
			return nil, err
		}
		fCopy := f
		out[f.Path] = &fCopy
	}
	return out, cur.Err()
}

// idFilter builds the {_id: path} filter used by single-document file writes.
func idFilter(path string) bson.M { return bson.M{"_id": path} }

// stampedFile returns f with UpdatedAt set to now, for use inside the
// atomic per-file write (txn.go).
func stampedFile(f *File) *File {
	f.UpdatedAt = nowUTC()
	return f
}

// upsertOpts is the shared ReplaceOne option for file metadata writes.
func upsertOpts() *options.ReplaceOptions {
	return options.Replace().SetUpsert(true)
}

// DeleteStale removes every files row whose path is not in validPaths,
// scoped to source (spec §4.5 phase C).
func (s *FileStore) DeleteStale(ctx context.Context, source Source, validPaths map[string]struct{}) (int64, error) {
	keep := make([]string, 0, len(validPaths))
	for p := range validPaths {
		keep = append(keep, p)
	}
	res, err := s.coll.DeleteMany(ctx, bson.M{
		"source": source,
		"_id":    bson.M{"$nin": keep},
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// Delete removes a single files row (used by gitignore-driven removal).
func (s *FileStore) Delete(ctx context.Context, path string) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": path})
	return err
}

// EnsureTTLIndex creates (or refreshes) a TTL index on updatedAt when
// memoryTtlDays > 0 (spec §4.2, §6 "memoryTtlDays").
func (s *FileStore) EnsureTTLIndex(ctx context.Context, ttl time.Duration) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "updatedAt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(int32(ttl.Seconds())).SetName("files_updatedAt_ttl"),
	})
	return err
}

func nowUTC() time.Time { return time.Now().UTC() }
