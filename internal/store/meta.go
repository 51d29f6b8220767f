package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MetaStore persists the per-agent meta key/value collection (spec §3
// "meta": capability cache, last sync token, change-stream resume point).
type MetaStore struct {
	coll *mongo.Collection
}

// NewMetaStore wraps the meta collection.
func NewMetaStore(c *Collections) *MetaStore {
	return &MetaStore{coll: c.Meta}
}

// Get returns the stored value for (agentID, key), or "" if absent.
func (s *MetaStore) Get(ctx context.Context, agentID, key string) (string, error) {
	var e MetaEntry
	err := s.coll.FindOne(ctx, bson.M{"_id": MetaID(agentID, key)}).Decode(&e)
	if err == mongo.ErrNoDocuments {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return e.Value, nil
}

// Set stores value for (agentID, key).
func (s *MetaStore) Set(ctx context.Context, agentID, key, value string) error {
	e := MetaEntry{
		ID:        MetaID(agentID, key),
		AgentID:   agentID,
		Key:       key,
		Value:     value,
		UpdatedAt: nowUTC(),
	}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": e.ID}, e, upsertOpts())
	return err
}
