package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// StructuredStore persists structured_memory (spec §3, §4.9).
type StructuredStore struct {
	coll *mongo.Collection
}

// NewStructuredStore wraps the structured_memory collection.
func NewStructuredStore(c *Collections) *StructuredStore {
	return &StructuredStore{coll: c.Structured}
}

// WriteResult reports the outcome of an upsert (spec §4.9: "{upserted, id}").
type WriteResult struct {
	Upserted bool
	ID       string
}

// Upsert writes m, replacing any existing row with the same
// (type,key,agentId) in place (spec invariant I5). Confidence defaults to
// DefaultConfidence when zero.
func (s *StructuredStore) Upsert(ctx context.Context, m *StructuredMemory) (*WriteResult, error) {
	if m.Confidence == 0 {
		m.Confidence = DefaultConfidence
	}
	m.ID = StructuredMemoryID(m.Type, m.Key, m.AgentID)
	now := nowUTC()
	m.UpdatedAt = now
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}

	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": m.ID}, m, upsertOpts())
	if err != nil {
		return nil, err
	}
	return &WriteResult{Upserted: res.UpsertedCount > 0, ID: m.ID}, nil
}

// Get returns a structured memory row by composite key.
func (s *StructuredStore) Get(ctx context.Context, typ StructuredType, key, agentID string) (*StructuredMemory, error) {
	var m StructuredMemory
	if err := s.coll.FindOne(ctx, bson.M{"_id": StructuredMemoryID(typ, key, agentID)}).Decode(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListByAgent returns every structured memory row for agentID, used by the
// search dispatcher's structured source (spec §4.9).
func (s *StructuredStore) ListByAgent(ctx context.Context, agentID string) ([]*StructuredMemory, error) {
	cur, err := s.coll.Find(ctx, bson.M{"agentId": agentID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*StructuredMemory
	for cur.Next(ctx) {
		var m StructuredMemory
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, cur.Err()
}
