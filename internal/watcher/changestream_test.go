package watcher

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func requireLiveReplicaSet(t *testing.T) *mongo.Client {
	t.Helper()
	uri := os.Getenv("CLAWMONGO_MONGO_URI")
	if uri == "" {
		t.Skip("CLAWMONGO_MONGO_URI not set; skipping live MongoDB integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	require.NoError(t, err)
	require.NoError(t, client.Ping(ctx, nil))
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	return client
}

func TestChangeStreamSubscriberBatchesInserts(t *testing.T) {
	client := requireLiveReplicaSet(t)
	ctx := context.Background()

	coll := client.Database("clawmongo_test").Collection("watcher_itest_chunks")
	t.Cleanup(func() { _ = coll.Drop(ctx) })

	extractor := func(raw bson.Raw, op ChangeEventOp) (string, bool) {
		var doc struct {
			FullDocument struct {
				Path string `bson:"path"`
			} `bson:"fullDocument"`
		}
		if err := bson.Unmarshal(raw, &doc); err != nil || doc.FullDocument.Path == "" {
			return "", false
		}
		return doc.FullDocument.Path, true
	}

	sub := NewChangeStreamSubscriber(coll, 50*time.Millisecond, extractor)
	batches := make(chan ChangeBatch, 10)
	ok, err := sub.Start(ctx, func(b ChangeBatch) { batches <- b })
	require.NoError(t, err)
	if !ok {
		t.Skip("server does not support change streams (not a replica set)")
	}
	defer sub.Close(ctx)

	time.Sleep(100 * time.Millisecond) // let the stream establish its cursor
	_, err = coll.InsertOne(ctx, bson.M{"path": "memory/a.md"})
	require.NoError(t, err)

	select {
	case b := <-batches:
		assert.Equal(t, ChangeOpInsert, b.OperationType)
		assert.Contains(t, b.Paths, "memory/a.md")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change batch")
	}
}

func TestChangeStreamSubscriberCloseIdempotent(t *testing.T) {
	client := requireLiveReplicaSet(t)
	ctx := context.Background()
	coll := client.Database("clawmongo_test").Collection("watcher_itest_close")

	sub := NewChangeStreamSubscriber(coll, 50*time.Millisecond, func(bson.Raw, ChangeEventOp) (string, bool) { return "", false })
	ok, err := sub.Start(ctx, func(ChangeBatch) {})
	require.NoError(t, err)
	if !ok {
		t.Skip("server does not support change streams")
	}
	require.NoError(t, sub.Close(ctx))
	require.NoError(t, sub.Close(ctx))
}
