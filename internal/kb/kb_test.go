package kb

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/romiluz13/clawmongo/internal/embed"
	"github.com/romiluz13/clawmongo/internal/store"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func requireLiveMongo(t *testing.T) *mongo.Client {
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

func TestPipelineIngestDedupAndForce(t *testing.T) {
	client := requireLiveMongo(t)
	ctx := context.Background()

	db := client.Database("clawmongo_test")
	colls := store.NewCollections(db, "kb_itest_")
	t.Cleanup(func() {
		_ = colls.KBDocuments.Drop(ctx)
		_ = colls.KBChunks.Drop(ctx)
	})

	kbStore := store.NewKBStore(colls)
	embedder := embed.NewStaticEmbedderDims(8)
	p := New(kbStore, embedder, nil)

	docs := []Doc{{Title: "doc one", Content: "# Title\n\nsome content here", SourceKind: "manual"}}
	res, err := p.IngestToKB(ctx, docs, IngestOptions{EmbeddingMode: "managed"}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.DocumentsProcessed)
	require.NotZero(t, res.ChunksCreated)

	res2, err := p.IngestToKB(ctx, docs, IngestOptions{EmbeddingMode: "managed"}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, res2.Skipped, "identical content should be skipped without force")

	res3, err := p.IngestToKB(ctx, docs, IngestOptions{EmbeddingMode: "managed", Force: true}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, res3.DocumentsProcessed, "force should re-ingest")

	stats, err := p.GetKBStats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Documents)
}

func TestIngestFilesToKBSkipsNonMarkdownAndSymlinks(t *testing.T) {
	client := requireLiveMongo(t)
	ctx := context.Background()

	db := client.Database("clawmongo_test")
	colls := store.NewCollections(db, "kb_files_itest_")
	t.Cleanup(func() {
		_ = colls.KBDocuments.Drop(ctx)
		_ = colls.KBChunks.Drop(ctx)
	})

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("markdown content"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("text content"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "c.json"), []byte("{}"), 0o644))

	p := New(store.NewKBStore(colls), embed.NewStaticEmbedderDims(8), nil)
	res, err := p.IngestFilesToKB(ctx, []string{root}, true, IngestOptions{}, nil)
	require.NoError(t, err)
	require.Equal(t, 2, res.DocumentsProcessed)
}
