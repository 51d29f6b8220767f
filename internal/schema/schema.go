// Package schema is the schema provisioner (spec §4.2): it idempotently
// ensures collections, standard indexes, and — on fullstack deployments —
// Atlas-style search/vector indexes exist.
package schema

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/romiluz13/clawmongo/internal/store"
	"github.com/romiluz13/clawmongo/internal/topology"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDB server codes returned when an equivalent index already exists
// under a different name/spec; provisioning treats these as success.
const (
	codeIndexOptionsConflict  = 85
	codeIndexKeySpecsConflict = 86
)

// VectorIndexName and TextIndexName are the well-known search index names
// threaded through the search dispatcher (spec §4.7 "vector and text index
// names").
const (
	VectorIndexName = "clawmongo_vector_index"
	TextIndexName   = "clawmongo_text_index"
)

// Config carries the provisioning knobs drawn from spec §6.
type Config struct {
	NumDimensions         int
	EmbeddingMode         string // "managed" | "automated"
	MemoryTTLDays         int    // 0 disables
	EmbeddingCacheTTLDays int    // default 30
}

// Provisioner ensures every collection/index spec §4.2 requires.
type Provisioner struct {
	colls *store.Collections
	topo  *topology.Topology
	cfg   Config
}

// New constructs a Provisioner.
func New(colls *store.Collections, topo *topology.Topology, cfg Config) *Provisioner {
	return &Provisioner{colls: colls, topo: topo, cfg: cfg}
}

// Ensure runs every provisioning step. All steps are safe to call on an
// already-provisioned database (spec §4.2 "idempotently ensures...").
func (p *Provisioner) Ensure(ctx context.Context) error {
	if err := p.ensureUniqueIndexes(ctx); err != nil {
		return err
	}
	if err := p.ensureTextIndexes(ctx); err != nil {
		return err
	}
	if p.topo.Features.VectorSearch && p.cfg.EmbeddingMode == "managed" {
		if err := p.ensureVectorIndexes(ctx); err != nil {
			// Vector index provisioning is a capability gap, never fatal
			// (spec §7 taxonomy item 2).
			slog.Warn("schema: vector index provisioning failed, continuing without it", slog.String("error", err.Error()))
		}
	}
	if p.cfg.EmbeddingCacheTTLDays > 0 {
		ttl := time.Duration(p.cfg.EmbeddingCacheTTLDays) * 24 * time.Hour
		if err := store.NewEmbedCacheStore(p.colls).EnsureTTLIndex(ctx, int32(ttl.Seconds())); err != nil {
			return err
		}
	}
	if p.cfg.MemoryTTLDays > 0 {
		ttl := time.Duration(p.cfg.MemoryTTLDays) * 24 * time.Hour
		if err := store.NewFileStore(p.colls).EnsureTTLIndex(ctx, ttl); err != nil {
			return err
		}
	}
	return nil
}

// ensureUniqueIndexes creates supporting (non-primary-key) indexes that
// speed up common lookups: files.source, chunks.path, kb_chunks.docId,
// structured_memory.agentId.
func (p *Provisioner) ensureUniqueIndexes(ctx context.Context) error {
	type target struct {
		coll *mongo.Collection
		keys bson.D
		name string
	}
	targets := []target{
		{p.colls.Files, bson.D{{Key: "source", Value: 1}}, "files_source"},
		{p.colls.Chunks, bson.D{{Key: "path", Value: 1}}, "chunks_path"},
		{p.colls.Chunks, bson.D{{Key: "source", Value: 1}}, "chunks_source"},
		{p.colls.KBDocuments, bson.D{{Key: "contentHash", Value: 1}}, "kb_documents_contentHash"},
		{p.colls.KBChunks, bson.D{{Key: "docId", Value: 1}}, "kb_chunks_docId"},
		{p.colls.Structured, bson.D{{Key: "agentId", Value: 1}}, "structured_memory_agentId"},
	}
	for _, tgt := range targets {
		_, err := tgt.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    tgt.keys,
			Options: options.Index().SetName(tgt.name),
		})
		if err != nil && !isIndexAlreadyExists(err) {
			return err
		}
	}
	return nil
}

func (p *Provisioner) ensureTextIndexes(ctx context.Context) error {
	if err := store.NewChunkStore(p.colls).EnsureTextIndex(ctx); err != nil && !isIndexAlreadyExists(err) {
		return err
	}
	return store.NewKBStore(p.colls).EnsureTextIndex(ctx)
}

// ensureVectorIndexes creates Atlas-style $vectorSearch indexes on the
// chunks and kb_chunks collections (spec §4.2 "a vector index on
// chunk.embedding when the search engine is present and embedding mode is
// managed").
func (p *Provisioner) ensureVectorIndexes(ctx context.Context) error {
	definition := bson.M{
		"fields": bson.A{
			bson.M{
				"type":          "vector",
				"path":          "embedding",
				"numDimensions": p.cfg.NumDimensions,
				"similarity":    "cosine",
			},
		},
	}
	for _, coll := range []*mongo.Collection{p.colls.Chunks, p.colls.KBChunks} {
		model := mongo.SearchIndexModel{
			Definition: definition,
			Options:    options.SearchIndexes().SetName(VectorIndexName).SetType("vectorSearch"),
		}
		if _, err := coll.SearchIndexes().CreateOne(ctx, model); err != nil && !isIndexAlreadyExists(err) {
			return err
		}
	}
	return nil
}

func isIndexAlreadyExists(err error) bool {
	if mongo.IsDuplicateKeyError(err) {
		return true
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code == codeIndexOptionsConflict || cmdErr.Code == codeIndexKeySpecsConflict
	}
	return false
}
