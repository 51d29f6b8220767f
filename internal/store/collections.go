package store

import (
	"go.mongodb.org/mongo-driver/mongo"
)

// Collection name suffixes; the configured collectionPrefix (spec §6,
// default "openclaw_") is prepended by Collections.
const (
	collFiles       = "files"
	collChunks      = "chunks"
	collKBDocuments = "kb_documents"
	collKBChunks    = "kb_chunks"
	collStructured  = "structured_memory"
	collEmbedCache  = "embedding_cache"
	collMeta        = "meta"
)

// Collections holds every collection handle the manager's components share.
// It does not own the client: the memory manager façade (J) is the exclusive
// owner of the connection pool (spec §3 "Relationships").
type Collections struct {
	DB *mongo.Database

	Files       *mongo.Collection
	Chunks      *mongo.Collection
	KBDocuments *mongo.Collection
	KBChunks    *mongo.Collection
	Structured  *mongo.Collection
	EmbedCache  *mongo.Collection
	Meta        *mongo.Collection
}

// NewCollections resolves every logical collection name against db using
// prefix, matching spec §6's "database/collectionPrefix scope all collection
// names".
func NewCollections(db *mongo.Database, prefix string) *Collections {
	name := func(suffix string) string { return prefix + suffix }
	return &Collections{
		DB:          db,
		Files:       db.Collection(name(collFiles)),
		Chunks:      db.Collection(name(collChunks)),
		KBDocuments: db.Collection(name(collKBDocuments)),
		KBChunks:    db.Collection(name(collKBChunks)),
		Structured:  db.Collection(name(collStructured)),
		EmbedCache:  db.Collection(name(collEmbedCache)),
		Meta:        db.Collection(name(collMeta)),
	}
}
