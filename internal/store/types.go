// Package store is the persistence layer: it maps the memory/KB data model
// onto MongoDB collections and provides the atomic per-file write protocol
// that the sync engine depends on.
package store

import "time"

// Source distinguishes which enumerator produced a files/chunks row.
type Source string

const (
	SourceMemory     Source = "memory"
	SourceSessions   Source = "sessions"
	SourceKB         Source = "kb"
	SourceStructured Source = "structured"
)

// EmbeddingStatus records the outcome of the last embedding attempt for a chunk.
type EmbeddingStatus string

const (
	EmbeddingSuccess EmbeddingStatus = "success"
	EmbeddingFailed  EmbeddingStatus = "failed"
	EmbeddingPending EmbeddingStatus = "pending"
)

// StructuredType enumerates the kinds of structured-memory observation.
type StructuredType string

const (
	StructuredDecision     StructuredType = "decision"
	StructuredPreference   StructuredType = "preference"
	StructuredPerson       StructuredType = "person"
	StructuredTodo         StructuredType = "todo"
	StructuredFact         StructuredType = "fact"
	StructuredProject      StructuredType = "project"
	StructuredArchitecture StructuredType = "architecture"
	StructuredCustom       StructuredType = "custom"
)

// File is a tracked workspace or session file (spec §3 "files").
type File struct {
	Path      string    `bson:"_id"`
	Source    Source    `bson:"source"`
	Hash      string    `bson:"hash"`
	ModTime   time.Time `bson:"modTime"`
	Size      int64     `bson:"size"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// Chunk is a line-range slice of a file (spec §3 "chunks").
// ID is the composite "path:startLine:endLine".
type Chunk struct {
	ID              string          `bson:"_id"`
	Path            string          `bson:"path"`
	Source          Source          `bson:"source"`
	StartLine       int             `bson:"startLine"`
	EndLine         int             `bson:"endLine"`
	Text            string          `bson:"text"`
	Hash            string          `bson:"hash"`
	Embedding       []float32       `bson:"embedding,omitempty"`
	EmbeddingStatus EmbeddingStatus `bson:"embeddingStatus"`
	EmbeddingModel  string          `bson:"embeddingModel,omitempty"`
	UpdatedAt       time.Time       `bson:"updatedAt"`
}

// KBDocument is an ingested knowledge-base document (spec §3 "kb_documents").
type KBDocument struct {
	ID          string    `bson:"_id"`
	Title       string    `bson:"title"`
	Content     string    `bson:"content"`
	SourceKind  string    `bson:"sourceKind"` // file | url | manual | api
	SourceRef   string    `bson:"sourceRef"`
	ImportedBy  string    `bson:"importedBy"`
	Tags        []string  `bson:"tags,omitempty"`
	Category    string    `bson:"category,omitempty"`
	ContentHash string    `bson:"contentHash"`
	ChunkCount  int       `bson:"chunkCount"`
	CreatedAt   time.Time `bson:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

// KBChunk mirrors Chunk but belongs to a KB document (spec §3 "kb_chunks").
// ID is the composite "docId:startLine:endLine".
type KBChunk struct {
	ID              string          `bson:"_id"`
	DocID           string          `bson:"docId"`
	Source          Source          `bson:"source"`
	StartLine       int             `bson:"startLine"`
	EndLine         int             `bson:"endLine"`
	Text            string          `bson:"text"`
	Hash            string          `bson:"hash"`
	Embedding       []float32       `bson:"embedding,omitempty"`
	EmbeddingStatus EmbeddingStatus `bson:"embeddingStatus"`
	EmbeddingModel  string          `bson:"embeddingModel,omitempty"`
	UpdatedAt       time.Time       `bson:"updatedAt"`
}

// StructuredMemory is a typed observation (spec §3 "structured_memory").
// ID is the composite "type:key:agentId".
type StructuredMemory struct {
	ID         string         `bson:"_id"`
	Type       StructuredType `bson:"type"`
	Key        string         `bson:"key"`
	AgentID    string         `bson:"agentId"`
	Value      string         `bson:"value"`
	Context    string         `bson:"context,omitempty"`
	Confidence float64        `bson:"confidence"`
	Source     string         `bson:"source"` // agent | user | system
	Tags       []string       `bson:"tags,omitempty"`
	Embedding  []float32      `bson:"embedding,omitempty"`
	CreatedAt  time.Time      `bson:"createdAt"`
	UpdatedAt  time.Time      `bson:"updatedAt"`
}

// EmbeddingCacheEntry caches a provider call keyed by text hash + model
// (spec §3 "embedding_cache").
type EmbeddingCacheEntry struct {
	ID        string    `bson:"_id"` // hash:model
	Embedding []float32 `bson:"embedding"`
	CreatedAt time.Time `bson:"createdAt"`
}

// MetaEntry is a singleton-per-agent key/value row (spec §3 "meta").
type MetaEntry struct {
	ID        string    `bson:"_id"` // agentId:key
	AgentID   string    `bson:"agentId"`
	Key       string    `bson:"key"`
	Value     string    `bson:"value"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// Well-known meta keys.
const (
	MetaKeyCapabilities     = "capabilities"
	MetaKeyLastSync         = "lastSync"
	MetaKeyChangeStreamToken = "changeStreamResumeToken"
)

// DefaultConfidence is used when writeStructuredMemory omits one (spec §4.9).
const DefaultConfidence = 0.8
