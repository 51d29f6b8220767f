package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// idSeparator is the literal separator for composite IDs (spec §6: "Composite
// _id values use the literal separator :").
const idSeparator = ":"

// ChunkID builds the composite primary key for a chunks row.
func ChunkID(path string, startLine, endLine int) string {
	return fmt.Sprintf("%s%s%d%s%d", path, idSeparator, startLine, idSeparator, endLine)
}

// ParseChunkID recovers (path, startLine, endLine) from a composite chunk ID.
// Nothing outside its tests calls it yet; the change-stream path extractor
// reads fullDocument.path, so a delete event (which carries only _id)
// yields no path.
func ParseChunkID(id string) (path string, startLine, endLine int, err error) {
	parts := strings.Split(id, idSeparator)
	if len(parts) < 3 {
		return "", 0, 0, fmt.Errorf("store: malformed chunk id %q", id)
	}
	endLine, err = strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return "", 0, 0, fmt.Errorf("store: malformed chunk id %q: %w", id, err)
	}
	startLine, err = strconv.Atoi(parts[len(parts)-2])
	if err != nil {
		return "", 0, 0, fmt.Errorf("store: malformed chunk id %q: %w", id, err)
	}
	path = strings.Join(parts[:len(parts)-2], idSeparator)
	return path, startLine, endLine, nil
}

// KBChunkID builds the composite primary key for a kb_chunks row.
func KBChunkID(docID string, startLine, endLine int) string {
	return fmt.Sprintf("%s%s%d%s%d", docID, idSeparator, startLine, idSeparator, endLine)
}

// StructuredMemoryID builds the composite primary key for a structured_memory row.
func StructuredMemoryID(typ StructuredType, key, agentID string) string {
	return fmt.Sprintf("%s%s%s%s%s", typ, idSeparator, key, idSeparator, agentID)
}

// EmbeddingCacheID builds the primary key for an embedding_cache row.
func EmbeddingCacheID(textHash, model string) string {
	return textHash + idSeparator + model
}

// MetaID builds the primary key for a meta row.
func MetaID(agentID, key string) string {
	return agentID + idSeparator + key
}

// HashText returns the SHA-256 hex digest of text (spec §4.3 hashText).
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// HashBytes returns the SHA-256 hex digest of arbitrary bytes (file contents).
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
