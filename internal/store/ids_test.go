package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkIDRoundTrip(t *testing.T) {
	id := ChunkID("memory/notes.md", 10, 42)
	assert.Equal(t, "memory/notes.md:10:42", id)

	path, start, end, err := ParseChunkID(id)
	require.NoError(t, err)
	assert.Equal(t, "memory/notes.md", path)
	assert.Equal(t, 10, start)
	assert.Equal(t, 42, end)
}

func TestParseChunkIDPathWithColon(t *testing.T) {
	// Windows-style drive letters or deliberately colon-bearing paths must
	// still round-trip: only the last two segments are line numbers.
	id := ChunkID("C:/workspace/memory.md", 1, 5)
	path, start, end, err := ParseChunkID(id)
	require.NoError(t, err)
	assert.Equal(t, "C:/workspace/memory.md", path)
	assert.Equal(t, 1, start)
	assert.Equal(t, 5, end)
}

func TestParseChunkIDMalformed(t *testing.T) {
	_, _, _, err := ParseChunkID("not-a-chunk-id")
	assert.Error(t, err)
}

func TestStructuredMemoryID(t *testing.T) {
	id := StructuredMemoryID(StructuredDecision, "db-choice", "agent-1")
	assert.Equal(t, "decision:db-choice:agent-1", id)
}

func TestHashTextDeterministic(t *testing.T) {
	a := HashText("hello world")
	b := HashText("hello world")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, HashText("hello world!"))
	assert.Len(t, a, 64)
}
