package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romiluz13/clawmongo/internal/manager"
)

func TestNewServerRequiresManager(t *testing.T) {
	srv, err := NewServer(nil)
	require.Error(t, err)
	require.Nil(t, srv)
}

func TestNewServerRegistersAllFourTools(t *testing.T) {
	srv, err := NewServer(new(manager.Manager))
	require.NoError(t, err)
	require.NotNil(t, srv)

	names := make(map[string]bool)
	for _, tool := range srv.ListTools() {
		names[tool.Name] = true
	}
	assert.True(t, names["memory_search"])
	assert.True(t, names["memory_get"])
	assert.True(t, names["kb_search"])
	assert.True(t, names["memory_write"])
}

func TestServerInfoReturnsNameAndVersion(t *testing.T) {
	srv, err := NewServer(new(manager.Manager))
	require.NoError(t, err)

	name, ver := srv.Info()
	assert.Equal(t, "clawmongo", name)
	assert.NotEmpty(t, ver)
}

func TestMemorySearchHandlerRejectsEmptyQuery(t *testing.T) {
	srv, err := NewServer(new(manager.Manager))
	require.NoError(t, err)

	_, _, err = srv.mcpMemorySearchHandler(context.Background(), nil, MemorySearchInput{})
	require.Error(t, err)
}

func TestMemoryGetHandlerRejectsEmptyPath(t *testing.T) {
	srv, err := NewServer(new(manager.Manager))
	require.NoError(t, err)

	_, _, err = srv.mcpMemoryGetHandler(context.Background(), nil, MemoryGetInput{})
	require.Error(t, err)
}

func TestKBSearchHandlerRejectsEmptyQuery(t *testing.T) {
	srv, err := NewServer(new(manager.Manager))
	require.NoError(t, err)

	_, _, err = srv.mcpKBSearchHandler(context.Background(), nil, KBSearchInput{})
	require.Error(t, err)
}

func TestMemoryWriteHandlerRejectsMissingKeyOrValue(t *testing.T) {
	srv, err := NewServer(new(manager.Manager))
	require.NoError(t, err)

	_, _, err = srv.mcpMemoryWriteHandler(context.Background(), nil, MemoryWriteInput{Value: "x"})
	require.Error(t, err)

	_, _, err = srv.mcpMemoryWriteHandler(context.Background(), nil, MemoryWriteInput{Key: "x"})
	require.Error(t, err)
}

func TestGenerateRequestIDIsNonEmptyAndVaries(t *testing.T) {
	a := generateRequestID()
	b := generateRequestID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
