package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, "mongodb", cfg.Mongo.Backend)
	assert.Equal(t, "openclaw", cfg.Mongo.Database)
	assert.Equal(t, "openclaw_", cfg.Mongo.CollectionPrefix)
	assert.Equal(t, "scoreFusion", cfg.Search.FusionMethod)
	assert.Equal(t, "stdio", cfg.Server.Transport)
	require.NoError(t, cfg.Validate())
}

func TestToManagerConfigCarriesFields(t *testing.T) {
	cfg := NewConfig()
	cfg.Mongo.URI = "mongodb://localhost:27017"
	cfg.Memory.WorkspaceRoot = "/tmp/work"

	mc := cfg.ToManagerConfig()
	assert.Equal(t, "mongodb://localhost:27017", mc.URI)
	assert.Equal(t, "/tmp/work", mc.WorkspaceRoot)
	assert.Equal(t, cfg.Mongo.Database, mc.Database)
	assert.Equal(t, cfg.Search.NumCandidates, mc.NumCandidates)
}

func TestLoadMergesProjectConfig(t *testing.T) {
	dir := t.TempDir()
	yamlContent := `
mongo:
  uri: mongodb://example:27017
embeddings:
  provider: static
search:
  num_candidates: 500
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".clawmongo.yaml"), []byte(yamlContent), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "mongodb://example:27017", cfg.Mongo.URI)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, 500, cfg.Search.NumCandidates)
	// Untouched fields keep their defaults.
	assert.Equal(t, "openclaw", cfg.Mongo.Database)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("CLAWMONGO_MONGO_URI", "mongodb://envhost:27017")
	t.Setenv("CLAWMONGO_NUM_CANDIDATES", "1234")

	cfg := NewConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, "mongodb://envhost:27017", cfg.Mongo.URI)
	assert.Equal(t, 1234, cfg.Search.NumCandidates)
}

func TestValidateRejectsBadFusionMethod(t *testing.T) {
	cfg := NewConfig()
	cfg.Search.FusionMethod = "bogus"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsOutOfRangeCandidates(t *testing.T) {
	cfg := NewConfig()
	cfg.Search.NumCandidates = 20000
	assert.Error(t, cfg.Validate())
}

func TestFindProjectRootFindsGitDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0755))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	found, err := FindProjectRoot(nested)
	require.NoError(t, err)
	assert.Equal(t, root, found)
}
