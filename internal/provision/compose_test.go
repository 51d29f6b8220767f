package provision

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSetupGeneratorStandaloneIsNoop(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, runSetupGenerator(TierStandalone, dir))

	_, err := os.Stat(filepath.Join(dir, ".clawmongo-secrets"))
	assert.True(t, os.IsNotExist(err), "standalone tier must not generate auth material")
}

func TestRunSetupGeneratorReplicaSetWritesKeyfileAndEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, runSetupGenerator(TierReplicaSet, dir))

	secretsDir := filepath.Join(dir, ".clawmongo-secrets")
	keyfile, err := os.ReadFile(filepath.Join(secretsDir, "keyfile"))
	require.NoError(t, err)
	assert.NotEmpty(t, keyfile)

	env, err := os.ReadFile(filepath.Join(secretsDir, ".env"))
	require.NoError(t, err)
	assert.Contains(t, string(env), "MONGO_INITDB_ROOT_USERNAME=clawmongo")
}

func TestRunSetupGeneratorIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, runSetupGenerator(TierFullstack, dir))
	keyfilePath := filepath.Join(dir, ".clawmongo-secrets", "keyfile")
	first, err := os.ReadFile(keyfilePath)
	require.NoError(t, err)

	require.NoError(t, runSetupGenerator(TierFullstack, dir))
	second, err := os.ReadFile(keyfilePath)
	require.NoError(t, err)

	assert.Equal(t, first, second, "re-running the generator must not rotate an existing keyfile")
}

func TestComposeUpMissingManifestErrors(t *testing.T) {
	dir := t.TempDir()
	err := composeUp(nil, Options{ComposeDir: dir}, TierStandalone) //nolint:staticcheck // nil ctx: no I/O reached before the Stat failure
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no compose manifest")
}
