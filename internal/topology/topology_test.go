package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionAtLeast(t *testing.T) {
	assert.True(t, versionAtLeast("8.0.4", 8, 0))
	assert.True(t, versionAtLeast("8.2.0", 8, 2))
	assert.True(t, versionAtLeast("9.0.0", 8, 2))
	assert.False(t, versionAtLeast("7.9.9", 8, 0))
	assert.False(t, versionAtLeast("8.1.9", 8, 2))
	assert.False(t, versionAtLeast("unknown", 8, 0))
	assert.False(t, versionAtLeast("", 8, 0))
}

func TestFeaturesForTier(t *testing.T) {
	f := featuresForTier(TierStandalone, "8.2.0")
	assert.Equal(t, Features{}, f)

	f = featuresForTier(TierReplicaSet, "8.2.0")
	assert.True(t, f.Transactions)
	assert.True(t, f.ChangeStreams)
	assert.False(t, f.TextSearch)
	assert.False(t, f.VectorSearch)

	f = featuresForTier(TierFullstack, "8.2.0")
	assert.True(t, f.Transactions)
	assert.True(t, f.ChangeStreams)
	assert.True(t, f.TextSearch)
	assert.True(t, f.VectorSearch)
	assert.True(t, f.RankFusion)
	assert.True(t, f.ScoreFusion)

	f = featuresForTier(TierFullstack, "7.0.0")
	assert.False(t, f.RankFusion)
	assert.False(t, f.ScoreFusion)

	f = featuresForTier(TierFullstack, "8.0.0")
	assert.True(t, f.RankFusion)
	assert.False(t, f.ScoreFusion)
}
