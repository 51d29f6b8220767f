package provision

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsWithDefaults(t *testing.T) {
	o := Options{}.withDefaults()

	assert.Equal(t, DefaultCandidateURIs, o.CandidateURIs)
	assert.Equal(t, DefaultContainerNames, o.ContainerNames)
	assert.Equal(t, DefaultSearchContainerName, o.SearchContainerName)
	assert.Equal(t, defaultPort, o.Port)
	assert.Equal(t, 60*time.Second, o.HealthTimeout)
	assert.Equal(t, 2*time.Second, o.PollInterval)
}

func TestOptionsWithDefaultsPreservesOverrides(t *testing.T) {
	o := Options{Port: 28000, CandidateURIs: []string{"mongodb://custom/"}}.withDefaults()

	assert.Equal(t, 28000, o.Port)
	assert.Equal(t, []string{"mongodb://custom/"}, o.CandidateURIs)
}

func TestProbePortAvailableDetectsConflict(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	port := ln.Addr().(*net.TCPAddr).Port
	ok, reason := probePortAvailable(port)
	assert.False(t, ok)
	assert.Contains(t, reason, "already in use")
}

func TestProbePortAvailableReportsFreePort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	ok, reason := probePortAvailable(port)
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestUriForManagedTier(t *testing.T) {
	assert.Equal(t, "mongodb://localhost:27017/clawmongo", uriForManagedTier(TierStandalone))
	assert.Contains(t, uriForManagedTier(TierReplicaSet), "replicaSet=rs0")
	assert.Contains(t, uriForManagedTier(TierFullstack), "replicaSet=rs0")
}

func TestComposeFile(t *testing.T) {
	assert.Equal(t, "docker-compose.standalone.yml", composeFile(TierStandalone))
	assert.Equal(t, "docker-compose.fullstack.yml", composeFile(TierFullstack))
}

func TestTiersOrderRichestFirst(t *testing.T) {
	require.Equal(t, []Tier{TierFullstack, TierReplicaSet, TierStandalone}, Tiers)
}
