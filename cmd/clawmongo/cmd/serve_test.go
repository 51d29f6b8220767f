package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServe_DisabledBackend_FailsFast(t *testing.T) {
	// Without a mongodb backend configured, serve must fail immediately
	// rather than hang waiting for a connection that will never complete.
	tmpDir := t.TempDir()
	t.Setenv("CLAWMONGO_MONGO_URI", "")
	t.Setenv("CLAWMONGO_BACKEND", "builtin")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := runServeWithSession(ctx, "", tmpDir, "stdio", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}

func TestServeWithSession_HasMCPSafeLogging(t *testing.T) {
	// Status/log output must never reach stdout, since stdout carries the
	// MCP JSON-RPC stream exclusively.
	tmpDir := t.TempDir()
	t.Setenv("CLAWMONGO_MONGO_URI", "")
	t.Setenv("CLAWMONGO_BACKEND", "builtin")

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"serve", "--session=test-session"})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_ = cmd.ExecuteContext(ctx)

	output := buf.String()
	assert.NotContains(t, output, "🚀", "Should not write status emojis to stdout")
	assert.NotContains(t, output, "INFO", "Should not write INFO logs to stdout")
	assert.NotContains(t, output, "DEBUG", "Should not write DEBUG logs to stdout")
}

func TestVerifyStdinForMCP_DetectsTerminal(t *testing.T) {
	err := verifyStdinForMCP()

	if err != nil {
		assert.True(t,
			strings.Contains(err.Error(), "terminal") ||
				strings.Contains(err.Error(), "pipe") ||
				strings.Contains(err.Error(), "stdin"),
			"Error should mention stdin/terminal/pipe, got: %v", err)
	}
}

func TestVerifyStdinForMCP_ReturnsNilForPipe(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping pipe test in short mode")
	}

	err := verifyStdinForMCP()
	_ = err
}

func TestServeCmd_HasDebugFlag(t *testing.T) {
	cmd := NewRootCmd()

	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)

	flag := serveCmd.Flags().Lookup("debug")
	assert.NotNil(t, flag, "Serve should have --debug flag")
	assert.Equal(t, "false", flag.DefValue)
}

func TestServeCmd_HasTransportFlag(t *testing.T) {
	cmd := NewRootCmd()

	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)

	flag := serveCmd.Flags().Lookup("transport")
	assert.NotNil(t, flag, "Serve should have --transport flag")
	assert.Equal(t, "stdio", flag.DefValue)
}

func TestServeCmd_HasSessionFlag(t *testing.T) {
	cmd := NewRootCmd()

	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)

	flag := serveCmd.Flags().Lookup("session")
	assert.NotNil(t, flag, "Serve should have --session flag")
	assert.Equal(t, "", flag.DefValue)
}
