package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/romiluz13/clawmongo/internal/logging"
	"github.com/romiluz13/clawmongo/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var (
		transport string
		session   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server, bridging AI clients (Claude Code, Cursor) to
clawmongo's persistent memory over the Model Context Protocol.

The MCP protocol requires stdout to carry JSON-RPC messages exclusively;
all diagnostic output goes to the log file ~/.clawmongo/logs/server.log instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithSession(cmd.Context(), session, ".", transport, 0)
		},
	}

	cmd.Flags().BoolVar(&debugMode, "debug", debugMode, "Enable debug logging to ~/.clawmongo/logs/")
	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport type (stdio)")
	cmd.Flags().StringVar(&session, "session", "", "Session key; accepted but not used by the server")

	return cmd
}

// runServe starts the MCP server rooted at the current directory.
func runServe(ctx context.Context, transport string, _ int) error {
	return runServeWithSession(ctx, "", ".", transport, 0)
}

// runServeWithSession starts the MCP server rooted at dir. The MCP protocol
// requires stdout to be used exclusively for JSON-RPC messages, so all
// status output is routed to the debug log file instead (spec §4.10).
func runServeWithSession(ctx context.Context, _ string, dir string, transport string, _ int) error {
	cleanup, err := logging.SetupMCPMode()
	if err != nil {
		return fmt.Errorf("setup MCP-safe logging: %w", err)
	}
	defer cleanup()

	if err := verifyStdinForMCP(); err != nil {
		slog.Warn("stdin validation warning", slog.String("error", err.Error()))
	}

	m, err := buildManager(ctx, dir)
	if err != nil {
		slog.Error("failed to build memory manager", slog.String("error", err.Error()))
		return fmt.Errorf("build memory manager: %w", err)
	}
	if m == nil {
		slog.Error("persistent memory is disabled: no mongodb backend configured")
		return fmt.Errorf("persistent memory is disabled; run 'clawmongo setup' to configure a mongodb backend")
	}
	defer func() { _ = m.Close(ctx) }()

	srv, err := mcp.NewServer(m)
	if err != nil {
		slog.Error("failed to create MCP server", slog.String("error", err.Error()))
		return fmt.Errorf("create MCP server: %w", err)
	}

	slog.Info("starting MCP server", slog.String("transport", transport), slog.String("workspace", dir))
	return srv.Serve(ctx, transport)
}

// verifyStdinForMCP warns when stdin looks like an interactive terminal
// rather than a pipe, the usual symptom of a user launching 'clawmongo
// serve' by hand instead of through an MCP client.
func verifyStdinForMCP() error {
	if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return fmt.Errorf("stdin is a terminal, not a pipe: clawmongo serve is meant to be launched by an MCP client, not run interactively")
	}
	return nil
}
