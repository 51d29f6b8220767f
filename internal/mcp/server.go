package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/romiluz13/clawmongo/internal/manager"
	"github.com/romiluz13/clawmongo/internal/store"
	"github.com/romiluz13/clawmongo/internal/structured"
	"github.com/romiluz13/clawmongo/pkg/version"
)

// Server is the MCP server bridging AI clients (Claude Code, Cursor) to the
// Memory Manager Façade (spec §4.10, component J).
type Server struct {
	mcp     *mcp.Server
	manager *manager.Manager
	logger  *slog.Logger
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// NewServer creates a new MCP server wired to m. kb_search and memory_write
// are registered only when m is non-nil: manager.Create returns (nil, nil)
// whenever the resolved backend isn't mongodb (spec §4.10), so a non-nil
// Manager always implies full KB and structured-write capability.
func NewServer(m *manager.Manager) (*Server, error) {
	if m == nil {
		return nil, errors.New("manager is required")
	}

	s := &Server{
		manager: m,
		logger:  slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "clawmongo",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying MCP SDK server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return "clawmongo", version.Version
}

// ListTools returns the tools registered with this server.
func (s *Server) ListTools() []ToolInfo {
	tools := []ToolInfo{
		{
			Name:        "memory_search",
			Description: "Search persistent memory (workspace memory, session history, structured observations) for relevant context. Returns fused, ranked, citation-annotated results.",
		},
		{
			Name:        "memory_get",
			Description: "Read specific lines from a workspace-relative file, for following up on a memory_search citation.",
		},
	}
	if s.manager != nil {
		tools = append(tools,
			ToolInfo{
				Name:        "kb_search",
				Description: "Search the ingested knowledge base (curated docs and notes) for relevant context.",
			},
			ToolInfo{
				Name:        "memory_write",
				Description: "Record a structured observation (decision, preference, fact, todo, ...) for future recall.",
			},
		)
	}
	return tools
}

// registerTools registers memory_search and memory_get unconditionally, and
// kb_search/memory_write only when backed by a mongodb-capable Manager
// (spec §6 "kb_search ... registered only when backend is mongodb").
func (s *Server) registerTools() {
	s.logger.Debug("registering MCP tools")

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_search",
		Description: "Search persistent memory (workspace memory, session history, structured observations) for relevant context. Returns fused, ranked, citation-annotated results.",
	}, s.mcpMemorySearchHandler)
	s.logger.Debug("registered tool", slog.String("name", "memory_search"))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_get",
		Description: "Read specific lines from a workspace-relative file, for following up on a memory_search citation.",
	}, s.mcpMemoryGetHandler)
	s.logger.Debug("registered tool", slog.String("name", "memory_get"))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "kb_search",
		Description: "Search the ingested knowledge base (curated docs and notes) for relevant context.",
	}, s.mcpKBSearchHandler)
	s.logger.Debug("registered tool", slog.String("name", "kb_search"))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_write",
		Description: "Record a structured observation (decision, preference, fact, todo, ...) for future recall.",
	}, s.mcpMemoryWriteHandler)
	s.logger.Debug("registered tool", slog.String("name", "memory_write"))

	s.logger.Info("MCP tools registered", slog.Int("count", 4))
}

// mcpMemorySearchHandler is the MCP SDK handler for memory_search.
func (s *Server) mcpMemorySearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input MemorySearchInput) (
	*mcp.CallToolResult,
	MemorySearchOutput,
	error,
) {
	requestID := generateRequestID()
	if input.Query == "" {
		return nil, MemorySearchOutput{}, NewInvalidParamsError("query parameter is required")
	}

	opts := manager.SearchOptions{
		MaxResults: clampLimit(input.MaxResults, 10, 1, 50),
		MinScore:   input.MinScore,
		SessionKey: input.SessionKey,
	}

	s.logger.Info("memory_search started",
		slog.String("request_id", requestID),
		slog.String("query", input.Query))

	resp, err := s.manager.Search(ctx, input.Query, opts)
	if err != nil {
		s.logger.Error("memory_search failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, MemorySearchOutput{}, MapError(err)
	}

	s.logger.Info("memory_search completed",
		slog.String("request_id", requestID),
		slog.Int("result_count", len(resp.Results)))

	return nil, toMemorySearchOutput(resp), nil
}

// mcpMemoryGetHandler is the MCP SDK handler for memory_get.
func (s *Server) mcpMemoryGetHandler(ctx context.Context, _ *mcp.CallToolRequest, input MemoryGetInput) (
	*mcp.CallToolResult,
	MemoryGetOutput,
	error,
) {
	if input.Path == "" {
		return nil, MemoryGetOutput{}, NewInvalidParamsError("path parameter is required")
	}

	lines, err := s.manager.ReadFile(manager.ReadFileRequest{
		Path:  input.Path,
		From:  input.From,
		Lines: input.Lines,
	})
	if err != nil {
		return nil, MemoryGetOutput{}, MapError(err)
	}

	return nil, MemoryGetOutput{Lines: lines}, nil
}

// mcpKBSearchHandler is the MCP SDK handler for kb_search. Only reachable
// when a Manager was wired, since registerTools only registers it then.
func (s *Server) mcpKBSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input KBSearchInput) (
	*mcp.CallToolResult,
	KBSearchOutput,
	error,
) {
	if input.Query == "" {
		return nil, KBSearchOutput{}, NewInvalidParamsError("query parameter is required")
	}

	opts := manager.SearchOptions{
		MaxResults: clampLimit(input.MaxResults, 10, 1, 50),
	}

	resp, err := s.manager.Search(ctx, input.Query, opts)
	if err != nil {
		return nil, KBSearchOutput{}, MapError(err)
	}

	out := KBSearchOutput{Results: make([]MemorySearchResultOutput, 0, len(resp.Results))}
	for _, r := range resp.Results {
		if r.Source != store.SourceKB {
			continue
		}
		out.Results = append(out.Results, toMemorySearchResultOutput(r))
	}

	return nil, out, nil
}

// mcpMemoryWriteHandler is the MCP SDK handler for memory_write.
func (s *Server) mcpMemoryWriteHandler(ctx context.Context, _ *mcp.CallToolRequest, input MemoryWriteInput) (
	*mcp.CallToolResult,
	MemoryWriteOutput,
	error,
) {
	if input.Key == "" || input.Value == "" {
		return nil, MemoryWriteOutput{}, NewInvalidParamsError("key and value are required")
	}

	typ := store.StructuredType(input.Type)
	if typ == "" {
		typ = store.StructuredCustom
	}

	result, err := s.manager.WriteStructuredMemory(ctx, structured.WriteInput{
		Type:       typ,
		Key:        input.Key,
		Value:      input.Value,
		Context:    input.Context,
		Confidence: input.Confidence,
		Tags:       input.Tags,
		Source:     "agent",
	})
	if err != nil {
		return nil, MemoryWriteOutput{}, MapError(err)
	}

	return nil, MemoryWriteOutput{Upserted: result.Upserted, ID: result.ID}, nil
}

// Serve starts the server on the given transport. Only "stdio" is supported,
// matching the MCP SDK's current transport surface.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio", "":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && err != context.Canceled {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// Close releases server resources. The underlying Manager outlives the MCP
// server and is closed separately by its owner.
func (s *Server) Close() error {
	return nil
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
