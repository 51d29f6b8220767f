package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/romiluz13/clawmongo/internal/logging"
	"github.com/romiluz13/clawmongo/internal/manager"
	"github.com/romiluz13/clawmongo/internal/output"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit      int
	minScore   float64
	format     string // "text", "json"
	sessionKey string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search persistent memory and the knowledge base",
		Long: `Search workspace memory, session history, and the knowledge base
using MongoDB hybrid (vector + full-text) search with score fusion.

Examples:
  clawmongo search "authentication middleware"
  clawmongo search "release checklist" --limit 5
  clawmongo search "error handling" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().Float64Var(&opts.minScore, "min-score", 0, "Minimum fused score to include a result")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().StringVar(&opts.sessionKey, "session", "", "Session key: __memory__ or __sessions__ limits results to that source; with citations=auto, a key with a 'direct' token turns citations on")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if _, cleanup, err := logging.Setup(logCfg); err == nil {
		defer cleanup()
	}

	slog.Info("search_started", slog.String("query", query), slog.Int("limit", opts.limit))
	out := output.New(cmd.OutOrStdout())

	m, err := buildManager(ctx, ".")
	if err != nil {
		return fmt.Errorf("build memory manager: %w", err)
	}
	if m == nil {
		return fmt.Errorf("persistent memory is disabled; run 'clawmongo setup' to configure a mongodb backend")
	}
	defer func() { _ = m.Close(ctx) }()

	resp, err := m.Search(ctx, query, manager.SearchOptions{
		MaxResults: opts.limit,
		MinScore:   opts.minScore,
		SessionKey: opts.sessionKey,
		AgentID:    agentID(),
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	slog.Info("search_complete", slog.Int("results", len(resp.Results)))

	if len(resp.Results) == 0 {
		out.Status("", fmt.Sprintf("No results found for %q", query))
		if resp.Hint != "" {
			out.Status("💡", resp.Hint)
		}
		return nil
	}

	switch opts.format {
	case "json":
		return formatSearchJSON(cmd, resp)
	default:
		return formatSearchText(out, query, resp)
	}
}

func formatSearchText(out *output.Writer, query string, resp manager.SearchResponse) error {
	out.Statusf("🔍", "Found %d results for %q:", len(resp.Results), query)
	out.Newline()

	for i, r := range resp.Results {
		out.Statusf("", "%d. [%s] %s (score: %.3f)", i+1, r.Source, r.ID, r.Score)
		if r.Citation != "" {
			out.Status("", "   cited by: "+r.Citation)
		}
		for _, line := range getSnippet(r.Text, 3) {
			out.Status("", "   "+line)
		}
		out.Newline()
	}

	if resp.Hint != "" {
		out.Status("💡", resp.Hint)
	}

	return nil
}

func formatSearchJSON(cmd *cobra.Command, resp manager.SearchResponse) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// getSnippet returns the first n lines of content, with trailing blank lines
// among them dropped.
func getSnippet(content string, n int) []string {
	lines := strings.Split(content, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
