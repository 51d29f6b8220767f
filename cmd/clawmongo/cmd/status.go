package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/romiluz13/clawmongo/internal/output"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show memory backend health and status",
		Long: `Display the current state of the persistent memory backend:
  - Backend in use (mongodb, builtin)
  - Embedding provider and model
  - Whether a background sync is pending (dirty)
  - Active degraded-mode fallback, if any`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	m, err := buildManager(ctx, ".")
	if err != nil {
		return fmt.Errorf("build memory manager: %w", err)
	}
	if m == nil {
		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]string{"backend": "disabled"})
		}
		out := output.New(cmd.OutOrStdout())
		out.Warning("Persistent memory is disabled")
		out.Status("💡", "Run 'clawmongo setup' to configure a mongodb backend")
		return nil
	}
	defer func() { _ = m.Close(ctx) }()

	status := m.Status()

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("📦", "Backend: %s", status.Backend)
	out.Statusf("🧠", "Embedding provider: %s", status.Provider)
	if status.Model != "" {
		out.Statusf("", "Model: %s", status.Model)
	}
	if status.Dirty {
		out.Status("⏳", "Sync pending: workspace changes not yet reflected")
	} else {
		out.Status("✓", "Up to date")
	}
	if status.Fallback != "" {
		out.Statusf("⚠️", "Degraded mode: %s", status.Fallback)
	}

	return nil
}
