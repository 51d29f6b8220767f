package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/romiluz13/clawmongo/internal/config"
	"github.com/romiluz13/clawmongo/internal/embed"
	"github.com/romiluz13/clawmongo/internal/manager"
	"github.com/romiluz13/clawmongo/internal/provision"
)

// projectConfigPath is where clawmongo writes/reads a project's config.
func projectConfigPath(root string) string {
	return filepath.Join(root, ".clawmongo.yaml")
}

// agentID identifies this process to the citation/session-key policy (spec
// §4.10). It has no stable identity requirement beyond the local host.
func agentID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "cli"
}

// buildEmbedder constructs the Embedder cfg.Embeddings names, falling back
// to the static embedder (spec §7 degraded path) when no managed endpoint
// is configured.
func buildEmbedder(ctx context.Context, cfg *config.Config) (embed.Embedder, error) {
	provider := embed.ParseProvider(cfg.Embeddings.Provider)
	if provider == embed.ProviderManaged && cfg.Embeddings.Endpoint == "" {
		provider = embed.ProviderStatic
	}
	return embed.NewEmbedder(ctx, provider, embed.ProviderConfig{
		Endpoint:   cfg.Embeddings.Endpoint,
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
		BatchSize:  cfg.Embeddings.BatchSize,
	})
}

// buildManager loads configuration rooted at dir, falls back to the
// Auto-Provisioner (spec §4.11) when no reachable URI is configured, and
// constructs the Memory Manager Façade. Returns (nil, nil) when mongodb
// support is disabled or unavailable — callers must handle a nil Manager
// by degrading gracefully, not by treating it as an error.
func buildManager(ctx context.Context, dir string) (*manager.Manager, error) {
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cfg.Mongo.Backend == "mongodb" && cfg.Mongo.URI == "" {
		result, err := provision.AttemptAutoSetup(ctx, provision.Options{}, provision.AlwaysYes)
		if err != nil {
			return nil, fmt.Errorf("auto-provision mongodb: %w", err)
		}
		if result.Success {
			cfg.Mongo.URI = result.URI
		}
	}

	embedder, err := buildEmbedder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build embedder: %w", err)
	}

	mgrCfg := cfg.ToManagerConfig()
	mgrCfg.WorkspaceRoot = dir

	return manager.Create(ctx, mgrCfg, agentID(), cfg.Mongo.Backend != "builtin", embedder)
}
