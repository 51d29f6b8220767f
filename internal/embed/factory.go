package embed

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ProviderType selects which Embedder implementation NewEmbedder constructs.
type ProviderType string

const (
	// ProviderManaged calls an external HTTP embedding provider (spec §4.4,
	// §6 embeddingMode=managed).
	ProviderManaged ProviderType = "managed"

	// ProviderStatic uses the deterministic hash-based embedder; it never
	// fails and requires no network, so it is also the fallback when no
	// managed endpoint is configured. An open circuit breaker on the managed
	// provider does not switch to it.
	ProviderStatic ProviderType = "static"
)

// NewEmbedder constructs an Embedder for provider, wrapped with an
// in-process LRU cache unless CLAWMONGO_EMBED_CACHE disables it.
//
// CLAWMONGO_EMBEDDER overrides provider selection; CLAWMONGO_EMBED_ENDPOINT,
// CLAWMONGO_EMBED_MODEL, CLAWMONGO_EMBED_API_KEY, and CLAWMONGO_EMBED_DIMENSIONS
// override ProviderConfig fields for the managed provider.
func NewEmbedder(_ context.Context, provider ProviderType, cfg ProviderConfig) (Embedder, error) {
	if override := os.Getenv("CLAWMONGO_EMBEDDER"); override != "" {
		provider = ParseProvider(override)
	}
	if endpoint := os.Getenv("CLAWMONGO_EMBED_ENDPOINT"); endpoint != "" {
		cfg.Endpoint = endpoint
	}
	if model := os.Getenv("CLAWMONGO_EMBED_MODEL"); model != "" {
		cfg.Model = model
	}
	if key := os.Getenv("CLAWMONGO_EMBED_API_KEY"); key != "" {
		cfg.APIKey = key
	}
	if dims := os.Getenv("CLAWMONGO_EMBED_DIMENSIONS"); dims != "" {
		if n, err := strconv.Atoi(dims); err == nil && n > 0 {
			cfg.Dimensions = n
		}
	}

	var embedder Embedder
	switch provider {
	case ProviderManaged:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("managed embedding provider requires an endpoint")
		}
		embedder = NewHTTPProvider(cfg)
	case ProviderStatic:
		embedder = NewStaticEmbedderDims(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", provider)
	}

	if isCacheDisabled() {
		return embedder, nil
	}
	return NewCachedEmbedderWithDefaults(embedder), nil
}

// isCacheDisabled checks if the in-process embedding cache is disabled.
func isCacheDisabled() bool {
	v := strings.ToLower(os.Getenv("CLAWMONGO_EMBED_CACHE"))
	return v == "false" || v == "0" || v == "off" || v == "disabled"
}

// ParseProvider converts a string to ProviderType, defaulting to static
// (the zero-dependency, always-available fallback) for unrecognized input.
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "managed", "http", "external":
		return ProviderManaged
	default:
		return ProviderStatic
	}
}

// ValidProviders returns all valid provider names.
func ValidProviders() []string {
	return []string{string(ProviderManaged), string(ProviderStatic)}
}

// IsValidProvider checks if a provider name is valid.
func IsValidProvider(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(ProviderManaged), string(ProviderStatic):
		return true
	default:
		return false
	}
}

// EmbedderInfo summarizes an embedder for status/doctor reporting.
type EmbedderInfo struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	Available  bool
}

// GetInfo reports embedder status, unwrapping a CachedEmbedder to inspect
// the underlying provider.
func GetInfo(ctx context.Context, embedder Embedder) EmbedderInfo {
	info := EmbedderInfo{
		Model:      embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
		Available:  embedder.Available(ctx),
	}

	inner := embedder
	if cached, ok := embedder.(*CachedEmbedder); ok {
		inner = cached.inner
	}

	switch inner.(type) {
	case *HTTPProvider:
		info.Provider = ProviderManaged
	default:
		info.Provider = ProviderStatic
	}
	return info
}

// MustNewEmbedder creates an embedder and panics on failure.
// Use only in tests or initialization code where failure is fatal.
func MustNewEmbedder(ctx context.Context, provider ProviderType, cfg ProviderConfig) Embedder {
	embedder, err := NewEmbedder(ctx, provider, cfg)
	if err != nil {
		panic(fmt.Sprintf("failed to create embedder: %v", err))
	}
	return embedder
}
