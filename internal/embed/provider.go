package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ProviderConfig configures an HTTPProvider (spec §4.4, §6 embeddingMode=managed).
type ProviderConfig struct {
	Endpoint   string // base URL of the embedding provider, e.g. "https://api.example.com/v1"
	APIKey     string // bearer token, if required
	Model      string
	Dimensions int // numDimensions (spec §6, default 1024)
	BatchSize  int
	Timeout    time.Duration
	MaxRetries int
}

func (c ProviderConfig) withDefaults() ProviderConfig {
	if c.Dimensions <= 0 {
		c.Dimensions = DefaultDimensions
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	return c
}

// HTTPProvider calls an external embedding provider over HTTP using an
// OpenAI-compatible "{model, input[]} -> {data: [{embedding: []}]}" contract
// (spec §4.4: the provider is reached over HTTP, application-supplied
// vectors, "managed" embeddingMode). Retries are bounded and back off
// exponentially via cenkalti/backoff/v5 rather than a hand-rolled loop.
type HTTPProvider struct {
	client    *http.Client
	transport *http.Transport
	cfg       ProviderConfig

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*HTTPProvider)(nil)

// NewHTTPProvider creates a provider client for cfg.
func NewHTTPProvider(cfg ProviderConfig) *HTTPProvider {
	cfg = cfg.withDefaults()
	transport := &http.Transport{
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 32,
		IdleConnTimeout:     30 * time.Second,
	}
	return &HTTPProvider{
		client:    &http.Client{Transport: transport},
		transport: transport,
		cfg:       cfg,
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponseRow struct {
	Embedding []float64 `json:"embedding"`
}

type embedResponse struct {
	Data []embedResponseRow `json:"data"`
}

// Embed embeds a single text (embedQuery, spec §4.4).
func (p *HTTPProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return make([]float32, p.cfg.Dimensions), nil
	}
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts, batching by cfg.BatchSize and retrying each batch
// request up to MaxRetries times with exponential backoff (base 1s, factor 2:
// 1s, 2s, 4s — spec §4.4). On final failure the error is returned as-is; the
// caller (sync engine, KB pipeline) is responsible for recording
// embeddingStatus=failed and persisting the chunk without a vector.
func (p *HTTPProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedding provider is closed")
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(texts))
		batch := texts[start:end]

		vecs, err := p.embedBatchWithRetry(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
		}
		copy(results[start:end], vecs)
	}
	return results, nil
}

func (p *HTTPProvider) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = DefaultRetryBaseDelay
	b.Multiplier = DefaultRetryFactor
	b.RandomizationFactor = 0

	return backoff.Retry(ctx, func() ([][]float32, error) {
		vecs, err := p.doEmbed(ctx, texts)
		if err != nil {
			return nil, err
		}
		return vecs, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(p.cfg.MaxRetries)+1))
}

func (p *HTTPProvider) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(embedRequest{Model: p.cfg.Model, Input: texts})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, strings.TrimRight(p.cfg.Endpoint, "/")+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding provider returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embedding provider returned %d vectors for %d inputs", len(parsed.Data), len(texts))
	}

	vecs := make([][]float32, len(parsed.Data))
	for i, row := range parsed.Data {
		v := make([]float32, len(row.Embedding))
		for j, f := range row.Embedding {
			v[j] = float32(f)
		}
		vecs[i] = normalizeVector(v)
	}
	return vecs, nil
}

// Dimensions returns the configured embedding width.
func (p *HTTPProvider) Dimensions() int { return p.cfg.Dimensions }

// ModelName returns the configured model identifier.
func (p *HTTPProvider) ModelName() string { return p.cfg.Model }

// Available probes the provider with a minimal request.
func (p *HTTPProvider) Available(ctx context.Context) bool {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return false
	}
	_, err := p.doEmbed(ctx, []string{"ping"})
	return err == nil
}

// Close releases pooled connections.
func (p *HTTPProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.transport.CloseIdleConnections()
	return nil
}
