// Package manager implements the Memory Manager Façade (spec §4.10): the
// single entry point that wires the capability probe, schema provisioner,
// sync engine, change watcher, search dispatcher, KB pipeline, and
// structured-memory store into one per-agent lifecycle.
package manager

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/romiluz13/clawmongo/internal/chunk"
	"github.com/romiluz13/clawmongo/internal/embed"
	amanerrors "github.com/romiluz13/clawmongo/internal/errors"
	"github.com/romiluz13/clawmongo/internal/kb"
	"github.com/romiluz13/clawmongo/internal/schema"
	"github.com/romiluz13/clawmongo/internal/search"
	"github.com/romiluz13/clawmongo/internal/store"
	"github.com/romiluz13/clawmongo/internal/structured"
	memsync "github.com/romiluz13/clawmongo/internal/sync"
	"github.com/romiluz13/clawmongo/internal/topology"
	"github.com/romiluz13/clawmongo/internal/watcher"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Citations is the snippet-citation attachment policy (spec §6 "citations
// ∈ {auto, on, off}").
type Citations string

const (
	CitationsAuto Citations = "auto"
	CitationsOn   Citations = "on"
	CitationsOff  Citations = "off"
)

// Config is the manager's resolved configuration (spec §6 "Configuration").
type Config struct {
	Backend            string // builtin | mongodb | qmd — only mongodb is implemented here
	URI                string
	Database            string // default "openclaw"
	CollectionPrefix     string // default "openclaw_"
	DeploymentProfile    string // atlas-default | atlas-m0 | community-mongot | community-bare
	EmbeddingMode        string // managed | automated
	FusionMethod         search.FusionMethod
	NumDimensions        int
	WatchDebounceMs       int
	ChangeStreamDebounceMs int
	EnableChangeStreams   bool
	NumCandidates         int
	MemoryTTLDays         int
	EmbeddingCacheTTLDays int
	MaxSessionChunks      int

	KBChunkTokens      int
	KBChunkOverlap     int
	KBMaxDocumentSize  int
	KBAutoImportPaths  []string
	KBAutoRefreshHours int

	Citations Citations

	WorkspaceRoot    string
	SessionDir       string
	ExtraMemoryPaths []string
}

func (c Config) withDefaults() Config {
	if c.Database == "" {
		c.Database = "openclaw"
	}
	if c.CollectionPrefix == "" {
		c.CollectionPrefix = "openclaw_"
	}
	if c.FusionMethod == "" {
		c.FusionMethod = search.FusionScoreFusion
	}
	if c.NumDimensions <= 0 {
		c.NumDimensions = embed.DefaultDimensions
	}
	if c.WatchDebounceMs <= 0 {
		c.WatchDebounceMs = 500
	}
	if c.ChangeStreamDebounceMs <= 0 {
		c.ChangeStreamDebounceMs = 1000
	}
	if c.NumCandidates <= 0 {
		c.NumCandidates = search.DefaultNumCandidates
	}
	if c.EmbeddingCacheTTLDays <= 0 {
		c.EmbeddingCacheTTLDays = 30
	}
	if c.MaxSessionChunks <= 0 {
		c.MaxSessionChunks = 50
	}
	if c.KBChunkTokens <= 0 {
		c.KBChunkTokens = chunk.DefaultKBOptions.Tokens
	}
	if c.KBChunkOverlap <= 0 {
		c.KBChunkOverlap = chunk.DefaultKBOptions.Overlap
	}
	if c.KBMaxDocumentSize <= 0 {
		c.KBMaxDocumentSize = kb.DefaultMaxDocumentSize
	}
	if c.KBAutoRefreshHours <= 0 {
		c.KBAutoRefreshHours = 24
	}
	if c.Citations == "" {
		c.Citations = CitationsAuto
	}
	return c
}

// Status is status()'s return shape (spec §4.10).
type Status struct {
	Backend  string
	Provider string
	Model    string
	Dirty    bool
	Fallback string
}

// SearchOptions is search()'s argument shape, a superset of search.Options
// with the sessionKey's group/channel/direct classification the citation
// policy needs (spec §4.10).
type SearchOptions struct {
	MaxResults  int
	MinScore    float64
	SessionKey  string
	QueryVector []float32
	AgentID     string
}

// SearchResult is one merged, citation-annotated hit (spec §4.10).
type SearchResult struct {
	search.Result
	Citation string
}

// SearchResponse is search()'s full return value, including the feedback
// hint (spec §4.10 "Feedback hint").
type SearchResponse struct {
	Results []SearchResult
	Hint    string
}

// ReadFileRequest is readFile()'s argument shape (spec §4.10).
type ReadFileRequest struct {
	Path  string
	From  int // 1-based
	Lines int
}

// Manager is one agent's Memory Manager Façade instance (J).
type Manager struct {
	cfg     Config
	agentID string

	client *mongo.Client
	db     *mongo.Database
	colls  *store.Collections
	topo   *topology.Topology

	embedder   embed.Embedder
	syncEngine *memsync.Engine
	dispatcher *search.Dispatcher   // scoped to chunks
	kbPipeline *kb.Pipeline         // owns its own dispatcher scoped to kb_chunks
	structured *structured.Store

	fsWatcher   *watcher.HybridWatcher
	changeSub   *watcher.ChangeStreamSubscriber
	watchCancel func()

	dbBreaker    *amanerrors.CircuitBreaker
	embedBreaker *amanerrors.CircuitBreaker

	mu     sync.Mutex
	closed bool
}

// Create connects, probes capabilities, ensures schema, starts watchers,
// and runs an initial sync (spec §4.10 "create(cfg, agentId, resolved)").
// Returns (nil, nil) when the backend is disabled for this agent — e.g.
// resolved.Backend != "mongodb".
func Create(ctx context.Context, cfg Config, agentID string, enabled bool, embedder embed.Embedder) (*Manager, error) {
	if !enabled || cfg.Backend != "" && cfg.Backend != "mongodb" {
		return nil, nil
	}
	cfg = cfg.withDefaults()

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI).SetServerSelectionTimeout(10 * time.Second))
	if err != nil {
		return nil, fmt.Errorf("manager: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("manager: ping: %w", err)
	}

	db := client.Database(cfg.Database)
	topo, err := topology.Detect(ctx, db)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("manager: capability probe: %w", err)
	}

	colls := store.NewCollections(db, cfg.CollectionPrefix)
	provisioner := schema.New(colls, topo, schema.Config{
		NumDimensions:         cfg.NumDimensions,
		EmbeddingMode:         cfg.EmbeddingMode,
		MemoryTTLDays:         cfg.MemoryTTLDays,
		EmbeddingCacheTTLDays: cfg.EmbeddingCacheTTLDays,
	})
	if err := provisioner.Ensure(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("manager: schema provisioning: %w", err)
	}

	embedBreaker := amanerrors.NewCircuitBreaker("embedding-provider")
	if embedder != nil {
		embedder = embed.NewCircuitBreakerEmbedder(embedder, embedBreaker)
	}

	m := &Manager{
		cfg:          cfg,
		agentID:      agentID,
		client:       client,
		db:           db,
		colls:        colls,
		topo:         topo,
		embedder:     embedder,
		dispatcher:   search.NewDispatcher(colls.Chunks, topo, cfg.EmbeddingMode),
		structured:   structured.New(store.NewStructuredStore(colls), embedder),
		dbBreaker:    amanerrors.NewCircuitBreaker("mongodb"),
		embedBreaker: embedBreaker,
	}
	m.kbPipeline = kb.New(store.NewKBStore(colls), embedder, search.NewDispatcher(colls.KBChunks, topo, cfg.EmbeddingMode))

	m.syncEngine = memsync.New(client, colls, embedder, memsync.Config{
		WorkspaceRoot:    cfg.WorkspaceRoot,
		SessionDir:       cfg.SessionDir,
		ExtraMemoryPaths: cfg.ExtraMemoryPaths,
		EmbeddingMode:    cfg.EmbeddingMode,
		MaxSessionChunks: cfg.MaxSessionChunks,
		HasTransactions:  topo.HasTransactions,
	})

	if _, err := m.syncEngine.Sync(ctx, memsync.ReasonStartup, false); err != nil {
		slog.Warn("manager: initial sync failed, continuing with a possibly-stale index",
			slog.String("agentId", agentID), slog.String("error", err.Error()))
	}

	m.startWatchers(ctx)
	return m, nil
}

// startWatchers wires the two Change Watcher sources (F, spec §4.6) to the
// sync engine's dirty/debounced-rerun protocol.
func (m *Manager) startWatchers(ctx context.Context) {
	watchCtx, cancel := context.WithCancel(ctx)
	m.watchCancel = cancel

	if m.cfg.WorkspaceRoot != "" {
		fw, err := watcher.NewHybridWatcher(watcher.Options{
			DebounceWindow: time.Duration(m.cfg.WatchDebounceMs) * time.Millisecond,
		})
		if err != nil {
			slog.Warn("manager: filesystem watcher unavailable", slog.String("error", err.Error()))
		} else if err := fw.Start(watchCtx, m.cfg.WorkspaceRoot); err != nil {
			slog.Warn("manager: filesystem watcher failed to start", slog.String("error", err.Error()))
		} else {
			m.fsWatcher = fw
			go m.drainFileEvents(watchCtx)
		}
	}

	if m.cfg.EnableChangeStreams && m.topo.Features.ChangeStreams {
		sub := watcher.NewChangeStreamSubscriber(
			m.colls.Chunks,
			time.Duration(m.cfg.ChangeStreamDebounceMs)*time.Millisecond,
			extractChunkPath,
		)
		ok, err := sub.Start(watchCtx, func(watcher.ChangeBatch) { m.onDirty(watchCtx) })
		if err != nil {
			slog.Warn("manager: change-stream subscriber error", slog.String("error", err.Error()))
		} else if ok {
			m.changeSub = sub
		}
	}

	if m.cfg.MemoryTTLDays > 0 {
		go m.syncEngine.StartStaleSweep(watchCtx, time.Duration(m.cfg.WatchDebounceMs)*time.Millisecond)
	}
}

func extractChunkPath(raw bson.Raw, op watcher.ChangeEventOp) (string, bool) {
	var doc struct {
		FullDocument struct {
			Path string `bson:"path"`
		} `bson:"fullDocument"`
	}
	if err := bson.Unmarshal(raw, &doc); err != nil || doc.FullDocument.Path == "" {
		return "", false
	}
	return doc.FullDocument.Path, true
}

func (m *Manager) drainFileEvents(ctx context.Context) {
	for {
		select {
		case _, ok := <-m.fsWatcher.Events():
			if !ok {
				return
			}
			m.onDirty(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// onDirty marks the sync engine dirty and re-runs it (spec §4.5 "watch"
// reason); a sync already in flight coalesces this call via singleflight.
func (m *Manager) onDirty(ctx context.Context) {
	m.syncEngine.MarkDirty()
	if _, err := m.syncEngine.Sync(ctx, memsync.ReasonWatch, false); err != nil {
		slog.Warn("manager: watch-triggered sync failed", slog.String("agentId", m.agentID), slog.String("error", err.Error()))
	}
}

// Search delegates to §4.7 (memory/session chunks) + §4.8 (KB) + §4.9
// (structured memory), merges across sources, dedups by chunk content hash
// keeping the highest-scoring occurrence, and applies citation formatting
// (spec §4.10).
func (m *Manager) Search(ctx context.Context, query string, opts SearchOptions) (SearchResponse, error) {
	if opts.MaxResults == 0 {
		// spec §8: "a maxResults of 0 returns [] without querying." opts
		// arrives with MaxResults already resolved by the caller (MCP/CLI
		// boundary) — an explicit 0 here is never an "unset, use the
		// default" sentinel.
		return SearchResponse{}, nil
	}
	if !m.dbBreaker.Allow() {
		return SearchResponse{Hint: "database temporarily unavailable, try again shortly"}, nil
	}
	resp, err := m.doSearch(ctx, query, opts)
	if err != nil {
		m.dbBreaker.RecordFailure()
		return SearchResponse{}, err
	}
	m.dbBreaker.RecordSuccess()
	return resp, nil
}

func (m *Manager) doSearch(ctx context.Context, query string, opts SearchOptions) (SearchResponse, error) {
	searchOpts := search.Options{
		MaxResults:    opts.MaxResults,
		MinScore:      opts.MinScore,
		SessionKey:    opts.SessionKey,
		FusionMethod:  m.cfg.FusionMethod,
		NumCandidates: m.cfg.NumCandidates,
		QueryVector:   opts.QueryVector,
	}

	memResults, err := m.dispatcher.Search(ctx, query, searchOpts)
	if err != nil {
		return SearchResponse{}, fmt.Errorf("manager: memory search: %w", err)
	}
	kbResults, err := m.kbPipeline.SearchKB(ctx, query, searchOpts)
	if err != nil {
		slog.Warn("manager: kb search failed, continuing with memory results only", slog.String("error", err.Error()))
		kbResults = nil
	}
	structResults, err := m.structured.Search(ctx, opts.AgentID, opts.QueryVector, searchOpts)
	if err != nil {
		slog.Warn("manager: structured search failed, continuing without it", slog.String("error", err.Error()))
		structResults = nil
	}

	merged := dedupeByHash(append(append(memResults, kbResults...), structResults...))
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })

	if len(merged) > opts.MaxResults {
		merged = merged[:opts.MaxResults]
	}

	showCitations := m.cfg.Citations == CitationsOn ||
		(m.cfg.Citations == CitationsAuto && search.ParseSessionKeyTokens(opts.SessionKey).Direct)

	out := make([]SearchResult, 0, len(merged))
	for _, r := range merged {
		sr := SearchResult{Result: r}
		if showCitations {
			sr.Citation = formatCitation(r)
		}
		out = append(out, sr)
	}

	return SearchResponse{Results: out, Hint: feedbackHint(out)}, nil
}

// dedupeByHash keeps the highest-scoring occurrence of each distinct chunk
// content hash; results with no hash (e.g. structured-memory rows) are
// never considered duplicates of one another (spec §4.10 "deduplicates by
// chunk content hash keeping the highest-scoring occurrence").
func dedupeByHash(results []search.Result) []search.Result {
	best := make(map[string]int, len(results))
	out := make([]search.Result, 0, len(results))
	for _, r := range results {
		if r.Hash == "" {
			out = append(out, r)
			continue
		}
		if idx, ok := best[r.Hash]; ok {
			if r.Score > out[idx].Score {
				out[idx] = r
			}
			continue
		}
		best[r.Hash] = len(out)
		out = append(out, r)
	}
	return out
}

func formatCitation(r search.Result) string {
	return fmt.Sprintf("[%s:%s]", r.Source, r.ID)
}

// feedbackHint implements spec §4.10's pure "Feedback hint" function: after
// a query, if fewer than 2 results are returned and all scores are below
// 0.3, suggest the caller rephrase.
func feedbackHint(results []SearchResult) string {
	if len(results) >= 2 {
		return ""
	}
	for _, r := range results {
		if r.Score >= 0.3 {
			return ""
		}
	}
	return "No strong matches found — try rephrasing the query or searching the knowledge base directly."
}

// ReadFile reads lines from a workspace-relative path, rejecting any path
// that escapes the workspace (spec §4.10 "readFile").
func (m *Manager) ReadFile(req ReadFileRequest) ([]string, error) {
	abs, err := resolveWorkspacePath(m.cfg.WorkspaceRoot, req.Path)
	if err != nil {
		return nil, err
	}
	return readLines(abs, req.From, req.Lines)
}

func resolveWorkspacePath(root, relPath string) (string, error) {
	if filepath.IsAbs(relPath) {
		return "", fmt.Errorf("manager: path %q must be workspace-relative", relPath)
	}
	abs := filepath.Join(root, relPath)
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("manager: path %q escapes the workspace", relPath)
	}
	return abs, nil
}

// WriteStructuredMemory delegates to §4.9 (spec §4.10; "Available only
// when capability write is supported by the backend" is enforced by the
// caller, which only registers the tool when the capability is present).
func (m *Manager) WriteStructuredMemory(ctx context.Context, in structured.WriteInput) (*store.WriteResult, error) {
	return m.structured.Write(ctx, in)
}

// Sync delegates to §4.5; concurrent calls are coalesced by the sync
// engine's singleflight group (spec §4.10).
func (m *Manager) Sync(ctx context.Context, reason memsync.Reason) (memsync.Result, error) {
	return m.syncEngine.Sync(ctx, reason, false)
}

// Status reports the façade's current state (spec §4.10).
func (m *Manager) Status() Status {
	s := Status{Backend: "mongodb", Dirty: m.syncEngine.Dirty()}
	if m.embedder != nil {
		s.Model = m.embedder.ModelName()
		s.Provider = fmt.Sprintf("%T", m.embedder)
	}
	switch {
	case m.dbBreaker != nil && m.dbBreaker.State() != amanerrors.StateClosed:
		s.Fallback = fmt.Sprintf("database circuit breaker %s: search/sync calls are being skipped", m.dbBreaker.State())
	case m.embedBreaker != nil && m.embedBreaker.State() != amanerrors.StateClosed:
		s.Fallback = fmt.Sprintf("embedding provider circuit breaker %s: chunks are persisted without vectors", m.embedBreaker.State())
	case m.topo.Tier == topology.TierStandalone:
		s.Fallback = "no search engine detected; using plain $text search"
	}
	return s
}

// Close stops watchers, clears timers, and closes the database client.
// Idempotent (spec §4.10).
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	if m.watchCancel != nil {
		m.watchCancel()
	}
	if m.fsWatcher != nil {
		_ = m.fsWatcher.Stop()
	}
	if m.changeSub != nil {
		_ = m.changeSub.Close(ctx)
	}
	return m.client.Disconnect(ctx)
}

// readLines returns up to `count` lines starting at 1-based line `from`.
// from <= 0 defaults to 1; count <= 0 reads to end of file (spec §4.10
// "readFile({path, from?, lines?})").
func readLines(path string, from, count int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("manager: read %q: %w", path, err)
	}
	defer f.Close()

	if from <= 0 {
		from = 1
	}

	var out []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo < from {
			continue
		}
		if count > 0 && lineNo >= from+count {
			break
		}
		out = append(out, scanner.Text())
	}
	return out, scanner.Err()
}
