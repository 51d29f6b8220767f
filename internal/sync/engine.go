// Package sync implements the Sync Engine (spec §4.5): a three-phase walk
// over workspace memory files and session transcripts that keeps the
// files/chunks collections in step with what's on disk, followed by a
// stale-row cleanup pass.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/romiluz13/clawmongo/internal/chunk"
	"github.com/romiluz13/clawmongo/internal/embed"
	"github.com/romiluz13/clawmongo/internal/store"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/singleflight"
)

// Well-known memory file names enumerated at the workspace root (spec §4.5
// phase A: "MEMORY.md, memory.md, memory/**").
var rootMemoryFiles = []string{"MEMORY.md", "memory.md"}

const memoryDirName = "memory"

// Config carries the Sync Engine's per-manager tunables (spec §6).
type Config struct {
	WorkspaceRoot    string   // root the memory-file enumerator walks
	SessionDir       string   // root the session-transcript enumerator walks
	ExtraMemoryPaths []string // additional files/dirs folded into phase A
	EmbeddingMode    string   // "managed" | "automated"
	MaxSessionChunks int      // spec §6 "maxSessionChunks (50)"
	HasTransactions  bool     // capability probe result, spec §4.1
}

// Reason is why a sync was triggered (spec §4.5 "sync({reason, force?})").
type Reason string

const (
	ReasonStartup Reason = "startup"
	ReasonWatch   Reason = "watch"
	ReasonManual  Reason = "manual"
)

// Result is the outcome of one sync run.
type Result struct {
	Reason          Reason
	FilesIndexed    int
	FilesSkipped    int
	FilesRemoved    int
	ChunksRemoved   int
	EmbeddingErrors int
	Duration        time.Duration
}

// Engine runs sync() (spec §4.5). Exactly one sync runs at a time; a
// concurrent caller awaits the in-flight run and receives its result
// (spec §4.5 "Concurrency").
type Engine struct {
	client   *mongo.Client
	colls    *store.Collections
	writer   *store.Writer
	embedder embed.Embedder
	cfg      Config

	group singleflight.Group
	dirty bool
}

// New constructs an Engine. embedder may be nil when embeddingMode is
// "automated" (the database computes embeddings in-engine, spec §6).
func New(client *mongo.Client, colls *store.Collections, embedder embed.Embedder, cfg Config) *Engine {
	return &Engine{
		client:   client,
		colls:    colls,
		writer:   store.NewWriter(client, colls),
		embedder: embedder,
		cfg:      cfg,
	}
}

// MarkDirty records that a filesystem or change-stream event arrived. If a
// sync is in flight when this is called, the debounced scheduler must
// re-run sync after it completes (spec §4.5: "any event arriving during
// the sync re-sets [dirty], which will cause the debounced scheduler to
// re-run sync after completion").
func (e *Engine) MarkDirty() { e.dirty = true }

// Dirty reports whether an event has arrived since the last sync start.
func (e *Engine) Dirty() bool { return e.dirty }

// Sync runs the three-phase protocol, coalescing concurrent callers onto a
// single in-flight run via singleflight (spec §4.5 "Concurrency").
func (e *Engine) Sync(ctx context.Context, reason Reason, force bool) (Result, error) {
	key := "sync"
	v, err, _ := e.group.Do(key, func() (any, error) {
		return e.runOnce(ctx, reason, force)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (e *Engine) runOnce(ctx context.Context, reason Reason, force bool) (Result, error) {
	start := time.Now()
	e.dirty = false

	var res Result
	res.Reason = reason

	memoryValid, err := e.syncPhase(ctx, store.SourceMemory, e.enumerateMemoryFiles(), force, &res)
	if err != nil {
		return res, fmt.Errorf("sync: phase A (memory files): %w", err)
	}
	sessionValid, err := e.syncPhase(ctx, store.SourceSessions, e.enumerateSessionFiles(), force, &res)
	if err != nil {
		return res, fmt.Errorf("sync: phase B (session transcripts): %w", err)
	}

	if err := e.cleanupStale(ctx, store.SourceMemory, memoryValid, &res); err != nil {
		return res, fmt.Errorf("sync: phase C memory cleanup: %w", err)
	}
	if err := e.cleanupStale(ctx, store.SourceSessions, sessionValid, &res); err != nil {
		return res, fmt.Errorf("sync: phase C session cleanup: %w", err)
	}

	res.Duration = time.Since(start)
	slog.Info("sync: complete",
		slog.String("reason", string(reason)),
		slog.Int("filesIndexed", res.FilesIndexed),
		slog.Int("filesSkipped", res.FilesSkipped),
		slog.Int("filesRemoved", res.FilesRemoved),
		slog.Duration("duration", res.Duration))
	return res, nil
}

// syncPhase re-indexes every changed file in paths and returns the set of
// paths seen, for the stale-cleanup phase.
func (e *Engine) syncPhase(ctx context.Context, source store.Source, paths []string, force bool, res *Result) (map[string]struct{}, error) {
	valid := make(map[string]struct{}, len(paths))

	stored, err := store.NewFileStore(e.colls).LoadAll(ctx, source)
	if err != nil {
		return nil, err
	}

	for _, path := range paths {
		valid[path] = struct{}{}

		info, err := os.Lstat(path)
		if err != nil {
			slog.Warn("sync: skipping unreadable file", slog.String("path", path), slog.String("error", err.Error()))
			res.FilesSkipped++
			continue
		}
		if info.Mode()&os.ModeSymlink != 0 {
			res.FilesSkipped++
			continue
		}

		hash, err := hashFile(path)
		if err != nil {
			slog.Warn("sync: skipping unreadable file", slog.String("path", path), slog.String("error", err.Error()))
			res.FilesSkipped++
			continue
		}

		prior := stored[path]
		if !force && prior != nil && prior.Hash == hash {
			res.FilesSkipped++
			continue
		}

		if err := e.reindexFile(ctx, source, path, hash, info.Size(), info.ModTime(), res); err != nil {
			return nil, err
		}
		res.FilesIndexed++
	}

	return valid, nil
}

// reindexFile implements spec §4.5 phase A/B steps 1-4 for one file.
func (e *Engine) reindexFile(ctx context.Context, source store.Source, path, hash string, size int64, modTime time.Time, res *Result) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	opts := chunk.DefaultMemoryOptions
	pieces := chunk.Markdown(string(data), opts)

	chunks := make([]*store.Chunk, 0, len(pieces))
	texts := make([]string, 0, len(pieces))
	for _, p := range pieces {
		chunks = append(chunks, &store.Chunk{
			ID:              store.ChunkID(path, p.StartLine, p.EndLine),
			Path:            path,
			Source:          source,
			StartLine:       p.StartLine,
			EndLine:         p.EndLine,
			Text:            p.Text,
			Hash:            p.Hash,
			EmbeddingStatus: store.EmbeddingPending,
		})
		texts = append(texts, p.Text)
	}

	if e.cfg.EmbeddingMode == "managed" && e.embedder != nil && len(texts) > 0 {
		vectors, err := e.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			slog.Warn("sync: embedding batch failed, persisting chunks without vectors",
				slog.String("path", path), slog.String("error", err.Error()))
			for _, c := range chunks {
				c.EmbeddingStatus = store.EmbeddingFailed
			}
			res.EmbeddingErrors++
		} else {
			model := e.embedder.ModelName()
			for i, c := range chunks {
				c.Embedding = vectors[i]
				c.EmbeddingStatus = store.EmbeddingSuccess
				c.EmbeddingModel = model
			}
		}
	}

	file := &store.File{Path: path, Source: source, Hash: hash, ModTime: modTime, Size: size}
	if err := e.writer.WriteFile(ctx, e.cfg.HasTransactions, file, chunks); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	if e.cfg.MaxSessionChunks > 0 && source == store.SourceSessions {
		if _, err := store.NewChunkStore(e.colls).EvictOldest(ctx, path, e.cfg.MaxSessionChunks); err != nil {
			slog.Warn("sync: chunk eviction failed", slog.String("path", path), slog.String("error", err.Error()))
		}
	}
	return nil
}

// StartStaleSweep runs a periodic cleanup pass, at the given cadence, that
// deletes chunks rows whose path no longer has a corresponding files row.
// This exists because MongoDB's native TTL index (schema.Provisioner wires
// one onto files.updatedAt for memoryTtlDays, spec §6) only expires the
// files row itself — chunks referencing an expired path would otherwise
// orphan forever. It piggybacks on the same debounce cadence as the
// filesystem/change-stream watchers (spec §4.5 phase C) rather than running
// on its own schedule. Call in a goroutine; returns when ctx is canceled.
func (e *Engine) StartStaleSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.sweepOrphanedChunks(ctx); err != nil {
				slog.Warn("sync: stale sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// sweepOrphanedChunks re-derives each source's valid path set from the
// files collection (not a filesystem walk) and removes any chunks row whose
// path has fallen out of it — the TTL-expiry case cleanupStale's
// post-syncPhase call doesn't cover.
func (e *Engine) sweepOrphanedChunks(ctx context.Context) error {
	fileStore := store.NewFileStore(e.colls)
	for _, source := range []store.Source{store.SourceMemory, store.SourceSessions} {
		stored, err := fileStore.LoadAll(ctx, source)
		if err != nil {
			return fmt.Errorf("sync: stale sweep load %s: %w", source, err)
		}
		valid := make(map[string]struct{}, len(stored))
		for path := range stored {
			valid[path] = struct{}{}
		}
		if _, err := store.NewChunkStore(e.colls).DeleteStale(ctx, source, valid); err != nil {
			return fmt.Errorf("sync: stale sweep delete %s: %w", source, err)
		}
	}
	return nil
}

// cleanupStale implements spec §4.5 phase C for one source.
func (e *Engine) cleanupStale(ctx context.Context, source store.Source, valid map[string]struct{}, res *Result) error {
	n, err := store.NewChunkStore(e.colls).DeleteStale(ctx, source, valid)
	if err != nil {
		return err
	}
	res.ChunksRemoved += n

	n, err = store.NewFileStore(e.colls).DeleteStale(ctx, source, valid)
	if err != nil {
		return err
	}
	res.FilesRemoved += int(n)
	return nil
}

// enumerateMemoryFiles walks MEMORY.md, memory.md, memory/**, plus any
// configured extra paths (spec §4.5 phase A).
func (e *Engine) enumerateMemoryFiles() []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	for _, name := range rootMemoryFiles {
		p := filepath.Join(e.cfg.WorkspaceRoot, name)
		if fileExists(p) {
			add(p)
		}
	}

	memDir := filepath.Join(e.cfg.WorkspaceRoot, memoryDirName)
	for _, p := range walkFiles(memDir) {
		add(p)
	}

	for _, extra := range e.cfg.ExtraMemoryPaths {
		info, err := os.Stat(extra)
		if err != nil {
			continue
		}
		if info.IsDir() {
			for _, p := range walkFiles(extra) {
				add(p)
			}
		} else {
			add(extra)
		}
	}
	return out
}

// enumerateSessionFiles walks the agent's session-transcript directory
// (spec §4.5 phase B).
func (e *Engine) enumerateSessionFiles() []string {
	if e.cfg.SessionDir == "" {
		return nil
	}
	return walkFiles(e.cfg.SessionDir)
}

// walkFiles recursively lists regular, non-symlink files under root.
// Returns nil (not an error) if root doesn't exist.
func walkFiles(root string) []string {
	if !fileExists(root) {
		return nil
	}
	var out []string
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort walk, skip unreadable entries
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		out = append(out, path)
		return nil
	})
	return out
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return store.HashBytes(data), nil
}
