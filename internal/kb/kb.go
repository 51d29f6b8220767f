// Package kb implements the KB Pipeline (spec §4.8): ingest, search, and
// management operations over the kb_documents/kb_chunks collections,
// independent of the workspace-memory Sync Engine.
package kb

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/romiluz13/clawmongo/internal/chunk"
	"github.com/romiluz13/clawmongo/internal/embed"
	"github.com/romiluz13/clawmongo/internal/scanner"
	"github.com/romiluz13/clawmongo/internal/search"
	"github.com/romiluz13/clawmongo/internal/store"
)

// DefaultMaxDocumentSize is the ingest size cap (spec §4.8 "default 10 MB").
const DefaultMaxDocumentSize = 10 * 1024 * 1024

// Doc is one document handed to ingestToKB.
type Doc struct {
	Title      string
	Content    string
	SourceKind string // file | url | manual | api
	SourceRef  string
	ImportedBy string
	Tags       []string
	Category   string
}

// IngestOptions configures ingestToKB (spec §4.8).
type IngestOptions struct {
	EmbeddingMode   string // "managed" | "automated"
	Chunking        chunk.Options
	Force           bool
	MaxDocumentSize int
}

func (o IngestOptions) withDefaults() IngestOptions {
	if o.MaxDocumentSize <= 0 {
		o.MaxDocumentSize = DefaultMaxDocumentSize
	}
	if o.Chunking == (chunk.Options{}) {
		o.Chunking = chunk.DefaultKBOptions
	}
	return o
}

// ProgressFunc streams {completed, total, label} during a batch ingest
// (spec §4.8 "stream progress callbacks").
type ProgressFunc func(completed, total int, label string)

// IngestResult is ingestToKB's summary (spec §4.8).
type IngestResult struct {
	DocumentsProcessed int
	ChunksCreated      int
	Skipped            int
	Errors             []string
}

// Pipeline is the KB Pipeline (H).
type Pipeline struct {
	store      *store.KBStore
	embedder   embed.Embedder
	dispatcher *search.Dispatcher
}

// New constructs a Pipeline. dispatcher must be scoped to the kb_chunks
// collection (spec §4.8: "searchKB ... same dispatcher as §4.7 but scoped
// to the KB chunks collection").
func New(kbStore *store.KBStore, embedder embed.Embedder, dispatcher *search.Dispatcher) *Pipeline {
	return &Pipeline{store: kbStore, embedder: embedder, dispatcher: dispatcher}
}

// IngestToKB ingests each doc, deduping by content hash and best-effort
// embedding the resulting chunks (spec §4.8).
func (p *Pipeline) IngestToKB(ctx context.Context, docs []Doc, opts IngestOptions, progress ProgressFunc) (IngestResult, error) {
	opts = opts.withDefaults()
	var res IngestResult

	for i, d := range docs {
		if progress != nil {
			progress(i, len(docs), d.Title)
		}

		if len(d.Content) > opts.MaxDocumentSize {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: content exceeds maxDocumentSize", d.Title))
			continue
		}

		hash := store.HashBytes([]byte(d.Content))
		existing, err := p.store.FindByContentHash(ctx, hash)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", d.Title, err))
			continue
		}
		if existing != nil && !opts.Force {
			res.Skipped++
			continue
		}

		docID := store.NewDocumentID()
		if existing != nil {
			docID = existing.ID
		}

		pieces := chunk.Markdown(d.Content, opts.Chunking)
		kbChunks := make([]*store.KBChunk, 0, len(pieces))
		texts := make([]string, 0, len(pieces))
		for _, piece := range pieces {
			kbChunks = append(kbChunks, &store.KBChunk{
				ID:              store.KBChunkID(docID, piece.StartLine, piece.EndLine),
				DocID:           docID,
				Source:          store.SourceKB,
				StartLine:       piece.StartLine,
				EndLine:         piece.EndLine,
				Text:            piece.Text,
				Hash:            piece.Hash,
				EmbeddingStatus: store.EmbeddingPending,
			})
			texts = append(texts, piece.Text)
		}

		if opts.EmbeddingMode == "managed" && p.embedder != nil && len(texts) > 0 {
			vectors, err := p.embedder.EmbedBatch(ctx, texts)
			if err != nil {
				slog.Warn("kb: embedding batch failed, persisting chunks without vectors",
					slog.String("title", d.Title), slog.String("error", err.Error()))
				for _, c := range kbChunks {
					c.EmbeddingStatus = store.EmbeddingFailed
				}
			} else {
				model := p.embedder.ModelName()
				for j, c := range kbChunks {
					c.Embedding = vectors[j]
					c.EmbeddingStatus = store.EmbeddingSuccess
					c.EmbeddingModel = model
				}
			}
		}

		doc := &store.KBDocument{
			ID:          docID,
			Title:       d.Title,
			Content:     d.Content,
			SourceKind:  d.SourceKind,
			SourceRef:   d.SourceRef,
			ImportedBy:  d.ImportedBy,
			Tags:        d.Tags,
			Category:    d.Category,
			ContentHash: hash,
		}
		if err := p.store.Upsert(ctx, doc, kbChunks); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", d.Title, err))
			continue
		}

		res.DocumentsProcessed++
		res.ChunksCreated += len(kbChunks)
	}

	if progress != nil {
		progress(len(docs), len(docs), "")
	}
	return res, nil
}

// kbFileExtensions are the formats ingestFilesToKB accepts (spec §4.8
// "accepts .md and .txt").
var kbFileExtensions = map[string]bool{".md": true, ".txt": true}

// IngestFilesToKB walks paths, collects every .md/.txt file, skips
// symlinks, and delegates to IngestToKB (spec §4.8). A directory path is
// walked recursively with the project scanner (gitignore-aware, excludes
// sensitive files) when recursive is true; otherwise only its immediate
// entries are listed.
func (p *Pipeline) IngestFilesToKB(ctx context.Context, paths []string, recursive bool, opts IngestOptions, progress ProgressFunc) (IngestResult, error) {
	var docs []Doc
	for _, root := range paths {
		info, err := os.Lstat(root)
		if err != nil {
			continue
		}
		if info.Mode()&os.ModeSymlink != 0 {
			continue
		}
		if !info.IsDir() {
			if d, ok := loadKBFile(root); ok {
				docs = append(docs, d)
			}
			continue
		}

		var walked []Doc
		if recursive {
			walked, err = scanKBDir(ctx, root)
		} else {
			walked, err = listKBDirShallow(root)
		}
		if err != nil {
			return IngestResult{}, err
		}
		docs = append(docs, walked...)
	}
	return p.IngestToKB(ctx, docs, opts, progress)
}

// scanKBDir recursively discovers .md/.txt files under root using the
// project scanner (spec §4.3's directory walk, reused here rather than
// hand-rolling a second gitignore-aware walker): it respects .gitignore,
// skips the same sensitive-file/default-exclude patterns as a workspace
// memory sync, and never follows symlinks.
func scanKBDir(ctx context.Context, root string) ([]Doc, error) {
	s, err := scanner.New()
	if err != nil {
		return nil, fmt.Errorf("kb: create scanner: %w", err)
	}
	results, err := s.Scan(ctx, &scanner.ScanOptions{
		RootDir:          root,
		IncludePatterns:  []string{"*.md", "*.txt"},
		RespectGitignore: true,
	})
	if err != nil {
		return nil, fmt.Errorf("kb: scan %s: %w", root, err)
	}

	var docs []Doc
	for r := range results {
		if r.Error != nil {
			slog.Warn("kb: scan error, skipping", slog.String("error", r.Error.Error()))
			continue
		}
		if d, ok := loadKBFile(r.File.AbsPath); ok {
			docs = append(docs, d)
		}
	}
	return docs, nil
}

// listKBDirShallow lists root's immediate .md/.txt entries without
// recursing into subdirectories.
func listKBDirShallow(root string) ([]Doc, error) {
	var docs []Doc
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		full := filepath.Join(root, entry.Name())
		info, err := entry.Info()
		if err != nil || info.Mode()&os.ModeSymlink != 0 {
			continue
		}
		if d, ok := loadKBFile(full); ok {
			docs = append(docs, d)
		}
	}
	return docs, nil
}

func loadKBFile(path string) (Doc, bool) {
	if !kbFileExtensions[strings.ToLower(filepath.Ext(path))] {
		return Doc{}, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Doc{}, false
	}
	return Doc{
		Title:      filepath.Base(path),
		Content:    string(data),
		SourceKind: "file",
		SourceRef:  path,
	}, true
}

// SearchKB runs the search dispatcher scoped to kb_chunks (spec §4.8).
func (p *Pipeline) SearchKB(ctx context.Context, query string, opts search.Options) ([]search.Result, error) {
	return p.dispatcher.Search(ctx, query, opts)
}

// ListKBDocuments returns documents filtered by category/tags, sorted by
// updatedAt descending (spec §4.8).
func (p *Pipeline) ListKBDocuments(ctx context.Context, category string, tags []string) ([]*store.KBDocument, error) {
	return p.store.List(ctx, category, tags)
}

// RemoveKBDocument deletes chunks first, then the document (spec §4.8).
func (p *Pipeline) RemoveKBDocument(ctx context.Context, id string) error {
	return p.store.Remove(ctx, id)
}

// GetKBStats returns {documents, chunks, categories, sourcesByType} (spec
// §4.8).
func (p *Pipeline) GetKBStats(ctx context.Context) (*store.Stats, error) {
	return p.store.GetStats(ctx)
}
