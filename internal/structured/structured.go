// Package structured implements the Structured-Memory Store (spec §4.9):
// upsert-by-(type,key,agentId) typed observations, and their participation
// in search as the "structured" source.
package structured

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/romiluz13/clawmongo/internal/embed"
	"github.com/romiluz13/clawmongo/internal/search"
	"github.com/romiluz13/clawmongo/internal/store"
)

// Store wraps store.StructuredStore with best-effort embedding on write and
// client-side cosine search, mirroring how the teacher layers a narrow
// domain facade over a plain persistence type.
type Store struct {
	store    *store.StructuredStore
	embedder embed.Embedder
}

// New constructs a Store. embedder may be nil when embeddingMode is
// "automated" (the backend embeds server-side) — Write then skips the
// client-side embed step and search falls back to zero scores.
func New(structuredStore *store.StructuredStore, embedder embed.Embedder) *Store {
	return &Store{store: structuredStore, embedder: embedder}
}

// WriteInput is writeStructuredMemory's argument shape (spec §4.9).
type WriteInput struct {
	Type       store.StructuredType
	Key        string
	Value      string
	Context    string
	Confidence float64
	Tags       []string
	Source     string
	AgentID    string
}

// Write upserts by (type,key,agentId), embedding value+context best-effort
// (spec §4.9, and spec §4.7 "structured memory participates in search with
// a cosine-similarity-style score range" — the embedding is what makes that
// possible).
func (s *Store) Write(ctx context.Context, in WriteInput) (*store.WriteResult, error) {
	m := &store.StructuredMemory{
		Type:       in.Type,
		Key:        in.Key,
		AgentID:    in.AgentID,
		Value:      in.Value,
		Context:    in.Context,
		Confidence: in.Confidence,
		Source:     in.Source,
		Tags:       in.Tags,
	}

	if s.embedder != nil {
		text := in.Value
		if in.Context != "" {
			text = in.Value + "\n" + in.Context
		}
		vec, err := s.embedder.Embed(ctx, text)
		if err != nil {
			slog.Warn("structured: embedding failed, writing without a vector",
				slog.String("type", string(in.Type)), slog.String("key", in.Key), slog.String("error", err.Error()))
		} else {
			m.Embedding = vec
		}
	}

	return s.store.Upsert(ctx, m)
}

// Search returns structured_memory rows for agentID ranked by cosine
// similarity to queryVector, normalized into the same [0,1] score space as
// the rest of search() (spec §4.7, §4.9). Rows with no stored embedding (or
// a nil queryVector) score zero and sort last rather than being excluded —
// the manager façade's MinScore filter drops them if appropriate.
func (s *Store) Search(ctx context.Context, agentID string, queryVector []float32, opts search.Options) ([]search.Result, error) {
	if opts.MaxResults == 0 {
		// spec §8: "a maxResults of 0 returns [] without querying."
		return nil, nil
	}

	rows, err := s.store.ListByAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	results := make([]search.Result, 0, len(rows))
	for _, r := range rows {
		results = append(results, search.Result{
			ID:     r.ID,
			Text:   r.Value,
			Source: store.SourceStructured,
			Score:  cosineScore(queryVector, r.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	out := make([]search.Result, 0, opts.MaxResults)
	for _, r := range results {
		if r.Score < opts.MinScore {
			continue
		}
		out = append(out, r)
		if len(out) >= opts.MaxResults {
			break
		}
	}
	return out, nil
}

// cosineScore computes cosine similarity clamped into [0,1] (spec §4.9
// "cosine-similarity-style score range"), matching the simple-clamp
// convention internal/search applies to $vectorSearch scores rather than
// remapping the [-1,1] range — a negative cosine (near-opposite vectors)
// clamps to 0, same as a non-finite score would. Returns 0 for mismatched
// or empty vectors rather than erroring — an unembedded row simply ranks
// last.
func cosineScore(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(cos) || math.IsInf(cos, 0) || cos < 0 {
		return 0
	}
	if cos > 1 {
		return 1
	}
	return cos
}
