package search

import (
	"context"
	"log/slog"
	"sort"

	"github.com/romiluz13/clawmongo/internal/topology"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"
)

// Dispatcher runs the capability-gated search strategy (spec §4.7) against
// one collection. The memory manager façade (J) owns two instances: one
// scoped to the chunks collection for search(), one scoped to kb_chunks
// for searchKB() (spec §4.8 "same dispatcher as §4.7 but scoped to the KB
// chunks collection").
type Dispatcher struct {
	coll          *mongo.Collection
	topo          *topology.Topology
	embeddingMode string // "managed" | "automated"
}

// NewDispatcher constructs a Dispatcher over coll.
func NewDispatcher(coll *mongo.Collection, topo *topology.Topology, embeddingMode string) *Dispatcher {
	return &Dispatcher{coll: coll, topo: topo, embeddingMode: embeddingMode}
}

// Search implements the five-tier strategy selection (spec §4.7). Each
// tier is attempted in order; a tier's own error is logged and treated as a
// fall-through to the next tier, never surfaced to the caller unless every
// tier fails.
func (d *Dispatcher) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	if opts.MaxResults == 0 {
		// spec §8: "a maxResults of 0 returns [] without querying."
		return nil, nil
	}
	opts = opts.withDefaults()
	filter := d.sessionKeyFilter(opts.SessionKey)

	vectorViable := d.vectorViable(opts)
	textViable := d.topo.Features.TextSearch

	var (
		rows []row
		err  error
	)

	switch {
	case vectorViable && textViable && opts.FusionMethod == FusionScoreFusion && d.topo.Features.ScoreFusion:
		rows, err = d.runScoreFusion(ctx, query, opts, filter)
		if err != nil {
			slog.Warn("search: scoreFusion tier failed, falling through", slog.String("error", err.Error()))
		}
	}
	if rows == nil && vectorViable && textViable && opts.FusionMethod != FusionJSMerge && d.topo.Features.RankFusion {
		rows, err = d.runRankFusion(ctx, query, opts, filter)
		if err != nil {
			slog.Warn("search: rankFusion tier failed, falling through", slog.String("error", err.Error()))
		}
	}
	if rows == nil && vectorViable && textViable {
		rows, err = d.runClientRRF(ctx, query, opts, filter)
		if err != nil {
			slog.Warn("search: client-side RRF tier failed, falling through", slog.String("error", err.Error()))
		}
	}
	if rows == nil && vectorViable {
		rows, err = runPipeline(ctx, d.coll, vectorPipeline(opts.QueryVector, opts.MaxResults, opts.NumCandidates, filter))
		if err != nil {
			slog.Warn("search: vector-only tier failed, falling through", slog.String("error", err.Error()))
			rows = nil
		} else {
			normalizeRows(rows, clamp01)
		}
	}
	if rows == nil && textViable {
		rows, err = runPipeline(ctx, d.coll, textSearchPipeline(query, opts.MaxResults, filter))
		if err != nil {
			slog.Warn("search: text-only tier failed, falling through", slog.String("error", err.Error()))
			rows = nil
		} else {
			normalizeRows(rows, sigmoidNorm)
		}
	}
	if rows == nil {
		rows, err = runPipeline(ctx, d.coll, plainTextPipeline(query, opts.MaxResults, filter))
		if err != nil {
			return nil, err
		}
		normalizeRows(rows, sigmoidNorm)
	}

	return d.finalize(rows, opts), nil
}

// vectorViable reports whether a vector tier can run at all (spec §4.7:
// "(embedding mode is automated and the server supports in-db embedding)
// OR (embedding mode is managed and a query vector was provided) — and the
// vector capability is on").
func (d *Dispatcher) vectorViable(opts Options) bool {
	if !d.topo.Features.VectorSearch {
		return false
	}
	switch d.embeddingMode {
	case "automated":
		return true
	case "managed":
		return len(opts.QueryVector) > 0
	default:
		return false
	}
}

func (d *Dispatcher) sessionKeyFilter(sessionKey string) bson.M {
	field, value, ok := sessionFilter(sessionKey)
	if !ok {
		return bson.M{}
	}
	return bson.M{field: value}
}

func (d *Dispatcher) runScoreFusion(ctx context.Context, query string, opts Options, filter bson.M) ([]row, error) {
	pipeline := scoreFusionPipeline(query, opts.QueryVector, opts.MaxResults, opts.NumCandidates, opts.VectorWeight, opts.TextWeight, filter)
	rows, err := runPipeline(ctx, d.coll, pipeline)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Score = clamp01(rows[i].Score)
	}
	return rows, nil
}

func (d *Dispatcher) runRankFusion(ctx context.Context, query string, opts Options, filter bson.M) ([]row, error) {
	pipeline := rankFusionPipeline(query, opts.QueryVector, opts.MaxResults, opts.NumCandidates, opts.VectorWeight, opts.TextWeight, filter)
	rows, err := runPipeline(ctx, d.coll, pipeline)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Score = rrfNorm(rows[i].Score)
	}
	return rows, nil
}

// runClientRRF fetches the vector and text tiers in parallel and merges
// them on the client with Reciprocal Rank Fusion (spec §4.7 tier 3): each
// row's score is the weighted sum of 1/(k+rank) across the lists it
// appears in, rank 1-indexed, k = RRFConstant.
func (d *Dispatcher) runClientRRF(ctx context.Context, query string, opts Options, filter bson.M) ([]row, error) {
	fetchLimit := opts.MaxResults * 2
	if fetchLimit < 20 {
		fetchLimit = 20
	}

	var vectorRows, textRows []row
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		vectorRows, err = runPipeline(gctx, d.coll, vectorPipeline(opts.QueryVector, fetchLimit, opts.NumCandidates, filter))
		return err
	})
	g.Go(func() error {
		var err error
		textRows, err = runPipeline(gctx, d.coll, textSearchPipeline(query, fetchLimit, filter))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byID := make(map[string]row, len(vectorRows)+len(textRows))
	for _, r := range vectorRows {
		byID[r.ID] = r
	}
	for _, r := range textRows {
		// Text rows win on conflict (spec §4.7: "preferring the text
		// snippet for items present in both lists").
		byID[r.ID] = r
	}

	scores := make(map[string]float64, len(byID))
	for rank, r := range vectorRows {
		scores[r.ID] += opts.VectorWeight / float64(RRFConstant+rank+1)
	}
	for rank, r := range textRows {
		scores[r.ID] += opts.TextWeight / float64(RRFConstant+rank+1)
	}

	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j] // stable tie-break for deterministic ordering
	})
	if len(ids) > opts.MaxResults {
		ids = ids[:opts.MaxResults]
	}

	out := make([]row, 0, len(ids))
	for _, id := range ids {
		r := byID[id]
		r.Score = rrfNorm(scores[id])
		out = append(out, r)
	}
	return out, nil
}

// finalize converts rows to the public Result type, applying minScore and
// truncating to maxResults. Scores are used as they arrive; each tier in
// Search has already normalized its own rows.
func (d *Dispatcher) finalize(rows []row, opts Options) []Result {
	out := make([]Result, 0, len(rows))
	for _, r := range rows {
		score := r.Score
		out = append(out, Result{ID: r.ID, Text: r.Text, Source: r.Source, Hash: r.Hash, Score: score})
	}
	filtered := out[:0]
	for _, r := range out {
		if r.Score >= opts.MinScore {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) > opts.MaxResults {
		filtered = filtered[:opts.MaxResults]
	}
	return filtered
}
