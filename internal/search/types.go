// Package search implements the search dispatcher (spec §4.7): a
// capability-gated strategy selector that runs a single fused aggregation
// pipeline when the server supports it, falls back to a client-side
// Reciprocal-Rank-Fusion merge when it doesn't, and degrades further to
// single-source or plain-text search on a standalone deployment.
package search

import (
	"math"

	"github.com/romiluz13/clawmongo/internal/store"
)

// FusionMethod is the user-preferred hybrid strategy (spec §6
// "fusionMethod ∈ {scoreFusion, rankFusion, js-merge}").
type FusionMethod string

const (
	FusionScoreFusion FusionMethod = "scoreFusion"
	FusionRankFusion  FusionMethod = "rankFusion"
	FusionJSMerge     FusionMethod = "js-merge"
)

// RRFConstant is the smoothing constant k used by both the client-side RRF
// merge and the normalization of fused-stage raw scores (spec §4.7, and
// SPEC_FULL.md's Open Question decision fixing k = 60).
const RRFConstant = 60

// textSigmoidK is the denominator constant in the BM25-like text-score
// sigmoid normalization x/(x+k) (spec §4.7). Spec.md does not fix a value;
// 2.0 is the constant this repo settles on (see DESIGN.md), chosen because
// it maps a typical Atlas Search "searchScore" in the 0–10 range onto a
// usefully spread [0,1] curve rather than saturating near 1.
const textSigmoidK = 2.0

// Sentinel sessionKey values (spec §4.7 "sessionKey filter").
const (
	SessionKeyMemory   = "__memory__"
	SessionKeySessions = "__sessions__"
)

// DefaultVectorWeight and DefaultTextWeight are the fusion weights applied
// when Options leaves them unset (spec §4.7 "defaults 0.7 / 0.3").
const (
	DefaultVectorWeight = 0.7
	DefaultTextWeight   = 0.3
)

// DefaultNumCandidates is the approx-NN candidate pool size for
// $vectorSearch (spec §6 "numCandidates (200)").
const DefaultNumCandidates = 200

// MaxNumCandidates caps the approx-NN candidate pool regardless of what a
// caller requests (spec §8: "numCandidates requested above 10,000 is
// clamped to 10,000").
const MaxNumCandidates = 10000

// DefaultMaxResults and DefaultMinScore bound an unconfigured search.
const (
	DefaultMaxResults = 10
	DefaultMinScore   = 0.0
)

// Result is one ranked hit, normalized into [0,1] score space regardless of
// which tier produced it (spec §4.7 "Score normalisation").
type Result struct {
	ID           string
	Text         string
	Source       store.Source
	Hash         string
	Score        float64
	MatchedTerms []string
}

// Options carries the per-call tunables of search() (spec §4.7).
type Options struct {
	MaxResults    int
	MinScore      float64
	SessionKey    string
	FusionMethod  FusionMethod
	VectorWeight  float64
	TextWeight    float64
	NumCandidates int
	// QueryVector is the caller-computed embedding, required iff
	// embeddingMode is "managed" (spec §4.7).
	QueryVector []float32
}

// withDefaults fills in unset tunables. It deliberately leaves MaxResults
// alone: an explicit 0 is a valid request meaning "return no results"
// (spec §8), distinct from an unset field, so resolving "unset" to
// DefaultMaxResults is the caller's job at the point where the optional
// parameter is genuinely absent (the MCP/CLI boundary), not this package's.
func (o Options) withDefaults() Options {
	if o.FusionMethod == "" {
		o.FusionMethod = FusionScoreFusion
	}
	if o.VectorWeight <= 0 && o.TextWeight <= 0 {
		o.VectorWeight = DefaultVectorWeight
		o.TextWeight = DefaultTextWeight
	}
	if o.NumCandidates <= 0 {
		o.NumCandidates = DefaultNumCandidates
	}
	if o.NumCandidates > MaxNumCandidates {
		o.NumCandidates = MaxNumCandidates
	}
	return o
}

// sessionFilter turns a sessionKey into the collection filter that scopes a
// search to one source (spec §4.7 "sessionKey filter"). Non-sentinel
// values are not a query filter — they are parsed separately by
// SessionKeyTokens for the citation policy (spec §4.10).
func sessionFilter(sessionKey string) (field string, value store.Source, ok bool) {
	switch sessionKey {
	case SessionKeyMemory:
		return "source", store.SourceMemory, true
	case SessionKeySessions:
		return "source", store.SourceSessions, true
	default:
		return "", "", false
	}
}

// SessionKeyTokens reports which of the direct/group/channel tokens appear
// in an arbitrary (non-sentinel) sessionKey, driving the citation-append
// decision in the memory manager façade (spec §4.7, §4.10).
type SessionKeyTokens struct {
	Direct  bool
	Group   bool
	Channel bool
}

func ParseSessionKeyTokens(sessionKey string) SessionKeyTokens {
	return SessionKeyTokens{
		Direct:  containsToken(sessionKey, "direct"),
		Group:   containsToken(sessionKey, "group"),
		Channel: containsToken(sessionKey, "channel"),
	}
}

func containsToken(s, token string) bool {
	for _, part := range splitAny(s) {
		if part == token {
			return true
		}
	}
	return false
}

// splitAny splits on common separators agents use for composite session
// keys ("group:channel:direct", "group/channel", etc.) without pulling in a
// regexp dependency for a handful of fixed delimiters.
func splitAny(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ':', '/', '-', '_', '.':
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// clamp01 implements the vector-cosine normalization rule: clamp to [0,1],
// mapping non-finite inputs to 0 (-∞) or 1 (+∞) (spec §4.7).
func clamp01(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	if math.IsInf(x, 1) {
		return 1
	}
	if math.IsInf(x, -1) {
		return 0
	}
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// sigmoidNorm implements the BM25-like text-score normalization x/(x+k)
// (spec §4.7), with the same non-finite handling as clamp01.
func sigmoidNorm(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	if math.IsInf(x, 1) {
		return 1
	}
	if math.IsInf(x, -1) {
		return 0
	}
	if x < 0 {
		return 0
	}
	return x / (x + textSigmoidK)
}

// rrfNorm implements the RRF raw-score normalization: multiply by (k+1)
// (spec §4.7).
func rrfNorm(x float64) float64 {
	return clamp01(x * (RRFConstant + 1))
}

// normalizeRows applies a normalization function to every row's score
// in place.
func normalizeRows(rows []row, norm func(float64) float64) {
	for i := range rows {
		rows[i].Score = norm(rows[i].Score)
	}
}
