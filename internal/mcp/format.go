package mcp

import (
	"github.com/romiluz13/clawmongo/internal/manager"
)

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}

// toMemorySearchResultOutput converts one fused, citation-annotated hit
// (spec §4.10) to its MCP wire shape.
func toMemorySearchResultOutput(r manager.SearchResult) MemorySearchResultOutput {
	return MemorySearchResultOutput{
		Text:         r.Text,
		Source:       string(r.Source),
		Score:        r.Score,
		Citation:     r.Citation,
		MatchedTerms: r.MatchedTerms,
	}
}

// toMemorySearchOutput converts search()'s full response, including the
// feedback hint (spec §4.10), to its MCP wire shape.
func toMemorySearchOutput(resp manager.SearchResponse) MemorySearchOutput {
	out := MemorySearchOutput{
		Results: make([]MemorySearchResultOutput, 0, len(resp.Results)),
		Hint:    resp.Hint,
	}
	for _, r := range resp.Results {
		out.Results = append(out.Results, toMemorySearchResultOutput(r))
	}
	return out
}
