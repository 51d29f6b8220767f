package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/romiluz13/clawmongo/internal/manager"
	"github.com/romiluz13/clawmongo/internal/search"
	"github.com/romiluz13/clawmongo/internal/store"
)

func TestToMemorySearchResultOutput(t *testing.T) {
	r := manager.SearchResult{
		Result: search.Result{
			ID:           "abc123",
			Text:         "func AuthMiddleware() {}",
			Source:       store.SourceMemory,
			Score:        0.95,
			MatchedTerms: []string{"auth", "middleware"},
		},
		Citation: "internal/auth/handler.go:42",
	}

	out := toMemorySearchResultOutput(r)

	assert.Equal(t, "func AuthMiddleware() {}", out.Text)
	assert.Equal(t, "memory", out.Source)
	assert.Equal(t, 0.95, out.Score)
	assert.Equal(t, "internal/auth/handler.go:42", out.Citation)
	assert.Equal(t, []string{"auth", "middleware"}, out.MatchedTerms)
}

func TestToMemorySearchOutputIncludesHint(t *testing.T) {
	resp := manager.SearchResponse{
		Results: []manager.SearchResult{
			{Result: search.Result{Text: "one", Score: 0.8}, Citation: "a.md:1"},
			{Result: search.Result{Text: "two", Score: 0.5}, Citation: "b.md:5"},
		},
		Hint: "index looks stale, consider running sync",
	}

	out := toMemorySearchOutput(resp)

	assert.Len(t, out.Results, 2)
	assert.Equal(t, "one", out.Results[0].Text)
	assert.Equal(t, "index looks stale, consider running sync", out.Hint)
}

func TestToMemorySearchOutputEmpty(t *testing.T) {
	out := toMemorySearchOutput(manager.SearchResponse{})
	assert.Empty(t, out.Results)
	assert.Empty(t, out.Hint)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 10, clampLimit(0, 10, 1, 50))
	assert.Equal(t, 1, clampLimit(-5, 10, 1, 50))
	assert.Equal(t, 50, clampLimit(1000, 10, 1, 50))
	assert.Equal(t, 25, clampLimit(25, 10, 1, 50))
}
