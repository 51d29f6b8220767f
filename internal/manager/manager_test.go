package manager

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/romiluz13/clawmongo/internal/search"
	"github.com/romiluz13/clawmongo/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupeByHashKeepsHighestScore(t *testing.T) {
	results := []search.Result{
		{ID: "a", Hash: "h1", Score: 0.4},
		{ID: "b", Hash: "h1", Score: 0.9},
		{ID: "c", Hash: "h2", Score: 0.5},
		{ID: "d", Hash: "", Score: 0.1},
		{ID: "e", Hash: "", Score: 0.2},
	}
	out := dedupeByHash(results)
	require.Len(t, out, 4, "h1 duplicates collapse to one, empty-hash rows never dedupe against each other")

	var gotH1 *search.Result
	for i := range out {
		if out[i].Hash == "h1" {
			gotH1 = &out[i]
		}
	}
	require.NotNil(t, gotH1)
	assert.Equal(t, "b", gotH1.ID, "the higher-scoring duplicate must survive")
}

func TestFeedbackHint(t *testing.T) {
	cases := []struct {
		name    string
		results []SearchResult
		wantHint bool
	}{
		{"no results", nil, true},
		{"one weak result", []SearchResult{{Result: search.Result{Score: 0.1}}}, true},
		{"one strong result", []SearchResult{{Result: search.Result{Score: 0.5}}}, false},
		{"two weak results", []SearchResult{{Result: search.Result{Score: 0.1}}, {Result: search.Result{Score: 0.2}}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hint := feedbackHint(tc.results)
			if tc.wantHint {
				assert.NotEmpty(t, hint)
			} else {
				assert.Empty(t, hint)
			}
		})
	}
}

func TestResolveWorkspacePathRejectsEscapes(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "MEMORY.md"), []byte("x"), 0o644))

	abs, err := resolveWorkspacePath(root, "MEMORY.md")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "MEMORY.md"), abs)

	_, err = resolveWorkspacePath(root, "../outside.md")
	assert.Error(t, err)

	_, err = resolveWorkspacePath(root, "/etc/passwd")
	assert.Error(t, err)
}

func TestReadLinesRange(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\nthree\nfour\n"), 0o644))

	lines, err := readLines(path, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"two", "three"}, lines)
}

func TestFormatCitation(t *testing.T) {
	got := formatCitation(search.Result{Source: store.SourceMemory, ID: "memory/a.md:1:10"})
	assert.Equal(t, "[memory:memory/a.md:1:10]", got)
}

func TestSearchMaxResultsZeroSkipsQuery(t *testing.T) {
	m := &Manager{}
	resp, err := m.Search(context.Background(), "anything", SearchOptions{MaxResults: 0})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}
