package mcp

// MemorySearchInput is the input schema for the memory_search tool (spec
// §4.10 search()).
type MemorySearchInput struct {
	Query      string  `json:"query" jsonschema:"the search query to execute"`
	MaxResults int     `json:"max_results,omitempty" jsonschema:"maximum number of results, default 10"`
	MinScore   float64 `json:"min_score,omitempty" jsonschema:"minimum relevance score, 0-1"`
	SessionKey string  `json:"session_key,omitempty" jsonschema:"session key: __memory__ or __sessions__ limits results to that source; with citations=auto a key with a 'direct' token turns citations on"`
}

// MemorySearchOutput is the output schema for the memory_search tool.
type MemorySearchOutput struct {
	Results []MemorySearchResultOutput `json:"results" jsonschema:"list of search results, fused and ranked"`
	Hint    string                     `json:"hint,omitempty" jsonschema:"feedback hint when results look thin or stale"`
}

// MemorySearchResultOutput is a single ranked, citation-annotated hit.
type MemorySearchResultOutput struct {
	Text         string   `json:"text" jsonschema:"matched chunk text"`
	Source       string   `json:"source" jsonschema:"memory | sessions | kb | structured"`
	Score        float64  `json:"score" jsonschema:"fused relevance score"`
	Citation     string   `json:"citation" jsonschema:"human-readable source citation, e.g. file:line"`
	MatchedTerms []string `json:"matched_terms,omitempty" jsonschema:"query terms that matched this result"`
}

// MemoryGetInput is the input schema for the memory_get tool (spec §4.10
// readFile()).
type MemoryGetInput struct {
	Path  string `json:"path" jsonschema:"workspace-relative file path to read"`
	From  int    `json:"from,omitempty" jsonschema:"1-based starting line; defaults to 1"`
	Lines int    `json:"lines,omitempty" jsonschema:"number of lines to read; defaults to the whole file"`
}

// MemoryGetOutput is the output schema for the memory_get tool.
type MemoryGetOutput struct {
	Lines []string `json:"lines" jsonschema:"the requested lines, in order"`
}

// KBSearchInput is the input schema for the kb_search tool, registered only
// when the backend is mongodb (spec §4.8 KB Pipeline).
type KBSearchInput struct {
	Query      string `json:"query" jsonschema:"the knowledge-base search query"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"maximum number of results, default 10"`
}

// KBSearchOutput is the output schema for the kb_search tool.
type KBSearchOutput struct {
	Results []MemorySearchResultOutput `json:"results" jsonschema:"list of knowledge-base search results"`
}

// MemoryWriteInput is the input schema for the memory_write tool, registered
// only when the backend is mongodb (spec §4.9 Structured Memory Store).
type MemoryWriteInput struct {
	Type       string   `json:"type" jsonschema:"decision | preference | person | todo | fact | project | architecture | custom"`
	Key        string   `json:"key" jsonschema:"stable key identifying this observation; writes with the same type+key upsert in place"`
	Value      string   `json:"value" jsonschema:"the observation itself"`
	Context    string   `json:"context,omitempty" jsonschema:"surrounding context, e.g. why this decision was made"`
	Confidence float64  `json:"confidence,omitempty" jsonschema:"0-1 confidence in this observation, defaults to 0.8"`
	Tags       []string `json:"tags,omitempty" jsonschema:"free-form tags for later filtering"`
}

// MemoryWriteOutput is the output schema for the memory_write tool.
type MemoryWriteOutput struct {
	Upserted bool   `json:"upserted" jsonschema:"true if an existing row with the same type+key was replaced"`
	ID       string `json:"id" jsonschema:"the structured memory row's id"`
}
