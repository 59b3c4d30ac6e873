package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/codefionn/canvaschat/internal/search"
)

// WebSearchTool performs web searches through the configured provider.
type WebSearchTool struct {
	provider search.Provider
}

// NewWebSearchTool creates a web search tool backed by provider.
func NewWebSearchTool(provider search.Provider) *WebSearchTool {
	return &WebSearchTool{provider: provider}
}

func (t *WebSearchTool) Name() string {
	return ToolNameWebSearch
}

func (t *WebSearchTool) Description() string {
	return "Search the web for current information. Returns a list of results with title, url and description. Use browse to read a result in full."
}

func (t *WebSearchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "The search query",
				"minLength":   1,
			},
			"count": map[string]interface{}{
				"type":        "integer",
				"description": "Number of results to return (default: 5)",
				"minimum":     1,
				"maximum":     20,
			},
			"offset": map[string]interface{}{
				"type":        "integer",
				"description": "Number of results to skip, for paging",
				"minimum":     0,
			},
		},
		"required": []string{"query"},
	}
}

func (t *WebSearchTool) Execute(ctx context.Context, params map[string]interface{}, _ Emitter) (interface{}, error) {
	if t.provider == nil {
		return nil, fmt.Errorf("no search provider configured")
	}
	if err := t.provider.Validate(); err != nil {
		return nil, err
	}

	query := strings.TrimSpace(GetStringParam(params, "query", ""))
	if query == "" {
		return nil, fmt.Errorf("missing required parameter 'query'")
	}

	resp, err := t.provider.Search(ctx, query, GetIntParam(params, "count", 5), GetIntParam(params, "offset", 0))
	if err != nil {
		return nil, fmt.Errorf("%s search failed: %w", t.provider.Name(), err)
	}
	return resp.Results, nil
}
