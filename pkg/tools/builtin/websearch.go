// Package builtin provides the built-in toolsets: web search, recent
// news, current time and webpage fetching.
package builtin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ragdesk/ragdesk/pkg/tools"
)

const defaultMaxResults = 5

// SearchToolSet registers the web_search and search_recent_news tools
// backed by an injected engine. Both tools are reviewable: their
// output is screened for relevance and recency before re-entering the
// model context.
type SearchToolSet struct {
	engine     SearchEngine
	maxResults int
}

func NewSearchToolSet(engine SearchEngine, maxResults int) *SearchToolSet {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	return &SearchToolSet{engine: engine, maxResults: maxResults}
}

type webSearchParams struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type recentNewsParams struct {
	Topic string `json:"topic"`
	Days  int    `json:"days"`
}

func (s *SearchToolSet) Register(reg *tools.Registry) {
	reg.Register(tools.Registration{
		Tool: tools.Tool{
			Type: tools.ToolTypeFunction,
			Function: &tools.FunctionDefinition{
				Name:        "web_search",
				Description: "Search the web for current information. Use this for questions about recent events, facts you are unsure about, or anything that may have changed after your training data.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{
							"type":        "string",
							"description": "The search query",
						},
						"max_results": map[string]any{
							"type":        "integer",
							"description": "Maximum number of results to return",
						},
					},
					"required": []string{"query"},
				},
			},
		},
		Handler:    NewHandler(s.webSearch),
		Reviewable: true,
	})

	reg.Register(tools.Registration{
		Tool: tools.Tool{
			Type: tools.ToolTypeFunction,
			Function: &tools.FunctionDefinition{
				Name:        "search_recent_news",
				Description: "Search for recent news about a topic, restricted to the last few days.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"topic": map[string]any{
							"type":        "string",
							"description": "The news topic to search for",
						},
						"days": map[string]any{
							"type":        "integer",
							"description": "How many days back to look, defaults to 7",
						},
					},
					"required": []string{"topic"},
				},
			},
		},
		Handler:    NewHandler(s.recentNews),
		Reviewable: true,
	})
}

func (s *SearchToolSet) webSearch(ctx context.Context, params webSearchParams) (*tools.ToolCallResult, error) {
	if strings.TrimSpace(params.Query) == "" {
		return &tools.ToolCallResult{Output: "Search failed: empty query."}, nil
	}

	max := params.MaxResults
	if max <= 0 || max > s.maxResults {
		max = s.maxResults
	}

	results, err := s.engine.Search(ctx, params.Query, max)
	if err != nil {
		slog.Error("Web search failed", "engine", s.engine.Name(), "query", params.Query, "error", err)
		return &tools.ToolCallResult{Output: fmt.Sprintf("Search failed: %v", err)}, nil
	}

	return &tools.ToolCallResult{Output: FormatResults(results)}, nil
}

func (s *SearchToolSet) recentNews(ctx context.Context, params recentNewsParams) (*tools.ToolCallResult, error) {
	if strings.TrimSpace(params.Topic) == "" {
		return &tools.ToolCallResult{Output: "Search failed: empty topic."}, nil
	}

	days := params.Days
	if days <= 0 {
		days = 7
	}
	query := fmt.Sprintf("%s latest news past %d days", params.Topic, days)

	results, err := s.engine.Search(ctx, query, s.maxResults)
	if err != nil {
		slog.Error("News search failed", "engine", s.engine.Name(), "topic", params.Topic, "error", err)
		return &tools.ToolCallResult{Output: fmt.Sprintf("Search failed: %v", err)}, nil
	}

	return &tools.ToolCallResult{Output: FormatResults(results)}, nil
}

// FormatResults renders search results as numbered blocks, each
// terminated by a blank line. The review parser depends on this exact
// shape.
func FormatResults(results []SearchResult) string {
	if len(results) == 0 {
		return "No search results found."
	}

	var sb strings.Builder
	for i, r := range results {
		title := r.Title
		if title == "" {
			title = "Untitled"
		}
		snippet := r.Snippet
		if snippet == "" {
			snippet = "No description"
		}
		source := r.Source
		if source == "" {
			source = "Unknown"
		}

		fmt.Fprintf(&sb, "[%d] %s\n", i+1, title)
		fmt.Fprintf(&sb, "📝 %s\n", snippet)
		if r.URL != "" {
			fmt.Fprintf(&sb, "🔗 %s\n", r.URL)
		}
		fmt.Fprintf(&sb, "📍 Source: %s\n", source)
		sb.WriteString("\n")
	}
	return sb.String()
}
