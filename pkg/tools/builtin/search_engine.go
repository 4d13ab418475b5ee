package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// SearchResult is one entry returned by a search engine.
type SearchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
	Source  string `json:"source"`
}

// SearchEngine is an injected search backend. One instance is built
// at startup and shared read-only.
type SearchEngine interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

const searchTimeout = 30 * time.Second

// SerpAPIEngine queries Google through the SerpAPI JSON endpoint.
type SerpAPIEngine struct {
	apiKey string
	client *http.Client
}

func NewSerpAPIEngine(apiKey string) *SerpAPIEngine {
	return &SerpAPIEngine{
		apiKey: apiKey,
		client: &http.Client{Timeout: searchTimeout},
	}
}

func (e *SerpAPIEngine) Name() string { return "serpapi" }

func (e *SerpAPIEngine) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("api_key", e.apiKey)
	q.Set("num", strconv.Itoa(maxResults))

	var payload struct {
		OrganicResults []struct {
			Title   string `json:"title"`
			Snippet string `json:"snippet"`
			Link    string `json:"link"`
		} `json:"organic_results"`
	}
	if err := getJSON(ctx, e.client, "https://serpapi.com/search.json?"+q.Encode(), &payload); err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, maxResults)
	for _, item := range payload.OrganicResults {
		if len(results) >= maxResults {
			break
		}
		results = append(results, SearchResult{
			Title:   item.Title,
			Snippet: item.Snippet,
			URL:     item.Link,
			Source:  "Google (SerpAPI)",
		})
	}
	return results, nil
}

// DuckDuckGoEngine queries the DuckDuckGo instant-answer API. It
// needs no API key and serves as the fallback engine.
type DuckDuckGoEngine struct {
	client *http.Client
}

func NewDuckDuckGoEngine() *DuckDuckGoEngine {
	return &DuckDuckGoEngine{
		client: &http.Client{Timeout: searchTimeout},
	}
}

func (e *DuckDuckGoEngine) Name() string { return "duckduckgo" }

func (e *DuckDuckGoEngine) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")

	var payload struct {
		Heading       string `json:"Heading"`
		AbstractText  string `json:"AbstractText"`
		AbstractURL   string `json:"AbstractURL"`
		RelatedTopics []struct {
			Text     string `json:"Text"`
			FirstURL string `json:"FirstURL"`
		} `json:"RelatedTopics"`
	}
	if err := getJSON(ctx, e.client, "https://api.duckduckgo.com/?"+q.Encode(), &payload); err != nil {
		return nil, err
	}

	var results []SearchResult
	if payload.AbstractText != "" {
		results = append(results, SearchResult{
			Title:   payload.Heading,
			Snippet: payload.AbstractText,
			URL:     payload.AbstractURL,
			Source:  "DuckDuckGo",
		})
	}
	for _, topic := range payload.RelatedTopics {
		if len(results) >= maxResults {
			break
		}
		if topic.Text == "" {
			continue
		}
		results = append(results, SearchResult{
			Title:   fmt.Sprintf("Result %d", len(results)+1),
			Snippet: topic.Text,
			URL:     topic.FirstURL,
			Source:  "DuckDuckGo",
		})
	}
	return results, nil
}

func getJSON(ctx context.Context, client *http.Client, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("search request failed with status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
