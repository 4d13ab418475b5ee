package builtin

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/k3a/html2text"

	"github.com/ragdesk/ragdesk/pkg/tools"
)

const (
	fetchTimeout   = 30 * time.Second
	fetchBodyLimit = 1 << 20

	// fetchTextLimit caps the extracted text returned to the model.
	fetchTextLimit = 8000
)

// FetchToolSet registers fetch_webpage, which downloads a page and
// returns its visible text.
type FetchToolSet struct {
	client *http.Client
}

func NewFetchToolSet() *FetchToolSet {
	return &FetchToolSet{
		client: &http.Client{Timeout: fetchTimeout},
	}
}

type fetchParams struct {
	URL string `json:"url"`
}

func (f *FetchToolSet) Register(reg *tools.Registry) {
	reg.Register(tools.Registration{
		Tool: tools.Tool{
			Type: tools.ToolTypeFunction,
			Function: &tools.FunctionDefinition{
				Name:        "fetch_webpage",
				Description: "Fetch a web page and return its text content. Use this to read the full article behind a search result.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"url": map[string]any{
							"type":        "string",
							"description": "The http or https URL to fetch",
						},
					},
					"required": []string{"url"},
				},
			},
		},
		Handler: NewHandler(f.fetch),
	})
}

func (f *FetchToolSet) fetch(ctx context.Context, params fetchParams) (*tools.ToolCallResult, error) {
	u, err := url.Parse(strings.TrimSpace(params.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &tools.ToolCallResult{Output: fmt.Sprintf("Fetch failed: invalid URL %q.", params.URL)}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return &tools.ToolCallResult{Output: fmt.Sprintf("Fetch failed: %v", err)}, nil
	}
	req.Header.Set("User-Agent", "ragdesk/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		slog.Error("Fetching webpage failed", "url", u.String(), "error", err)
		return &tools.ToolCallResult{Output: fmt.Sprintf("Fetch failed: %v", err)}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &tools.ToolCallResult{Output: fmt.Sprintf("Fetch failed: status %d from %s.", resp.StatusCode, u.Host)}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchBodyLimit))
	if err != nil {
		return &tools.ToolCallResult{Output: fmt.Sprintf("Fetch failed: %v", err)}, nil
	}

	text := strings.TrimSpace(html2text.HTML2Text(string(body)))
	if text == "" {
		return &tools.ToolCallResult{Output: fmt.Sprintf("No readable text found at %s.", u.String())}, nil
	}
	if utf8.RuneCountInString(text) > fetchTextLimit {
		text = string([]rune(text)[:fetchTextLimit]) + "..."
	}

	return &tools.ToolCallResult{Output: text}, nil
}
