package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/studyloop-core/server/internal/agent/model"
)

// Result is one web search hit.
type Result struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Client talks to the optional web search endpoint. An unconfigured client
// is a valid state: callers check Configured and degrade to a placeholder.
type Client struct {
	endpoint   string
	maxResults int
	http       *http.Client
}

func NewClient(cfg model.WebSearchConfig) *Client {
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 3
	}
	return &Client{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		maxResults: maxResults,
		http:       &http.Client{Timeout: cfg.Timeout},
	}
}

// Configured reports whether a search endpoint was provided.
func (c *Client) Configured() bool {
	return c.endpoint != ""
}

// Search issues GET {endpoint}/search?q=...&format=json and returns at most
// the configured number of results.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	u := fmt.Sprintf("%s/search?q=%s&format=json", c.endpoint, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("web search status %d", resp.StatusCode)
	}

	var body struct {
		Results []Result `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	if len(body.Results) > c.maxResults {
		body.Results = body.Results[:c.maxResults]
	}
	return body.Results, nil
}
