// Package websearch implements the external web_search tool collaborator.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/yanqian/ai-helloworld/internal/domain/coursesage"
)

// Client calls a Tavily-compatible search API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New constructs a websearch Client.
func New(apiKey, baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://api.tavily.com"
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 20 * time.Second},
		logger:     logger.With("component", "web_search"),
	}
}

type searchRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type searchResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search implements coursesage.WebSearch.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]coursesage.WebResult, error) {
	payload, err := json.Marshal(searchRequest{APIKey: c.apiKey, Query: query, MaxResults: maxResults})
	if err != nil {
		return nil, coursesage.WrapInput("failed to encode web search request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", strings.NewReader(string(payload)))
	if err != nil {
		return nil, coursesage.WrapInput("failed to build web search request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, coursesage.WrapTransient("web search request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, coursesage.WrapTransient(fmt.Sprintf("web search failed: status=%d body=%s", resp.StatusCode, body), nil)
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, coursesage.WrapFatalExternal("failed to decode web search response", err)
	}

	results := make([]coursesage.WebResult, len(out.Results))
	for i, r := range out.Results {
		results[i] = coursesage.WebResult{Title: r.Title, URL: r.URL, Content: r.Content, Score: r.Score}
	}
	return results, nil
}

var _ coursesage.WebSearch = (*Client)(nil)

// Disabled is a no-op WebSearch used when no API key is configured.
type Disabled struct{}

// Search implements coursesage.WebSearch.
func (Disabled) Search(context.Context, string, int) ([]coursesage.WebResult, error) {
	return nil, coursesage.WrapFatalExternal("web search is not configured", nil)
}
