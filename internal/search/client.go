package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/atelier-lab/archmentor/internal/config"
	"github.com/atelier-lab/archmentor/pkg/models"
)

// Client queries the external project-example search service
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *slog.Logger
}

// New creates a search client. A nil return means search is not configured
// and callers should skip live lookups.
func New(cfg config.SearchConfig, apiKey string, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" || apiKey == "" {
		return nil
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     apiKey,
		logger:     logger.With("component", "search_client"),
	}
}

type searchResponse struct {
	Results []models.Example `json:"results"`
}

// SearchProjects returns up to maxResults example projects for the query
func (c *Client) SearchProjects(ctx context.Context, query string, maxResults int) ([]models.Example, error) {
	if maxResults < 1 {
		maxResults = 3
	}

	endpoint := fmt.Sprintf("%s/search?q=%s&limit=%d",
		c.baseURL, url.QueryEscape(query+" architecture project"), maxResults)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	if len(parsed.Results) > maxResults {
		parsed.Results = parsed.Results[:maxResults]
	}
	c.logger.Debug("Search completed", "query", query, "results", len(parsed.Results))
	return parsed.Results, nil
}
