// Package search discovers candidate spec URLs for equipment models.
package search

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/orefield/specharvest/internal/specs"
)

// Config controls the search client.
type Config struct {
	Endpoint   string
	APIKey     string
	MaxResults int
	Timeout    time.Duration
	Blocked    []string
}

// Client implements specs.SearchClient against a JSON search API.
type Client struct {
	http       *resty.Client
	maxResults int
	blocklist  *Blocklist
	logger     *zap.Logger
}

type apiResponse struct {
	Results []apiResult `json:"results"`
}

type apiResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// New creates a Client. The API key, when set, is sent as a bearer token.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	http := resty.New().
		SetBaseURL(cfg.Endpoint).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	if cfg.APIKey != "" {
		http.SetAuthToken(cfg.APIKey)
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 20
	}
	return &Client{
		http:       http,
		maxResults: maxResults,
		blocklist:  NewBlocklist(cfg.Blocked),
		logger:     logger,
	}
}

// Search runs the query set for one (brand, model) pair and returns
// deduplicated, blocklist-filtered results. English and Spanish queries
// both run; OEM spec sheets for Latin American markets are frequently
// published only in Spanish.
func (c *Client) Search(ctx context.Context, brand, model, equipmentClass string) ([]specs.SearchResult, error) {
	queries := buildQueries(brand, model, equipmentClass)

	seen := make(map[string]struct{})
	var results []specs.SearchResult
	for _, query := range queries {
		page, err := c.searchOne(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("search %q: %w", query, err)
		}
		for _, r := range page {
			link := strings.TrimSpace(r.Link)
			if link == "" {
				continue
			}
			if _, dup := seen[link]; dup {
				continue
			}
			seen[link] = struct{}{}
			if host := hostOf(link); c.blocklist.IsBlocked(host) {
				c.logger.Debug("search result blocked", zap.String("url", link))
				continue
			}
			results = append(results, specs.SearchResult{
				Brand:   brand,
				Model:   model,
				Title:   r.Title,
				URL:     link,
				Snippet: r.Snippet,
				Query:   query,
			})
			if len(results) >= c.maxResults {
				return results, nil
			}
		}
	}
	return results, nil
}

func (c *Client) searchOne(ctx context.Context, query string) ([]apiResult, error) {
	var body apiResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		SetResult(&body).
		Get("/search")
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("search request: status %d", resp.StatusCode())
	}
	return body.Results, nil
}

func buildQueries(brand, model, equipmentClass string) []string {
	machine := strings.TrimSpace(brand + " " + model)
	queries := []string{
		machine + " specifications",
		machine + " spec sheet pdf",
		machine + " especificaciones tecnicas",
	}
	if strings.EqualFold(equipmentClass, "haul_truck") {
		queries = append(queries, machine+" rimpull curve")
	}
	return queries
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
