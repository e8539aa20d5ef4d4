package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/forgo/negotiator/internal/model"
)

const providerTavily = "tavily"

// TavilyConfig configures the Tavily review search client
type TavilyConfig struct {
	APIKey     string
	URL        string
	Timeout    time.Duration
	Cache      *ResultCache
	HTTPClient *http.Client
}

// TavilyClient searches the web for reviews and ratings of a place
type TavilyClient struct {
	httpClient *http.Client
	url        string
	cache      *ResultCache
	keys       *keyHolder
}

// NewTavilyClient creates a Tavily client
func NewTavilyClient(cfg TavilyConfig) *TavilyClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &TavilyClient{
		httpClient: httpClient,
		url:        cfg.URL,
		cache:      cfg.Cache,
		keys:       newKeyHolder(cfg.APIKey),
	}
}

// SetAPIKey replaces the API key
func (c *TavilyClient) SetAPIKey(key string) { c.keys.set(key) }

// Configured reports whether an API key is set
func (c *TavilyClient) Configured() bool { return c.keys.get() != "" }

type tavilyRequest struct {
	APIKey            string `json:"api_key"`
	Query             string `json:"query"`
	MaxResults        int    `json:"max_results"`
	SearchDepth       string `json:"search_depth"`
	IncludeAnswer     bool   `json:"include_answer"`
	IncludeRawContent bool   `json:"include_raw_content"`
}

type tavilyResponse struct {
	Answer  string                     `json:"answer"`
	Results []model.ReviewSearchResult `json:"results"`
}

// SearchReviews never fails: an unconfigured client yields a "fallback"
// result and provider failures yield an "error" result.
func (c *TavilyClient) SearchReviews(ctx context.Context, placeName, city string) model.ReviewSearch {
	key := c.keys.get()
	if key == "" {
		return model.ReviewSearch{
			Source:  "fallback",
			Message: "Tavily API not configured, using basic analysis",
		}
	}

	query := fmt.Sprintf("%s %s reviews ratings customer feedback", placeName, city)
	cacheKey := CacheKey("tavily", query)
	if v, ok := c.cache.Get(cacheKey); ok {
		if rs, ok := v.(model.ReviewSearch); ok {
			return rs
		}
	}

	out, err := c.search(ctx, key, query)
	if err != nil {
		return model.ReviewSearch{Source: "error", PlaceName: placeName, Error: err.Error()}
	}

	rs := model.ReviewSearch{
		Source:    "tavily",
		PlaceName: placeName,
		Answer:    out.Answer,
		Results:   out.Results,
		Summary:   "Review data fetched successfully",
	}
	c.cache.Set(cacheKey, rs)
	return rs
}

func (c *TavilyClient) search(ctx context.Context, key, query string) (*tavilyResponse, error) {
	payload, err := json.Marshal(tavilyRequest{
		APIKey:            key,
		Query:             query,
		MaxResults:        5,
		SearchDepth:       "advanced",
		IncludeAnswer:     true,
		IncludeRawContent: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Provider: providerTavily, Message: "request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &UpstreamError{Provider: providerTavily, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var out tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &UpstreamError{Provider: providerTavily, Message: "invalid response body", Err: err}
	}
	return &out, nil
}
