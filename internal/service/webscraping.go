package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/forgo/negotiator/internal/model"
)

const providerWebScraping = "webscraping_ai"

// maxPageText bounds how much page text is handed to the language model
const maxPageText = 20000

// Chatter is the subset of the LLM client used by the review fetcher and
// shop simulator
type Chatter interface {
	Chat(ctx context.Context, messages []model.ChatMessage, opts model.ChatOptions) (string, error)
}

// ReviewFetcherConfig configures the WebScraping.AI review fetcher
type ReviewFetcherConfig struct {
	APIKey     string
	URL        string
	Timeout    time.Duration
	LLM        Chatter
	Cache      *ResultCache
	HTTPClient *http.Client
}

// ReviewFetcher renders a Google search for a place's reviews through
// WebScraping.AI and asks the language model to pull out the reviews
type ReviewFetcher struct {
	httpClient *http.Client
	url        string
	llm        Chatter
	cache      *ResultCache
	keys       *keyHolder
}

// NewReviewFetcher creates a review fetcher
func NewReviewFetcher(cfg ReviewFetcherConfig) *ReviewFetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &ReviewFetcher{
		httpClient: httpClient,
		url:        cfg.URL,
		llm:        cfg.LLM,
		cache:      cfg.Cache,
		keys:       newKeyHolder(cfg.APIKey),
	}
}

// SetAPIKey replaces the API key
func (f *ReviewFetcher) SetAPIKey(key string) { f.keys.set(key) }

// Configured reports whether an API key is set
func (f *ReviewFetcher) Configured() bool { return f.keys.get() != "" }

// FetchReviews returns up to limit reviews for query (usually "name, address")
func (f *ReviewFetcher) FetchReviews(ctx context.Context, query string, limit int) ([]string, error) {
	key := f.keys.get()
	if key == "" {
		return nil, fmt.Errorf("%s: %w", providerWebScraping, ErrProviderNotConfigured)
	}
	if limit <= 0 {
		limit = 3
	}

	cacheKey := CacheKey("reviews", query, fmt.Sprint(limit))
	if v, ok := f.cache.Get(cacheKey); ok {
		if reviews, ok := v.([]string); ok {
			return append([]string(nil), reviews...), nil
		}
	}

	page, err := f.fetchPage(ctx, key, query)
	if err != nil {
		return nil, err
	}
	text, err := HTMLToText(page)
	if err != nil {
		return nil, &UpstreamError{Provider: providerWebScraping, Message: "unparseable page", Err: err}
	}
	text = truncateRunes(text, maxPageText)

	reviews, err := f.extract(ctx, query, text, limit)
	if err != nil {
		return nil, err
	}

	slog.Info("reviews extracted",
		slog.String("query", query),
		slog.Int("count", len(reviews)),
	)
	f.cache.Set(cacheKey, append([]string(nil), reviews...))
	return reviews, nil
}

func (f *ReviewFetcher) fetchPage(ctx context.Context, key, query string) (string, error) {
	target := "https://www.google.com/search?q=" + url.QueryEscape("reviews for "+query)

	params := url.Values{}
	params.Set("api_key", key)
	params.Set("url", target)
	params.Set("device", "desktop")
	params.Set("proxy", "residential")
	params.Set("js", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", &UpstreamError{Provider: providerWebScraping, Message: "request failed", Err: redactURLError(err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", &UpstreamError{Provider: providerWebScraping, Message: "reading response", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &UpstreamError{
			Provider:   providerWebScraping,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("Error fetching page: %d", resp.StatusCode),
		}
	}
	return string(body), nil
}

func (f *ReviewFetcher) extract(ctx context.Context, query, text string, limit int) ([]string, error) {
	prompt := fmt.Sprintf("Here is the text content of a Google Search page for '%s'. "+
		"Extract the top %d most relevant and detailed user reviews for this place. "+
		"Look for text that looks like user feedback, ratings, or comments. "+
		"Return ONLY a raw JSON list of strings. Example: [\"Great coffee!\", \"Service was slow.\"]. "+
		"If no reviews are found, return [].\n\nPAGE TEXT:\n%s", query, limit, text)

	reply, err := f.llm.Chat(ctx, []model.ChatMessage{{Role: model.RoleUser, Content: prompt}}, model.WithTemperature(0))
	if err != nil {
		return nil, err
	}
	return ParseReviewList(reply, limit), nil
}

// ParseReviewList interprets a model reply as a list of reviews. A JSON list
// is truncated to limit; any other JSON value becomes a single review; text
// that is not JSON is returned as-is.
func ParseReviewList(reply string, limit int) []string {
	content := StripCodeFences(reply)

	var raw interface{}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return []string{content}
	}

	list, ok := raw.([]interface{})
	if !ok {
		return []string{stringify(raw)}
	}

	reviews := make([]string, 0, len(list))
	for _, item := range list {
		reviews = append(reviews, stringify(item))
	}
	if len(reviews) > limit {
		reviews = reviews[:limit]
	}
	return reviews
}

func stringify(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimSpace(string(data))
}
