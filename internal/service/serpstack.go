package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/forgo/negotiator/internal/model"
)

const providerSerpStack = "serpstack"

const maxPlacesPerSource = 10

var (
	phonePattern   = regexp.MustCompile(`(\+91\s*\d{5}\s*\d{5}|\d{5}\s*\d{5})`)
	ratingPattern  = regexp.MustCompile(`(\d+\.\d+)\((\d+)\)`)
	addressPattern = regexp.MustCompile(`business\s*·\s*([^·]+?)(?:Closed|Open)`)
)

// SerpStackConfig configures the places search client
type SerpStackConfig struct {
	APIKey     string
	URL        string
	Timeout    time.Duration
	Cache      *ResultCache
	Retry      RetryConfig
	HTTPClient *http.Client
}

// SerpStackClient finds places through the SerpStack Google search API
type SerpStackClient struct {
	httpClient *http.Client
	url        string
	cache      *ResultCache
	retrier    *Retrier
	keys       *keyHolder
}

// NewSerpStackClient creates a SerpStack client
func NewSerpStackClient(cfg SerpStackConfig) *SerpStackClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryConfig()
	}
	return &SerpStackClient{
		httpClient: httpClient,
		url:        cfg.URL,
		cache:      cfg.Cache,
		retrier:    NewRetrier(providerSerpStack, retry),
		keys:       newKeyHolder(cfg.APIKey),
	}
}

// SetAPIKey replaces the access key
func (c *SerpStackClient) SetAPIKey(key string) { c.keys.set(key) }

// Configured reports whether an access key is set
func (c *SerpStackClient) Configured() bool { return c.keys.get() != "" }

type serpResponse struct {
	Request *struct {
		Success *bool `json:"success"`
	} `json:"request"`
	Error *struct {
		Code int    `json:"code"`
		Type string `json:"type"`
		Info string `json:"info"`
	} `json:"error"`
	LocalResults   []serpLocalResult   `json:"local_results"`
	RelatedPlaces  []serpRelatedPlace  `json:"related_places"`
	OrganicResults []serpOrganicResult `json:"organic_results"`
}

type serpLocalResult struct {
	Title      string          `json:"title"`
	Address    string          `json:"address"`
	Type       string          `json:"type"`
	Rating     json.RawMessage `json:"rating"`
	Reviews    json.RawMessage `json:"reviews"`
	Price      json.RawMessage `json:"price"`
	Extensions json.RawMessage `json:"extensions"`
}

type serpRelatedPlace struct {
	Title  string `json:"title"`
	Places string `json:"places"`
}

type serpOrganicResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchPlaces searches for places of placeType in city. A non-empty query
// is sent verbatim instead of "{placeType} in {city}". When nothing is found
// a single "No results found" placeholder is returned.
func (c *SerpStackClient) SearchPlaces(ctx context.Context, city, placeType, query string) ([]model.Place, error) {
	key := c.keys.get()
	if key == "" {
		return nil, fmt.Errorf("%s: %w", providerSerpStack, ErrProviderNotConfigured)
	}

	searchQuery := strings.TrimSpace(query)
	if searchQuery == "" {
		searchQuery = fmt.Sprintf("%s in %s", placeType, city)
	}

	cacheKey := CacheKey("places", city, placeType, searchQuery)
	if v, ok := c.cache.Get(cacheKey); ok {
		if places, ok := v.([]model.Place); ok {
			return clonePlaces(places), nil
		}
	}

	var data serpResponse
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		return c.fetch(ctx, key, searchQuery, &data)
	})
	if err != nil {
		return nil, err
	}

	if data.Request != nil && data.Request.Success != nil && !*data.Request.Success {
		info := "Unknown error"
		if data.Error != nil && data.Error.Info != "" {
			info = data.Error.Info
		}
		return nil, &UpstreamError{Provider: providerSerpStack, Message: "SerpStack API error: " + info}
	}

	places := parsePlaces(&data, placeType)
	if len(places) == 0 {
		places = []model.Place{{
			Name:    model.NoResultsPlaceName,
			Address: fmt.Sprintf("Try searching for '%s' manually", searchQuery),
			Type:    placeType,
		}}
	}

	slog.Info("places search completed",
		slog.String("query", searchQuery),
		slog.Int("results", len(places)),
	)
	c.cache.Set(cacheKey, clonePlaces(places))
	return places, nil
}

func (c *SerpStackClient) fetch(ctx context.Context, key, searchQuery string, out *serpResponse) error {
	params := url.Values{}
	params.Set("access_key", key)
	params.Set("query", searchQuery)
	params.Set("type", "web")
	params.Set("num", "20")
	params.Set("auto_location", "1")
	params.Set("google_domain", "google.co.in")
	params.Set("gl", "in")
	params.Set("hl", "en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &UpstreamError{Provider: providerSerpStack, Message: "SerpStack API request error", Err: redactURLError(err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &UpstreamError{Provider: providerSerpStack, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	*out = serpResponse{}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &UpstreamError{Provider: providerSerpStack, Message: "invalid response body", Err: err}
	}
	return nil
}

// parsePlaces prefers local_results, then related_places, then organic_results
func parsePlaces(data *serpResponse, placeType string) []model.Place {
	phones := make(map[string]string)
	for _, rp := range data.RelatedPlaces {
		if phone := extractPhone(rp.Places); phone != "" {
			phones[strings.ToLower(strings.TrimSpace(rp.Title))] = phone
		}
	}

	var places []model.Place
	switch {
	case data.LocalResults != nil:
		for _, lr := range limit(data.LocalResults, maxPlacesPerSource) {
			name := lr.Title
			if name == "" {
				name = "Unknown"
			}
			phone := phones[strings.ToLower(strings.TrimSpace(name))]
			if phone == "" {
				phone = extractPhone(lr.Type)
			}
			if phone == "" {
				phone = extractPhone(lr.Address)
			}
			reviews, _ := rawNumber(lr.Reviews)
			places = append(places, model.Place{
				Name:         name,
				Address:      lr.Address,
				Phone:        phone,
				Rating:       rawRating(lr.Rating),
				ReviewsCount: int(reviews),
				PriceLevel:   rawToValue(lr.Price),
				Type:         placeType,
				Extensions:   rawToValue(lr.Extensions),
			})
		}
	case data.RelatedPlaces != nil:
		for _, rp := range limit(data.RelatedPlaces, maxPlacesPerSource) {
			name := rp.Title
			if name == "" {
				name = "Unknown"
			}
			place := model.Place{
				Name:  name,
				Phone: extractPhone(rp.Places),
				Type:  placeType,
			}
			if m := ratingPattern.FindStringSubmatch(rp.Places); m != nil {
				if r, err := strconv.ParseFloat(m[1], 64); err == nil {
					place.Rating = &r
				}
				place.ReviewsCount, _ = strconv.Atoi(m[2])
			}
			if m := addressPattern.FindStringSubmatch(rp.Places); m != nil {
				place.Address = strings.TrimSpace(m[1])
			}
			places = append(places, place)
		}
	}

	if len(places) == 0 {
		for i, or := range limit(data.OrganicResults, maxPlacesPerSource) {
			name := or.Title
			if name == "" {
				name = "Unknown"
			}
			places = append(places, model.Place{
				Name:     name,
				Address:  truncateRunes(or.Snippet, 100),
				Type:     placeType,
				URL:      or.URL,
				Position: i + 1,
			})
		}
	}
	return places
}

func extractPhone(text string) string {
	if text == "" {
		return ""
	}
	return phonePattern.FindString(text)
}

func limit[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}

// rawNumber reads a JSON number or a numeric string such as "1,204"
func rawNumber(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		str = strings.ReplaceAll(strings.TrimSpace(str), ",", "")
		if f, err := strconv.ParseFloat(str, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func rawRating(raw json.RawMessage) *float64 {
	if f, ok := rawNumber(raw); ok {
		return &f
	}
	return nil
}

func rawToValue(raw json.RawMessage) interface{} {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

func clonePlaces(places []model.Place) []model.Place {
	return append([]model.Place(nil), places...)
}

// redactURLError drops the query string, which carries the access key
func redactURLError(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	u, perr := url.Parse(urlErr.URL)
	if perr != nil {
		return err
	}
	u.RawQuery = ""
	return &url.Error{Op: urlErr.Op, URL: u.String(), Err: urlErr.Err}
}
