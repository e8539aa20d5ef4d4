package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgo/negotiator/internal/testing/helpers"
)

func newTestSerpStack(t *testing.T, srvURL string, cache *ResultCache) *SerpStackClient {
	t.Helper()
	return NewSerpStackClient(SerpStackConfig{
		APIKey: "serp-key",
		URL:    srvURL,
		Cache:  cache,
		Retry:  fastRetry(),
	})
}

func serveJSON(t *testing.T, body string, seen *url.Values, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		if seen != nil {
			*seen = r.URL.Query()
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSerpStack_SearchPlaces_LocalResults(t *testing.T) {
	body := helpers.SerpLocalResults(
		map[string]interface{}{"title": "Iron Temple", "address": "12 MG Road", "rating": 4.7, "reviews": "1,204", "type": "Gym"},
		map[string]interface{}{"title": "Flex Studio", "address": "Indiranagar · 080 41234 56789", "rating": "4.2"},
		map[string]interface{}{"title": "Budget Fit", "type": "Gym · 91234 56789"},
	)
	body["related_places"] = []map[string]interface{}{
		{"title": " IRON TEMPLE ", "places": "Gym · +91 98765 43210"},
	}
	srv := helpers.FakeSerpStack(t, body)

	places, err := newTestSerpStack(t, srv.URL, nil).SearchPlaces(context.Background(), "Bangalore", "gym", "")
	require.NoError(t, err)
	require.Len(t, places, 3)

	assert.Equal(t, "Iron Temple", places[0].Name)
	assert.Equal(t, "+91 98765 43210", places[0].Phone)
	require.NotNil(t, places[0].Rating)
	assert.Equal(t, 4.7, *places[0].Rating)
	assert.Equal(t, 1204, places[0].ReviewsCount)
	assert.Equal(t, "gym", places[0].Type)

	assert.Equal(t, "41234 56789", places[1].Phone)
	require.NotNil(t, places[1].Rating)
	assert.Equal(t, 4.2, *places[1].Rating)

	assert.Equal(t, "91234 56789", places[2].Phone)
	assert.Nil(t, places[2].Rating)
}

func TestSerpStack_SearchPlaces_RequestParameters(t *testing.T) {
	var seen url.Values
	srv := serveJSON(t, `{"request":{"success":true},"local_results":[{"title":"A"}]}`, &seen, nil)
	client := newTestSerpStack(t, srv.URL, nil)

	_, err := client.SearchPlaces(context.Background(), "Pune", "yoga studio", "")
	require.NoError(t, err)
	assert.Equal(t, "serp-key", seen.Get("access_key"))
	assert.Equal(t, "yoga studio in Pune", seen.Get("query"))
	assert.Equal(t, "web", seen.Get("type"))
	assert.Equal(t, "20", seen.Get("num"))
	assert.Equal(t, "google.co.in", seen.Get("google_domain"))
	assert.Equal(t, "in", seen.Get("gl"))
	assert.Equal(t, "en", seen.Get("hl"))

	_, err = client.SearchPlaces(context.Background(), "Pune", "yoga studio", "  best yoga near FC Road ")
	require.NoError(t, err)
	assert.Equal(t, "best yoga near FC Road", seen.Get("query"))
}

func TestSerpStack_SearchPlaces_RelatedPlacesFallback(t *testing.T) {
	resp := map[string]interface{}{
		"request": map[string]interface{}{"success": true},
		"related_places": []map[string]string{
			{"title": "Core Gym", "places": "4.6(320) · Gym business · 5 FC Road Open ⋅ Closes 10 pm · 98765 43210"},
		},
	}
	data, _ := json.Marshal(resp)
	srv := serveJSON(t, string(data), nil, nil)

	places, err := newTestSerpStack(t, srv.URL, nil).SearchPlaces(context.Background(), "Pune", "gym", "")
	require.NoError(t, err)
	require.Len(t, places, 1)

	p := places[0]
	assert.Equal(t, "Core Gym", p.Name)
	assert.Equal(t, "5 FC Road", p.Address)
	assert.Equal(t, "98765 43210", p.Phone)
	require.NotNil(t, p.Rating)
	assert.Equal(t, 4.6, *p.Rating)
	assert.Equal(t, 320, p.ReviewsCount)
}

func TestSerpStack_SearchPlaces_OrganicFallback(t *testing.T) {
	snippet := strings.Repeat("x", 150)
	srv := serveJSON(t, `{"local_results":[],"organic_results":[
		{"title":"Top 10 gyms","url":"https://example.com/a","snippet":"`+snippet+`"},
		{"url":"https://example.com/b","snippet":"short"}]}`, nil, nil)

	places, err := newTestSerpStack(t, srv.URL, nil).SearchPlaces(context.Background(), "Pune", "gym", "")
	require.NoError(t, err)
	require.Len(t, places, 2)

	assert.Equal(t, "Top 10 gyms", places[0].Name)
	assert.Len(t, places[0].Address, 100)
	assert.Equal(t, "https://example.com/a", places[0].URL)
	assert.Equal(t, 1, places[0].Position)
	assert.Equal(t, "Unknown", places[1].Name)
	assert.Equal(t, 2, places[1].Position)
}

func TestSerpStack_SearchPlaces_NoResultsPlaceholder(t *testing.T) {
	srv := serveJSON(t, `{"request":{"success":true}}`, nil, nil)

	places, err := newTestSerpStack(t, srv.URL, nil).SearchPlaces(context.Background(), "Pune", "gym", "")
	require.NoError(t, err)
	require.Len(t, places, 1)
	assert.True(t, places[0].IsPlaceholder())
	assert.False(t, places[0].IsReal())
	assert.Equal(t, "Try searching for 'gym in Pune' manually", places[0].Address)
}

func TestSerpStack_SearchPlaces_APIError(t *testing.T) {
	srv := serveJSON(t, `{"request":{"success":false},"error":{"code":101,"type":"invalid_access_key","info":"You have not supplied a valid API Access Key."}}`, nil, nil)

	_, err := newTestSerpStack(t, srv.URL, nil).SearchPlaces(context.Background(), "Pune", "gym", "")

	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, providerSerpStack, upErr.Provider)
	assert.Contains(t, upErr.Message, "You have not supplied a valid API Access Key.")
}

func TestSerpStack_SearchPlaces_NotConfigured(t *testing.T) {
	client := NewSerpStackClient(SerpStackConfig{URL: "http://127.0.0.1:1"})

	assert.False(t, client.Configured())
	_, err := client.SearchPlaces(context.Background(), "Pune", "gym", "")
	assert.ErrorIs(t, err, ErrProviderNotConfigured)

	client.SetAPIKey("now-set")
	assert.True(t, client.Configured())
}

func TestSerpStack_SearchPlaces_UsesCache(t *testing.T) {
	cache := NewResultCache(time.Minute, 16)
	defer cache.Stop()

	var calls atomic.Int32
	srv := serveJSON(t, `{"local_results":[{"title":"Iron Temple"}]}`, nil, &calls)
	client := newTestSerpStack(t, srv.URL, cache)

	first, err := client.SearchPlaces(context.Background(), "Pune", "Gym", "")
	require.NoError(t, err)
	first[0].Name = "mutated by caller"

	second, err := client.SearchPlaces(context.Background(), "PUNE", "GYM", "")
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "Iron Temple", second[0].Name)
}

func TestRedactURLError_DropsAccessKey(t *testing.T) {
	client := NewSerpStackClient(SerpStackConfig{APIKey: "secret-key", URL: "http://127.0.0.1:1/search", Retry: RetryConfig{MaxAttempts: 1}})

	_, err := client.SearchPlaces(context.Background(), "Pune", "gym", "")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-key")
}

func TestRawNumber(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{raw: `4.5`, want: 4.5, ok: true},
		{raw: `"1,204"`, want: 1204, ok: true},
		{raw: `"n/a"`, ok: false},
		{raw: ``, ok: false},
	}
	for _, tt := range tests {
		got, ok := rawNumber(json.RawMessage(tt.raw))
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestParsePlaces_PrefersLocalResults(t *testing.T) {
	data := &serpResponse{
		LocalResults:   []serpLocalResult{{Title: "Local"}},
		RelatedPlaces:  []serpRelatedPlace{{Title: "Related"}},
		OrganicResults: []serpOrganicResult{{Title: "Organic"}},
	}

	places := parsePlaces(data, "gym")
	require.Len(t, places, 1)
	assert.Equal(t, "Local", places[0].Name)
}
