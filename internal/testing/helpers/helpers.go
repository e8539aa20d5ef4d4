package helpers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/forgo/negotiator/internal/config"
	"github.com/forgo/negotiator/internal/database"
	"github.com/forgo/negotiator/internal/model"
)

// ============================================================================
// HTTP Request Helpers
// ============================================================================

// RequestBuilder helps construct HTTP requests for testing
type RequestBuilder struct {
	t       *testing.T
	method  string
	path    string
	body    interface{}
	headers map[string]string
}

// NewRequest creates a new request builder
func NewRequest(t *testing.T, method, path string) *RequestBuilder {
	t.Helper()
	return &RequestBuilder{
		t:       t,
		method:  method,
		path:    path,
		headers: make(map[string]string),
	}
}

// WithBody sets the request body (will be JSON encoded)
func (rb *RequestBuilder) WithBody(body interface{}) *RequestBuilder {
	rb.body = body
	return rb
}

// WithHeader adds a header to the request
func (rb *RequestBuilder) WithHeader(key, value string) *RequestBuilder {
	rb.headers[key] = value
	return rb
}

// WithIdempotencyKey sets the Idempotency-Key header
func (rb *RequestBuilder) WithIdempotencyKey(key string) *RequestBuilder {
	return rb.WithHeader("Idempotency-Key", key)
}

// Build creates the HTTP request
func (rb *RequestBuilder) Build() *http.Request {
	rb.t.Helper()

	var bodyReader io.Reader
	if rb.body != nil {
		bodyBytes, err := json.Marshal(rb.body)
		if err != nil {
			rb.t.Fatalf("helpers: failed to marshal body: %v", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req := httptest.NewRequest(rb.method, rb.path, bodyReader)
	if rb.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range rb.headers {
		req.Header.Set(k, v)
	}
	return req
}

// Do builds the request and serves it with h
func (rb *RequestBuilder) Do(h http.Handler) *httptest.ResponseRecorder {
	rb.t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, rb.Build())
	return rec
}

// ============================================================================
// Response Assertion Helpers
// ============================================================================

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, resp *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if resp.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, resp.Code, resp.Body.String())
	}
}

// AssertProblemDetails validates an RFC 9457 Problem Details error response
func AssertProblemDetails(t *testing.T, resp *httptest.ResponseRecorder, expectedStatus int, expectedCode model.ErrorCode) {
	t.Helper()

	AssertStatus(t, resp, expectedStatus)

	if ct := resp.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/problem+json") {
		t.Errorf("expected problem+json content type, got %q", ct)
	}

	var problem model.ProblemDetails
	bodyBytes := resp.Body.Bytes()
	if err := json.Unmarshal(bodyBytes, &problem); err != nil {
		t.Fatalf("failed to decode problem details: %v. Body: %s", err, string(bodyBytes))
	}

	if problem.Status != expectedStatus {
		t.Errorf("expected problem.status %d, got %d", expectedStatus, problem.Status)
	}

	if expectedCode != 0 && problem.Code != expectedCode {
		t.Errorf("expected problem.code %d, got %d", expectedCode, problem.Code)
	}
}

// AssertValidationError checks for a validation error on a specific field
func AssertValidationError(t *testing.T, resp *httptest.ResponseRecorder, field string) {
	t.Helper()

	AssertStatus(t, resp, http.StatusUnprocessableEntity)

	var problem model.ProblemDetails
	if err := json.Unmarshal(resp.Body.Bytes(), &problem); err != nil {
		t.Fatalf("failed to decode problem details: %v", err)
	}

	for _, fe := range problem.Errors {
		if fe.Field == field {
			return
		}
	}

	t.Errorf("expected validation error on field %q, but not found. Errors: %+v", field, problem.Errors)
}

// DecodeResponse decodes the response body into the given struct
func DecodeResponse(t *testing.T, resp *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	bodyBytes := resp.Body.Bytes()
	if err := json.Unmarshal(bodyBytes, v); err != nil {
		t.Fatalf("failed to decode response: %v. Body: %s", err, string(bodyBytes))
	}
}

// DecodeData decodes the "data" field of a standard response into v
func DecodeData(t *testing.T, resp *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	DecodeResponse(t, resp, &envelope)
	if err := json.Unmarshal(envelope.Data, v); err != nil {
		t.Fatalf("failed to decode data: %v. Body: %s", err, resp.Body.String())
	}
}

// ============================================================================
// Database Assertion Helpers
// ============================================================================

// AssertThreadExists checks that a thread row exists
func AssertThreadExists(t *testing.T, db database.Database, threadID string) {
	t.Helper()
	if !threadExists(t, db, threadID) {
		t.Errorf("expected thread %s to exist, but it doesn't", threadID)
	}
}

// AssertThreadNotExists checks that a thread row does not exist
func AssertThreadNotExists(t *testing.T, db database.Database, threadID string) {
	t.Helper()
	if threadExists(t, db, threadID) {
		t.Errorf("expected thread %s to not exist, but it does", threadID)
	}
}

func threadExists(t *testing.T, db database.Database, threadID string) bool {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results, err := db.Query(ctx, "SELECT thread_id FROM thread WHERE thread_id = $thread_id",
		map[string]interface{}{"thread_id": threadID})
	if err != nil {
		t.Fatalf("failed to query for thread: %v", err)
	}
	return hasResults(results)
}

// hasResults checks if a query returned any rows
func hasResults(results []interface{}) bool {
	if len(results) == 0 {
		return false
	}
	resp, ok := results[0].(map[string]interface{})
	if !ok {
		return false
	}
	rows, ok := resp["result"].([]interface{})
	return ok && len(rows) > 0
}

// ============================================================================
// Fake Upstream Servers
// ============================================================================

// ChatReplyFunc picks a chat completion reply for the last user message
type ChatReplyFunc func(prompt string) string

// FakeGroq starts an OpenAI-compatible chat completions server. The returned
// counter reports how many completions were served.
func FakeGroq(t *testing.T, reply ChatReplyFunc) (*httptest.Server, *atomic.Int64) {
	t.Helper()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Messages []model.ChatMessage `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		calls.Add(1)

		prompt := ""
		if n := len(req.Messages); n > 0 {
			prompt = req.Messages[n-1].Content
		}
		writeJSON(w, map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": reply(prompt)}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

// FakeSerpStack starts a server that answers every search with body
func FakeSerpStack(t *testing.T, body map[string]interface{}) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("access_key") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// SerpLocalResults builds a SerpStack response with the given local results
func SerpLocalResults(places ...map[string]interface{}) map[string]interface{} {
	results := make([]interface{}, 0, len(places))
	for _, p := range places {
		results = append(results, p)
	}
	return map[string]interface{}{
		"request":       map[string]interface{}{"success": true},
		"local_results": results,
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// ============================================================================
// Configuration
// ============================================================================

// TestConfig returns a valid test-environment configuration with a private
// SQLite checkpoint file and no frontend directory. Provider URLs point
// nowhere until a test sets them to fake servers.
func TestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Server: config.ServerConfig{
			Host:           "127.0.0.1",
			Port:           "8000",
			Env:            "test",
			LogLevel:       "ERROR",
			ReadTimeout:    5 * time.Second,
			WriteTimeout:   time.Minute,
			AllowedOrigins: []string{"http://localhost:5500"},
			RateLimitRPM:   1000,
		},
		LLM: config.LLMConfig{
			Model:       "llama-3.3-70b-versatile",
			Temperature: 0.7,
			MaxTokens:   512,
			Timeout:     5 * time.Second,
		},
		Search:  config.SearchConfig{CacheTTL: time.Minute},
		Reviews: config.ReviewsConfig{PerPlace: 3, Candidates: 3},
		Agent:   config.AgentConfig{MaxIterations: 2, RecursionLimit: 50, RunTimeout: 30 * time.Second},
		Checkpoint: config.CheckpointConfig{
			Backend:    config.BackendSQLite,
			Path:       filepath.Join(dir, "checkpoints.db"),
			Retention:  time.Hour,
			PruneEvery: time.Hour,
		},
		Frontend: config.FrontendConfig{
			Dir:           filepath.Join(dir, "frontend"),
			LocalAPIURL:   "http://localhost:8000",
			ProductionURL: "https://negotiator.onrender.com",
		},
	}
}

// ============================================================================
// Utility Helpers
// ============================================================================

// Float64Ptr returns a pointer to the float
func Float64Ptr(f float64) *float64 {
	return &f
}

// BoolPtr returns a pointer to the bool
func BoolPtr(b bool) *bool {
	return &b
}
