package server

import (
	"compress/gzip"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgo/negotiator/internal/config"
	"github.com/forgo/negotiator/internal/model"
	"github.com/forgo/negotiator/internal/testing/helpers"
)

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	s, err := New(context.Background(), cfg, Options{
		Version: "test",
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level string
		min   slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := NewLogger(io.Discard, tt.level)
			assert.True(t, logger.Enabled(context.Background(), tt.min))
			assert.False(t, logger.Enabled(context.Background(), tt.min-1))
		})
	}
}

func TestOpenDatabase_UnknownBackend(t *testing.T) {
	cfg := helpers.TestConfig(t)
	cfg.Checkpoint.Backend = "postgres"

	_, err := OpenDatabase(context.Background(), cfg)
	assert.ErrorContains(t, err, `unknown checkpoint backend "postgres"`)
}

func TestProviderKeys(t *testing.T) {
	cfg := helpers.TestConfig(t)
	cfg.LLM.APIKey = "gsk_1"
	cfg.LLM.APIKey2 = "gsk_2"
	cfg.Search.APIKey = "serp"
	cfg.Reviews.TavilyAPIKey = "tvly"

	got := ProviderKeys(cfg)
	assert.Equal(t, []string{"gsk_1", "gsk_2"}, got.Groq)
	assert.Equal(t, "serp", got.SerpStack)
	assert.Empty(t, got.WebScraping)
	assert.Equal(t, "tvly", got.Tavily)
}

// ============================================================================
// Routes
// ============================================================================

func TestServer_Routes(t *testing.T) {
	s := newTestServer(t, helpers.TestConfig(t))
	h := s.Handler()

	t.Run("health", func(t *testing.T) {
		resp := helpers.NewRequest(t, http.MethodGet, "/health").Do(h)
		helpers.AssertStatus(t, resp, http.StatusOK)
		assert.JSONEq(t, `{"status":"ok"}`, resp.Body.String())
		assert.NotEmpty(t, resp.Header().Get("X-Request-ID"))
	})

	t.Run("entry page", func(t *testing.T) {
		resp := helpers.NewRequest(t, http.MethodGet, "/").Do(h)
		helpers.AssertStatus(t, resp, http.StatusOK)
		assert.Contains(t, resp.Body.String(), `name="api-base-url"`)
	})

	t.Run("config.json", func(t *testing.T) {
		resp := helpers.NewRequest(t, http.MethodGet, "/config.json").Do(h)
		helpers.AssertStatus(t, resp, http.StatusOK)

		var fc model.FrontendConfig
		helpers.DecodeResponse(t, resp, &fc)
		assert.Equal(t, "https://negotiator.onrender.com", fc.APIBaseURL)
	})

	t.Run("empty thread list", func(t *testing.T) {
		resp := helpers.NewRequest(t, http.MethodGet, "/v1/threads").Do(h)
		helpers.AssertStatus(t, resp, http.StatusOK)

		var threads []model.Thread
		helpers.DecodeData(t, resp, &threads)
		assert.Empty(t, threads)
	})

	t.Run("unknown thread", func(t *testing.T) {
		resp := helpers.NewRequest(t, http.MethodGet, "/v1/threads/missing").Do(h)
		helpers.AssertProblemDetails(t, resp, http.StatusNotFound, model.ErrCodeNotFound)
	})

	t.Run("cors preflight", func(t *testing.T) {
		resp := helpers.NewRequest(t, http.MethodOptions, "/v1/search").
			WithHeader("Origin", "http://localhost:5500").
			WithHeader("Access-Control-Request-Method", http.MethodPost).
			Do(h)
		helpers.AssertStatus(t, resp, http.StatusNoContent)
		assert.Equal(t, "http://localhost:5500", resp.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestServer_IdempotentReplay_HeadersMatchCurrentRequest(t *testing.T) {
	s := newTestServer(t, helpers.TestConfig(t))
	h := s.Handler()

	send := func(gzipped bool) *httptest.ResponseRecorder {
		rb := helpers.NewRequest(t, http.MethodPost, "/v1/threads/missing/approve").
			WithBody(model.ApprovalRequest{Approved: helpers.BoolPtr(true)}).
			WithIdempotencyKey("approve-once").
			WithHeader("Origin", "http://localhost:5500")
		if gzipped {
			rb = rb.WithHeader("Accept-Encoding", "gzip")
		}
		return rb.Do(h)
	}

	first := send(true)
	helpers.AssertStatus(t, first, http.StatusNotFound)
	require.Equal(t, "gzip", first.Header().Get("Content-Encoding"))
	zr, err := gzip.NewReader(first.Body)
	require.NoError(t, err)
	firstBody, err := io.ReadAll(zr)
	require.NoError(t, err)

	second := send(false)
	helpers.AssertStatus(t, second, http.StatusNotFound)

	hdr := second.Header()
	assert.Equal(t, "true", hdr.Get("X-Idempotency-Replayed"))
	assert.Empty(t, hdr.Values("Content-Encoding"))
	assert.Len(t, hdr.Values("Access-Control-Allow-Origin"), 1)
	assert.Len(t, hdr.Values("X-RateLimit-Remaining"), 1)
	assert.Len(t, hdr.Values("Content-Type"), 1)
	require.Len(t, hdr.Values("X-Request-ID"), 1)
	assert.NotEqual(t, first.Header().Get("X-Request-ID"), hdr.Get("X-Request-ID"))
	assert.NotEqual(t, first.Header().Get("X-RateLimit-Remaining"), hdr.Get("X-RateLimit-Remaining"))
	assert.Equal(t, string(firstBody), second.Body.String())
}

func TestServer_ReconfigureUpdatesStatus(t *testing.T) {
	s := newTestServer(t, helpers.TestConfig(t))

	next := helpers.TestConfig(t)
	next.LLM.APIKey = "gsk_new"
	next.Search.APIKey = "serp_new"
	s.Reconfigure(next)

	resp := helpers.NewRequest(t, http.MethodGet, "/v1/status").Do(s.Handler())
	helpers.AssertStatus(t, resp, http.StatusOK)

	var status model.StatusResponse
	helpers.DecodeData(t, resp, &status)
	assert.Equal(t, "ok", status.Status)

	want := next.ProviderStatus()
	if diff := cmp.Diff(want, status.Providers); diff != "" {
		t.Errorf("providers mismatch (-want +got):\n%s", diff)
	}
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestServer_RunAndShutdown(t *testing.T) {
	s := newTestServer(t, helpers.TestConfig(t))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, ln) }()

	client := &http.Client{Timeout: 2 * time.Second}
	require.Eventually(t, func() bool {
		resp, err := client.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	client.CloseIdleConnections()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_CloseTwice(t *testing.T) {
	s, err := New(context.Background(), helpers.TestConfig(t), Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, err)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}
