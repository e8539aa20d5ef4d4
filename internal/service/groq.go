package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/forgo/negotiator/internal/model"
)

const providerGroq = "groq"

// GroqConfig configures the Groq chat completion client
type GroqConfig struct {
	Keys        []string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Retry       RetryConfig
	HTTPClient  *http.Client
}

// GroqClient calls the OpenAI-compatible Groq chat completions API.
// Keys form an ordered pool: when a key is rejected or rate limited the next
// one is tried before the retry policy applies.
type GroqClient struct {
	httpClient  *http.Client
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	retrier     *Retrier
	breaker     *CircuitBreaker

	mu   sync.RWMutex
	keys []string
}

// NewGroqClient creates a Groq client
func NewGroqClient(cfg GroqConfig) *GroqClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2048
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryConfig()
	}

	c := &GroqClient{
		httpClient:  httpClient,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		retrier:     NewRetrier(providerGroq, retry),
		breaker:     NewCircuitBreaker(5, 30*time.Second),
	}
	c.SetKeys(cfg.Keys)
	return c
}

// SetKeys replaces the key pool. Empty keys are ignored.
func (c *GroqClient) SetKeys(keys []string) {
	pool := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			pool = append(pool, k)
		}
	}
	c.mu.Lock()
	c.keys = pool
	c.mu.Unlock()
}

// Configured reports whether at least one key is set
func (c *GroqClient) Configured() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys) > 0
}

// Breaker exposes the circuit breaker state for status reporting
func (c *GroqClient) Breaker() *CircuitBreaker {
	return c.breaker
}

func (c *GroqClient) keyPool() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.keys...)
}

type chatRequest struct {
	Model          string              `json:"model"`
	Messages       []model.ChatMessage `json:"messages"`
	Temperature    float64             `json:"temperature"`
	MaxTokens      int                 `json:"max_tokens"`
	ResponseFormat *responseFormat     `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message model.ChatMessage `json:"message"`
	} `json:"choices"`
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Chat sends a chat completion and returns the assistant's reply text
func (c *GroqClient) Chat(ctx context.Context, messages []model.ChatMessage, opts model.ChatOptions) (string, error) {
	keys := c.keyPool()
	if len(keys) == 0 {
		return "", fmt.Errorf("%s: %w", providerGroq, ErrProviderNotConfigured)
	}

	req := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if opts.JSONMode {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var reply string
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		return c.breaker.Call(func() error {
			out, err := c.withFailover(ctx, keys, req)
			if err == nil {
				reply = out
			}
			return err
		})
	})
	return reply, err
}

// ChatJSON sends a chat completion and decodes the reply as JSON into v.
// Markdown code fences around the JSON are removed first.
func (c *GroqClient) ChatJSON(ctx context.Context, messages []model.ChatMessage, opts model.ChatOptions, v any) error {
	reply, err := c.Chat(ctx, messages, opts)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(StripCodeFences(reply)), v); err != nil {
		return fmt.Errorf("decoding %s reply: %w", providerGroq, err)
	}
	return nil
}

// Prompt sends a single user message
func (c *GroqClient) Prompt(ctx context.Context, prompt string, opts model.ChatOptions) (string, error) {
	return c.Chat(ctx, []model.ChatMessage{{Role: model.RoleUser, Content: prompt}}, opts)
}

func (c *GroqClient) withFailover(ctx context.Context, keys []string, req chatRequest) (string, error) {
	var lastErr error
	for i, key := range keys {
		reply, err := c.complete(ctx, key, req)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if !IsKeyRejected(err) || i == len(keys)-1 {
			return "", err
		}
		slog.Warn("groq key rejected, trying fallback key",
			slog.Int("key_index", i),
			slog.String("error", err.Error()),
		)
	}
	return "", lastErr
}

func (c *GroqClient) complete(ctx context.Context, key string, body chatRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &UpstreamError{Provider: providerGroq, Message: "request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", &UpstreamError{Provider: providerGroq, Message: "reading response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		msg := http.StatusText(resp.StatusCode)
		var apiErr apiErrorBody
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return "", &UpstreamError{Provider: providerGroq, StatusCode: resp.StatusCode, Message: msg}
	}

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", &UpstreamError{Provider: providerGroq, Message: "invalid response body", Err: err}
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%s: %w", providerGroq, ErrNoLLMResponse)
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

// StripCodeFences removes a surrounding ```json or ``` Markdown fence
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "```json"):
		s = strings.TrimPrefix(s, "```json")
	case strings.HasPrefix(s, "```"):
		s = strings.TrimPrefix(s, "```")
	default:
		return s
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
