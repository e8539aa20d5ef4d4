package jobs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// KeepAliveConfig holds keep-alive settings
type KeepAliveConfig struct {
	// PublicURL is the service's own public address; /health is appended
	PublicURL string
	// Interval between pings. Zero disables the job.
	Interval time.Duration
	Timeout  time.Duration // Per-ping timeout (default 10s)
	Client   *http.Client
	Logger   *slog.Logger
}

// KeepAlive pings the service's public health endpoint on an interval.
// Free hosting tiers spin a service down after a quiet period; the next
// visitor then waits for a cold start. Regular pings keep it warm.
type KeepAlive struct {
	url      string
	interval time.Duration
	timeout  time.Duration
	client   *http.Client
	logger   *slog.Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewKeepAlive creates a new keep-alive job
func NewKeepAlive(cfg KeepAliveConfig) *KeepAlive {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	url := ""
	if base := strings.TrimRight(cfg.PublicURL, "/"); base != "" {
		url = base + "/health"
	}

	return &KeepAlive{
		url:      url,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		client:   cfg.Client,
		logger:   cfg.Logger.With(slog.String("job", "keepalive")),
		stopCh:   make(chan struct{}),
	}
}

// Enabled reports whether the job has both a URL and an interval
func (k *KeepAlive) Enabled() bool {
	return k.url != "" && k.interval > 0
}

// Start begins pinging. It does nothing when the job is not enabled.
func (k *KeepAlive) Start() {
	if !k.Enabled() {
		return
	}

	k.mu.Lock()
	if k.running {
		k.mu.Unlock()
		return
	}
	k.running = true
	k.mu.Unlock()

	k.wg.Add(1)
	go k.run()
	k.logger.Info("keep-alive started", slog.String("url", k.url), slog.Duration("interval", k.interval))
}

// Stop gracefully stops the keep-alive job
func (k *KeepAlive) Stop() {
	k.mu.Lock()
	if !k.running {
		k.mu.Unlock()
		return
	}
	k.running = false
	k.mu.Unlock()

	close(k.stopCh)
	k.wg.Wait()
	k.logger.Info("keep-alive stopped")
}

func (k *KeepAlive) run() {
	defer k.wg.Done()

	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
			if err := k.RunOnce(ctx); err != nil {
				k.logger.Warn("keep-alive ping failed", slog.String("error", err.Error()))
			}
			cancel()
		case <-k.stopCh:
			return
		}
	}
}

// RunOnce sends a single ping
func (k *KeepAlive) RunOnce(ctx context.Context) error {
	if k.url == "" {
		return fmt.Errorf("keep-alive: no public URL configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return fmt.Errorf("keep-alive: build request: %w", err)
	}
	req.Header.Set("User-Agent", "negotiator-keepalive")

	resp, err := k.client.Do(req)
	if err != nil {
		return fmt.Errorf("keep-alive: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("keep-alive: %s returned %d", k.url, resp.StatusCode)
	}
	k.logger.Debug("keep-alive ping", slog.Int("status", resp.StatusCode))
	return nil
}

// IsRunning returns whether the job is running
func (k *KeepAlive) IsRunning() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.running
}
