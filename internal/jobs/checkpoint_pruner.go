package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ThreadPruner deletes threads whose last update is older than a cutoff
type ThreadPruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// CheckpointPrunerConfig holds checkpoint pruner settings
type CheckpointPrunerConfig struct {
	Store     ThreadPruner
	Retention time.Duration // Threads idle longer than this are deleted (default 7 days)
	Interval  time.Duration // How often to prune (default 1 hour)
	// InitialDelay lets the server settle before the first pass (default 5s)
	InitialDelay time.Duration
	Logger       *slog.Logger
}

// CheckpointPruner periodically removes old threads and their checkpoints
// so the checkpoint store does not grow without bound
type CheckpointPruner struct {
	store        ThreadPruner
	retention    time.Duration
	interval     time.Duration
	initialDelay time.Duration
	logger       *slog.Logger
	now          func() time.Time

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewCheckpointPruner creates a new checkpoint pruner job
func NewCheckpointPruner(cfg CheckpointPrunerConfig) *CheckpointPruner {
	if cfg.Retention == 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
	if cfg.InitialDelay == 0 {
		cfg.InitialDelay = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CheckpointPruner{
		store:        cfg.Store,
		retention:    cfg.Retention,
		interval:     cfg.Interval,
		initialDelay: cfg.InitialDelay,
		logger:       cfg.Logger.With(slog.String("job", "checkpoint_pruner")),
		now:          time.Now,
		stopCh:       make(chan struct{}),
	}
}

// Start begins the pruner job
func (p *CheckpointPruner) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run()
	p.logger.Info("checkpoint pruner started",
		slog.Duration("interval", p.interval),
		slog.Duration("retention", p.retention),
	)
}

// Stop gracefully stops the pruner job. A pruner cannot be restarted.
func (p *CheckpointPruner) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()
	p.logger.Info("checkpoint pruner stopped")
}

func (p *CheckpointPruner) run() {
	defer p.wg.Done()

	select {
	case <-time.After(p.initialDelay):
		p.prune()
	case <-p.stopCh:
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.prune()
		case <-p.stopCh:
			return
		}
	}
}

func (p *CheckpointPruner) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if _, err := p.RunOnce(ctx); err != nil {
		p.logger.Error("pruning checkpoints failed", slog.String("error", err.Error()))
	}
}

// RunOnce deletes threads idle longer than the retention period and returns
// how many were removed
func (p *CheckpointPruner) RunOnce(ctx context.Context) (int, error) {
	cutoff := p.now().Add(-p.retention)
	n, err := p.store.PruneBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.logger.Info("pruned threads", slog.Int("count", n), slog.Time("cutoff", cutoff))
	}
	return n, nil
}

// IsRunning returns whether the pruner is running
func (p *CheckpointPruner) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
