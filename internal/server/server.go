package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/forgo/negotiator/internal/config"
	"github.com/forgo/negotiator/internal/database"
	"github.com/forgo/negotiator/internal/frontend"
	"github.com/forgo/negotiator/internal/handler"
	"github.com/forgo/negotiator/internal/jobs"
	"github.com/forgo/negotiator/internal/middleware"
	"github.com/forgo/negotiator/internal/model"
	"github.com/forgo/negotiator/internal/repository"
	"github.com/forgo/negotiator/internal/service"
)

// ShutdownTimeout bounds graceful shutdown of in-flight requests
const ShutdownTimeout = 30 * time.Second

// rateLimitExempt paths are hit by monitors and the page bootstrap
var rateLimitExempt = []string{"/health", "/config.json", "/v1/status"}

// Options holds settings that do not come from the environment
type Options struct {
	Version string
	Logger  *slog.Logger
}

// Server is the assembled negotiator API: checkpoint store, provider
// clients, workflow service, HTTP stack and background jobs
type Server struct {
	cfg     atomic.Pointer[config.Config]
	version string
	logger  *slog.Logger

	db          database.Database
	providers   *service.Providers
	negotiator  *service.NegotiatorService
	limiter     *middleware.RateLimiter
	idempotency *middleware.IdempotencyStore
	pruner      *jobs.CheckpointPruner
	keepAlive   *jobs.KeepAlive
	handler     http.Handler

	closeOnce sync.Once
}

// NewLogger builds the JSON slog logger for a LOG_LEVEL value
func NewLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN", "WARNING":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// OpenDatabase connects to the checkpoint backend selected by cfg
func OpenDatabase(ctx context.Context, cfg *config.Config) (database.Database, error) {
	var db database.Database
	switch cfg.Checkpoint.Backend {
	case config.BackendSQLite:
		db = database.NewSQLite(cfg.Checkpoint.Path)
	case config.BackendSurrealDB:
		db = database.NewSurrealDB(database.Config{
			Host:      cfg.Database.Host,
			Port:      cfg.Database.Port,
			User:      cfg.Database.User,
			Password:  cfg.Database.Password,
			Namespace: cfg.Database.Namespace,
			Database:  cfg.Database.Database,
		})
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Checkpoint.Backend)
	}

	if err := db.Connect(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// ProvidersConfig maps configuration onto the provider clients
func ProvidersConfig(cfg *config.Config) service.ProvidersConfig {
	return service.ProvidersConfig{
		Groq: service.GroqConfig{
			Keys:        cfg.LLM.Keys(),
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     cfg.LLM.Timeout,
		},
		SerpStack:   service.SerpStackConfig{APIKey: cfg.Search.APIKey, URL: cfg.Search.URL},
		WebScraping: service.ReviewFetcherConfig{APIKey: cfg.Reviews.WebScrapingAPIKey, URL: cfg.Reviews.WebScrapingURL},
		Tavily:      service.TavilyConfig{APIKey: cfg.Reviews.TavilyAPIKey, URL: cfg.Reviews.TavilyURL},
		CacheTTL:    cfg.Search.CacheTTL,
	}
}

// ProviderKeys extracts the credentials that can change while serving
func ProviderKeys(cfg *config.Config) service.ProviderKeys {
	return service.ProviderKeys{
		Groq:        cfg.LLM.Keys(),
		SerpStack:   cfg.Search.APIKey,
		WebScraping: cfg.Reviews.WebScrapingAPIKey,
		Tavily:      cfg.Reviews.TavilyAPIKey,
	}
}

// New connects to the checkpoint store and assembles every component.
// Background jobs start with Run. Close releases everything New acquired.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	db, err := OpenDatabase(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect checkpoint store: %w", err)
	}
	logger.Info("connected to checkpoint store", slog.String("backend", cfg.Checkpoint.Backend))

	repo := repository.NewCheckpointRepository(db)
	providers := service.NewProviders(ProvidersConfig(cfg))

	negotiator, err := service.NewNegotiatorService(service.NegotiatorServiceConfig{
		Tools:            providers.Toolset(),
		Store:            repo,
		MaxIterations:    cfg.Agent.MaxIterations,
		RecursionLimit:   cfg.Agent.RecursionLimit,
		ReviewsPerPlace:  cfg.Reviews.PerPlace,
		ReviewCandidates: cfg.Reviews.Candidates,
		Summarize:        true,
		RunTimeout:       cfg.Agent.RunTimeout,
		Logger:           logger,
	})
	if err != nil {
		providers.Close()
		_ = db.Close()
		return nil, err
	}

	s := &Server{
		version:    opts.Version,
		logger:     logger,
		db:         db,
		providers:  providers,
		negotiator: negotiator,
		limiter: middleware.NewRateLimiter(middleware.RateLimitConfig{
			Rate:   cfg.Server.RateLimitRPM,
			Window: time.Minute,
			Exempt: rateLimitExempt,
		}),
		idempotency: middleware.NewIdempotencyStore(middleware.IdempotencyConfig{TTL: 24 * time.Hour}),
		pruner: jobs.NewCheckpointPruner(jobs.CheckpointPrunerConfig{
			Store:     repo,
			Retention: cfg.Checkpoint.Retention,
			Interval:  cfg.Checkpoint.PruneEvery,
			Logger:    logger,
		}),
		keepAlive: jobs.NewKeepAlive(jobs.KeepAliveConfig{
			PublicURL: cfg.Server.PublicURL,
			Interval:  cfg.Jobs.KeepAliveInterval,
			Logger:    logger,
		}),
	}
	s.cfg.Store(cfg)
	s.handler = s.routes(cfg)
	return s, nil
}

func (s *Server) routes(cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	handler.NewStatusHandler(handler.StatusHandlerConfig{
		Version:     s.version,
		Environment: cfg.Server.Env,
		Backend:     cfg.Checkpoint.Backend,
		Store:       s.negotiator,
		Providers:   s.providerStatus,
		StartedAt:   time.Now(),
	}).RegisterRoutes(mux)

	handler.NewNegotiatorHandler(s.negotiator, s.logger).RegisterRoutes(mux)

	site := frontend.Handler(frontend.Config{
		Dir:           cfg.Frontend.Dir,
		LocalAPIURL:   cfg.Frontend.LocalAPIURL,
		ProductionURL: cfg.Frontend.ProductionURL,
		Logger:        s.logger,
	})
	mux.Handle("GET /config.json", site)
	mux.Handle("GET /", site)

	return middleware.Chain(
		mux,
		middleware.RequestID,
		middleware.Logger(s.logger),
		middleware.Recovery,
		middleware.CORS(cfg.Server.AllowedOrigins),
		middleware.Compress,
		middleware.RateLimit(s.limiter),
		middleware.Idempotency(s.idempotency),
	)
}

func (s *Server) providerStatus() []model.ProviderStatus {
	return s.cfg.Load().ProviderStatus()
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Negotiator returns the workflow service, for in-process runs
func (s *Server) Negotiator() *service.NegotiatorService {
	return s.negotiator
}

// Reconfigure swaps provider keys to those of cfg. Other settings need a
// restart and are ignored.
func (s *Server) Reconfigure(cfg *config.Config) {
	s.providers.ApplyKeys(ProviderKeys(cfg))
	s.cfg.Store(cfg)
	s.logger.Info("provider keys reloaded", slog.Int("groq_keys", len(cfg.LLM.Keys())))
}

// Run serves on ln until ctx is cancelled, then shuts down gracefully.
// Background jobs run for as long as the server does.
func (s *Server) Run(ctx context.Context, ln net.Listener) error {
	cfg := s.cfg.Load()
	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
	}

	s.pruner.Start()
	defer s.pruner.Stop()
	s.keepAlive.Start()
	defer s.keepAlive.Stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			slog.String("addr", ln.Addr().String()),
			slog.String("env", cfg.Server.Env),
			slog.String("version", s.version),
		)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("server forced to shutdown", slog.String("error", err.Error()))
		return err
	}
	<-errCh
	s.logger.Info("server exited")
	return nil
}

// ListenAndRun listens on addr and calls Run
func (s *Server) ListenAndRun(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Run(ctx, ln)
}

// Close stops background work and closes the checkpoint store. It is safe
// to call more than once.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.pruner.Stop()
		s.keepAlive.Stop()
		s.limiter.Stop()
		s.idempotency.Stop()
		s.providers.Close()
		err = s.db.Close()
	})
	return err
}
