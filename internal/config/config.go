package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"github.com/forgo/negotiator/internal/model"
)

// DefaultEnvFile is the env file read when --env-file is not given
const DefaultEnvFile = ".env"

// writeTimeoutMargin leaves room after a run times out to write its
// checkpointed state back to the client
const writeTimeoutMargin = 30 * time.Second

// Checkpoint backends
const (
	BackendSQLite    = "sqlite"
	BackendSurrealDB = "surrealdb"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	LLM        LLMConfig
	Search     SearchConfig
	Reviews    ReviewsConfig
	Agent      AgentConfig
	Checkpoint CheckpointConfig
	Database   DatabaseConfig
	Frontend   FrontendConfig
	Jobs       JobsConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host           string
	Port           string
	Env            string
	LogLevel       string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
	RateLimitRPM   int
	PublicURL      string
}

// LLMConfig holds Groq chat completion settings
type LLMConfig struct {
	APIKey      string
	APIKey2     string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Keys returns the configured Groq keys in failover order
func (c LLMConfig) Keys() []string {
	keys := make([]string, 0, 2)
	for _, k := range []string{c.APIKey, c.APIKey2} {
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// SearchConfig holds SerpStack settings
type SearchConfig struct {
	APIKey   string
	URL      string
	CacheTTL time.Duration
}

// ReviewsConfig holds review provider settings
type ReviewsConfig struct {
	WebScrapingAPIKey string
	WebScrapingURL    string
	TavilyAPIKey      string
	TavilyURL         string
	PerPlace          int
	Candidates        int
}

// AgentConfig holds workflow settings
type AgentConfig struct {
	MaxIterations  int
	RecursionLimit int
	// RunTimeout bounds one Start or Approve call
	RunTimeout time.Duration
}

// CheckpointConfig selects where workflow checkpoints are stored
type CheckpointConfig struct {
	Backend    string
	Path       string
	Retention  time.Duration
	PruneEvery time.Duration
}

// DatabaseConfig holds SurrealDB connection settings
type DatabaseConfig struct {
	Host      string
	Port      string
	Namespace string
	Database  string
	User      string
	Password  string
}

// FrontendConfig holds static frontend settings
type FrontendConfig struct {
	Dir           string
	LocalAPIURL   string
	ProductionURL string
}

// JobsConfig holds background job settings
type JobsConfig struct {
	KeepAliveInterval time.Duration
}

// LoadFile reads configuration from the given env file and the environment.
// Variables already present in the environment take precedence over the file.
// A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			values, err := godotenv.Read(path)
			if err != nil {
				return nil, fmt.Errorf("loading %s: %w", path, err)
			}
			envFiles.load(path, values)
		}
	}
	return fromEnv(), nil
}

// Reload re-reads the env file letting its values replace the current
// environment. It backs serve --reload, where the file is the source of
// truth for rotated keys: a key deleted from the file goes back to the
// value the process had before the file set it, or is unset.
func Reload(path string) (*Config, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("reloading %s: %w", path, err)
	}
	envFiles.overload(path, values)
	return fromEnv(), nil
}

// envOrigin is what a variable held before an env file first set it
type envOrigin struct {
	value string
	set   bool
}

// envFileTracker remembers, per env file, which variables the file applied
type envFileTracker struct {
	mu      sync.Mutex
	applied map[string]map[string]envOrigin
}

var envFiles = &envFileTracker{applied: make(map[string]map[string]envOrigin)}

// load applies values without overriding variables already in the environment
func (t *envFileTracker) load(path string, values map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	applied := t.appliedFor(path)
	for k, v := range values {
		if _, tracked := applied[k]; !tracked {
			if _, ok := os.LookupEnv(k); ok {
				continue
			}
			applied[k] = envOrigin{}
		}
		_ = os.Setenv(k, v)
	}
}

// overload applies values over the environment and reverts keys that an
// earlier load of the same file applied but that are now gone
func (t *envFileTracker) overload(path string, values map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	applied := t.appliedFor(path)
	for k, origin := range applied {
		if _, ok := values[k]; ok {
			continue
		}
		if origin.set {
			_ = os.Setenv(k, origin.value)
		} else {
			_ = os.Unsetenv(k)
		}
		delete(applied, k)
	}
	for k, v := range values {
		if _, tracked := applied[k]; !tracked {
			prev, ok := os.LookupEnv(k)
			applied[k] = envOrigin{value: prev, set: ok}
		}
		_ = os.Setenv(k, v)
	}
}

func (t *envFileTracker) appliedFor(path string) map[string]envOrigin {
	key := path
	if abs, err := filepath.Abs(path); err == nil {
		key = abs
	}
	applied, ok := t.applied[key]
	if !ok {
		applied = make(map[string]envOrigin)
		t.applied[key] = applied
	}
	return applied
}

func fromEnv() *Config {
	port := getEnv("PORT", getEnv("SERVER_PORT", "8000"))
	runTimeout := getDurationEnv("RUN_TIMEOUT", 5*time.Minute)
	publicURL := strings.TrimRight(getEnv("PUBLIC_URL", ""), "/")

	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         port,
			Env:          strings.ToLower(getEnv("ENVIRONMENT", "development")),
			LogLevel:     strings.ToUpper(getEnv("LOG_LEVEL", "INFO")),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", runTimeout+writeTimeoutMargin),
			AllowedOrigins: getSliceEnv("CORS_ALLOWED_ORIGINS", []string{
				"http://localhost:3000",
				"http://localhost:5500",
				"http://127.0.0.1:5500",
			}),
			RateLimitRPM: getIntEnv("RATE_LIMIT_RPM", 30),
			PublicURL:    publicURL,
		},
		LLM: LLMConfig{
			APIKey:      getEnv("GROQ_API_KEY", ""),
			APIKey2:     getEnv("GROQ_API_KEY_2", ""),
			BaseURL:     strings.TrimRight(getEnv("GROQ_API_URL", "https://api.groq.com/openai/v1"), "/"),
			Model:       getEnv("LLM_MODEL", "llama-3.3-70b-versatile"),
			Temperature: getFloatEnv("LLM_TEMPERATURE", 0.7),
			MaxTokens:   getIntEnv("MAX_TOKENS", 2048),
			Timeout:     getDurationEnv("LLM_TIMEOUT", 60*time.Second),
		},
		Search: SearchConfig{
			APIKey:   getEnv("SERPSTACK_API_KEY", getEnv("SERP_API_KEY", "")),
			URL:      getEnv("SERP_API_URL", "http://api.serpstack.com/search"),
			CacheTTL: getDurationEnv("CACHE_TTL", 10*time.Minute),
		},
		Reviews: ReviewsConfig{
			WebScrapingAPIKey: getEnv("WEBSCRAPING_AI_API_KEY", ""),
			WebScrapingURL:    getEnv("WEBSCRAPING_AI_API_URL", "https://api.webscraping.ai/html"),
			TavilyAPIKey:      getEnv("TAVILY_API_KEY", ""),
			TavilyURL:         getEnv("TAVILY_API_URL", "https://api.tavily.com/search"),
			PerPlace:          getIntEnv("REVIEWS_PER_PLACE", 3),
			Candidates:        getIntEnv("REVIEW_CANDIDATES", 3),
		},
		Agent: AgentConfig{
			MaxIterations:  getIntEnv("MAX_ITERATIONS", 3),
			RecursionLimit: getIntEnv("RECURSION_LIMIT", 50),
			RunTimeout:     runTimeout,
		},
		Checkpoint: CheckpointConfig{
			Backend:    strings.ToLower(getEnv("CHECKPOINT_BACKEND", BackendSQLite)),
			Path:       getEnv("DATABASE_PATH", "./data/checkpoints.db"),
			Retention:  getDurationEnv("CHECKPOINT_RETENTION", 7*24*time.Hour),
			PruneEvery: getDurationEnv("PRUNE_INTERVAL", time.Hour),
		},
		Database: DatabaseConfig{
			Host:      getEnv("DB_HOST", "localhost"),
			Port:      getEnv("DB_PORT", "8000"),
			Namespace: getEnv("DB_NAMESPACE", "negotiator"),
			Database:  getEnv("DB_DATABASE", "main"),
			User:      getEnv("DB_USER", "root"),
			Password:  getEnv("DB_PASSWORD", "root"),
		},
		Frontend: FrontendConfig{
			Dir:           getEnv("FRONTEND_DIR", "./frontend"),
			LocalAPIURL:   strings.TrimRight(getEnv("FRONTEND_LOCAL_API_URL", "http://localhost:"+port), "/"),
			ProductionURL: strings.TrimRight(getEnv("FRONTEND_PRODUCTION_API_URL", publicURL), "/"),
		},
		Jobs: JobsConfig{
			KeepAliveInterval: getDurationEnv("KEEPALIVE_INTERVAL", 0),
		},
	}
}

// IsTest returns true if running under tests
func (c *Config) IsTest() bool {
	return c.Server.Env == "test"
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// Validate checks that all required configuration values are present and valid.
// It returns an error describing all validation failures, or nil if valid.
func (c *Config) Validate() error {
	var errs []error

	// Server validation
	if c.Server.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	} else if p, err := strconv.Atoi(c.Server.Port); err != nil || p <= 0 || p > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be a valid TCP port, got '%s'", c.Server.Port))
	}
	if c.Server.Env != "development" && c.Server.Env != "production" && c.Server.Env != "test" {
		errs = append(errs, fmt.Errorf("ENVIRONMENT must be 'development', 'production', or 'test', got '%s'", c.Server.Env))
	}
	if len(c.Server.AllowedOrigins) == 0 {
		errs = append(errs, errors.New("CORS_ALLOWED_ORIGINS must have at least one origin"))
	}
	switch c.Server.LogLevel {
	case "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be DEBUG, INFO, WARN or ERROR, got '%s'", c.Server.LogLevel))
	}

	// Provider keys are optional only under tests, where fakes stand in for them
	if !c.IsTest() {
		if c.LLM.APIKey == "" {
			errs = append(errs, errors.New("GROQ_API_KEY is required"))
		}
		if c.Search.APIKey == "" {
			errs = append(errs, errors.New("SERPSTACK_API_KEY is required"))
		}
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, errors.New("LLM_TEMPERATURE must be between 0 and 2"))
	}
	if c.LLM.MaxTokens <= 0 {
		errs = append(errs, errors.New("MAX_TOKENS must be positive"))
	}

	// Agent validation
	if c.Agent.MaxIterations < 1 {
		errs = append(errs, errors.New("MAX_ITERATIONS must be at least 1"))
	}
	if c.Agent.RecursionLimit < 5 {
		errs = append(errs, errors.New("RECURSION_LIMIT must be at least 5"))
	}
	if c.Reviews.PerPlace < 1 {
		errs = append(errs, errors.New("REVIEWS_PER_PLACE must be at least 1"))
	}
	if c.Agent.RunTimeout <= 0 {
		errs = append(errs, errors.New("RUN_TIMEOUT must be positive"))
	}
	if c.Server.WriteTimeout > 0 && c.Server.WriteTimeout <= c.Agent.RunTimeout {
		errs = append(errs, errors.New("SERVER_WRITE_TIMEOUT must be longer than RUN_TIMEOUT"))
	}
	if c.Reviews.Candidates < 0 {
		errs = append(errs, errors.New("REVIEW_CANDIDATES must not be negative"))
	}

	// Checkpoint validation
	switch c.Checkpoint.Backend {
	case BackendSQLite:
		if c.Checkpoint.Path == "" {
			errs = append(errs, errors.New("DATABASE_PATH is required for the sqlite backend"))
		}
	case BackendSurrealDB:
		if c.Database.Host == "" {
			errs = append(errs, errors.New("DB_HOST is required for the surrealdb backend"))
		}
		if c.Database.Port == "" {
			errs = append(errs, errors.New("DB_PORT is required for the surrealdb backend"))
		}
		if c.Database.Namespace == "" || c.Database.Database == "" {
			errs = append(errs, errors.New("DB_NAMESPACE and DB_DATABASE are required for the surrealdb backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("CHECKPOINT_BACKEND must be 'sqlite' or 'surrealdb', got '%s'", c.Checkpoint.Backend))
	}

	if c.Jobs.KeepAliveInterval > 0 && c.Server.PublicURL == "" {
		errs = append(errs, errors.New("PUBLIC_URL is required when KEEPALIVE_INTERVAL is set"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ProviderStatus lists every external provider and whether its key is set.
// Key values are never included.
func (c *Config) ProviderStatus() []model.ProviderStatus {
	return []model.ProviderStatus{
		{Name: "groq", EnvVar: "GROQ_API_KEY", Required: true, Configured: c.LLM.APIKey != ""},
		{Name: "groq_fallback", EnvVar: "GROQ_API_KEY_2", Configured: c.LLM.APIKey2 != ""},
		{Name: "serpstack", EnvVar: "SERPSTACK_API_KEY", Required: true, Configured: c.Search.APIKey != ""},
		{Name: "webscraping_ai", EnvVar: "WEBSCRAPING_AI_API_KEY", Configured: c.Reviews.WebScrapingAPIKey != ""},
		{Name: "tavily", EnvVar: "TAVILY_API_KEY", Configured: c.Reviews.TavilyAPIKey != ""},
	}
}

// Helper functions for reading environment variables

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, strings.TrimRight(p, "/"))
			}
		}
		return out
	}
	return defaultValue
}
