package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfig_Validate_ValidConfig(t *testing.T) {
	cfg := validBaseConfig()

	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got error: %v", err)
	}
}

func TestConfig_Validate_InvalidEnvironment(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Server.Env = "staging"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid ENVIRONMENT")
	}
	if !strings.Contains(err.Error(), "ENVIRONMENT") {
		t.Errorf("expected error to mention ENVIRONMENT, got: %v", err)
	}
}

func TestConfig_Validate_InvalidPort(t *testing.T) {
	for _, port := range []string{"", "abc", "0", "70000"} {
		cfg := validBaseConfig()
		cfg.Server.Port = port

		err := cfg.Validate()
		if err == nil {
			t.Errorf("expected error for port %q", port)
			continue
		}
		if !strings.Contains(err.Error(), "PORT") {
			t.Errorf("expected error to mention PORT for %q, got: %v", port, err)
		}
	}
}

func TestConfig_Validate_EmptyAllowedOrigins(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Server.AllowedOrigins = []string{}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for empty CORS_ALLOWED_ORIGINS")
	}
	if !strings.Contains(err.Error(), "CORS_ALLOWED_ORIGINS") {
		t.Errorf("expected error to mention CORS_ALLOWED_ORIGINS, got: %v", err)
	}
}

func TestConfig_Validate_MissingProviderKeys(t *testing.T) {
	cfg := validBaseConfig()
	cfg.LLM.APIKey = ""
	cfg.Search.APIKey = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing provider keys")
	}
	if !strings.Contains(err.Error(), "GROQ_API_KEY") {
		t.Errorf("expected error to mention GROQ_API_KEY, got: %v", err)
	}
	if !strings.Contains(err.Error(), "SERPSTACK_API_KEY") {
		t.Errorf("expected error to mention SERPSTACK_API_KEY, got: %v", err)
	}
}

func TestConfig_Validate_TestEnvSkipsProviderKeys(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Server.Env = "test"
	cfg.LLM.APIKey = ""
	cfg.Search.APIKey = ""

	if err := cfg.Validate(); err != nil {
		t.Errorf("expected test environment to allow missing keys, got: %v", err)
	}
}

func TestConfig_Validate_AgentLimits(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Agent.MaxIterations = 0
	cfg.Agent.RecursionLimit = 2

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for agent limits")
	}
	if !strings.Contains(err.Error(), "MAX_ITERATIONS") {
		t.Errorf("expected error to mention MAX_ITERATIONS, got: %v", err)
	}
	if !strings.Contains(err.Error(), "RECURSION_LIMIT") {
		t.Errorf("expected error to mention RECURSION_LIMIT, got: %v", err)
	}
}

func TestConfig_Validate_WriteTimeoutMustExceedRunTimeout(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Server.WriteTimeout = cfg.Agent.RunTimeout

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for write timeout equal to run timeout")
	}
	if !strings.Contains(err.Error(), "SERVER_WRITE_TIMEOUT") {
		t.Errorf("expected error to mention SERVER_WRITE_TIMEOUT, got: %v", err)
	}

	cfg.Server.WriteTimeout = cfg.Agent.RunTimeout + time.Second
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got error: %v", err)
	}
}

func TestConfig_Validate_UnknownBackend(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Checkpoint.Backend = "postgres"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if !strings.Contains(err.Error(), "CHECKPOINT_BACKEND") {
		t.Errorf("expected error to mention CHECKPOINT_BACKEND, got: %v", err)
	}
}

func TestConfig_Validate_SurrealBackendRequiresHost(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Checkpoint.Backend = BackendSurrealDB
	cfg.Database.Host = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing DB_HOST")
	}
	if !strings.Contains(err.Error(), "DB_HOST") {
		t.Errorf("expected error to mention DB_HOST, got: %v", err)
	}
}

func TestConfig_Validate_KeepAliveRequiresPublicURL(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Jobs.KeepAliveInterval = 14 * time.Minute

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for keep-alive without PUBLIC_URL")
	}
	if !strings.Contains(err.Error(), "PUBLIC_URL") {
		t.Errorf("expected error to mention PUBLIC_URL, got: %v", err)
	}
}

func TestConfig_Validate_MultipleErrorsJoined(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Server.Port = ""
	cfg.Server.Env = "invalid"
	cfg.LLM.Temperature = 3

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"PORT", "ENVIRONMENT", "LLM_TEMPERATURE"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %s, got: %v", want, err)
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != "8000" {
		t.Errorf("expected port 8000, got %s", cfg.Server.Port)
	}
	if cfg.LLM.Model != "llama-3.3-70b-versatile" {
		t.Errorf("unexpected model %s", cfg.LLM.Model)
	}
	if cfg.Agent.MaxIterations != 3 || cfg.Agent.RecursionLimit != 50 {
		t.Errorf("unexpected agent defaults: %+v", cfg.Agent)
	}
	if cfg.Checkpoint.Backend != BackendSQLite || cfg.Checkpoint.Path != "./data/checkpoints.db" {
		t.Errorf("unexpected checkpoint defaults: %+v", cfg.Checkpoint)
	}
	if cfg.Frontend.LocalAPIURL != "http://localhost:8000" {
		t.Errorf("unexpected local API URL %s", cfg.Frontend.LocalAPIURL)
	}
}

func TestLoad_WriteTimeoutOutlastsRunTimeout(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.WriteTimeout <= cfg.Agent.RunTimeout {
		t.Errorf("default write timeout %s must exceed run timeout %s", cfg.Server.WriteTimeout, cfg.Agent.RunTimeout)
	}

	t.Setenv("RUN_TIMEOUT", "2m")
	cfg, err = LoadFile("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.WriteTimeout != 2*time.Minute+writeTimeoutMargin {
		t.Errorf("expected write timeout to follow RUN_TIMEOUT, got %s", cfg.Server.WriteTimeout)
	}
}

func TestLoad_PortPrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("PORT", "10000")

	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != "10000" {
		t.Errorf("expected PORT to win, got %s", cfg.Server.Port)
	}
}

func TestLoad_SerpKeyAlias(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERP_API_KEY", "legacy")

	cfg, _ := LoadFile("")
	if cfg.Search.APIKey != "legacy" {
		t.Errorf("expected SERP_API_KEY alias to be honoured, got %q", cfg.Search.APIKey)
	}
}

func TestLoad_AllowedOriginsTrimmed(t *testing.T) {
	clearEnv(t)
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://app.netlify.app/ ,http://localhost:5500")

	cfg, _ := LoadFile("")
	want := []string{"https://app.netlify.app", "http://localhost:5500"}
	if len(cfg.Server.AllowedOrigins) != len(want) {
		t.Fatalf("expected %v, got %v", want, cfg.Server.AllowedOrigins)
	}
	for i := range want {
		if cfg.Server.AllowedOrigins[i] != want[i] {
			t.Errorf("origin %d: expected %q, got %q", i, want[i], cfg.Server.AllowedOrigins[i])
		}
	}
}

func TestLoadFile_EnvFileDoesNotOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	// godotenv treats a set-but-empty variable as present
	_ = os.Unsetenv("SERPSTACK_API_KEY")
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "GROQ_API_KEY=from-file\nSERPSTACK_API_KEY=serp-from-file\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GROQ_API_KEY", "from-env")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.APIKey != "from-env" {
		t.Errorf("expected environment to win, got %q", cfg.LLM.APIKey)
	}
	if cfg.Search.APIKey != "serp-from-file" {
		t.Errorf("expected file value for SERPSTACK_API_KEY, got %q", cfg.Search.APIKey)
	}
}

func TestLoadFile_MissingFileIsNotAnError(t *testing.T) {
	clearEnv(t)
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestProviderStatus_NeverExposesValues(t *testing.T) {
	cfg := validBaseConfig()
	for _, p := range cfg.ProviderStatus() {
		if strings.Contains(p.Name+p.EnvVar, "secret") {
			t.Errorf("provider status leaked a key value: %+v", p)
		}
	}

	status := cfg.ProviderStatus()
	if !status[0].Configured || !status[0].Required {
		t.Errorf("expected groq to be required and configured, got %+v", status[0])
	}
	if status[1].Configured {
		t.Errorf("expected fallback key to be unconfigured, got %+v", status[1])
	}
}

func TestLLMConfig_KeysSkipsEmpty(t *testing.T) {
	c := LLMConfig{APIKey: "", APIKey2: "second"}
	keys := c.Keys()
	if len(keys) != 1 || keys[0] != "second" {
		t.Errorf("expected [second], got %v", keys)
	}
}

func TestReload_FileOverridesEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("GROQ_API_KEY", "old-key")

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("GROQ_API_KEY=rotated-key\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Reload(path)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if cfg.LLM.APIKey != "rotated-key" {
		t.Errorf("expected rotated key from file, got %q", cfg.LLM.APIKey)
	}
}

func TestReload_RemovedKeysRevert(t *testing.T) {
	clearEnv(t)
	t.Setenv("GROQ_API_KEY", "shell-key")
	t.Setenv("TAVILY_API_KEY", "")
	os.Unsetenv("TAVILY_API_KEY")

	path := filepath.Join(t.TempDir(), ".env")
	write := func(content string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write env file: %v", err)
		}
	}

	write("TAVILY_API_KEY=tvly-1\n")
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Reviews.TavilyAPIKey != "tvly-1" {
		t.Fatalf("expected tavily key from file, got %q", cfg.Reviews.TavilyAPIKey)
	}

	write("TAVILY_API_KEY=tvly-1\nGROQ_API_KEY=rotated-key\nGROQ_API_KEY_2=second-key\n")
	cfg, err = Reload(path)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := cfg.LLM.Keys(); len(got) != 2 || got[0] != "rotated-key" || got[1] != "second-key" {
		t.Fatalf("expected both rotated keys, got %v", got)
	}

	write("")
	cfg, err = Reload(path)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if cfg.LLM.APIKey2 != "" {
		t.Errorf("expected GROQ_API_KEY_2 removed with the file entry, got %q", cfg.LLM.APIKey2)
	}
	if cfg.LLM.APIKey != "shell-key" {
		t.Errorf("expected GROQ_API_KEY back to the process value, got %q", cfg.LLM.APIKey)
	}
	if v, ok := os.LookupEnv("TAVILY_API_KEY"); ok {
		t.Errorf("expected TAVILY_API_KEY unset, got %q", v)
	}
}

func TestReload_MissingFile(t *testing.T) {
	if _, err := Reload(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("expected error for missing env file")
	}
}

// validBaseConfig returns a valid configuration for testing
func validBaseConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           "8000",
			Env:            "development",
			LogLevel:       "INFO",
			WriteTimeout:   5*time.Minute + 30*time.Second,
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		LLM: LLMConfig{
			APIKey:      "secret-groq",
			Model:       "llama-3.3-70b-versatile",
			Temperature: 0.7,
			MaxTokens:   2048,
		},
		Search: SearchConfig{
			APIKey: "secret-serp",
		},
		Reviews: ReviewsConfig{
			PerPlace:   3,
			Candidates: 3,
		},
		Agent: AgentConfig{
			MaxIterations:  3,
			RecursionLimit: 50,
			RunTimeout:     5 * time.Minute,
		},
		Checkpoint: CheckpointConfig{
			Backend: BackendSQLite,
			Path:    "./data/checkpoints.db",
		},
		Database: DatabaseConfig{
			Host:      "localhost",
			Port:      "8000",
			Namespace: "negotiator",
			Database:  "main",
		},
	}
}

var configEnvKeys = []string{
	"PORT", "SERVER_PORT", "SERVER_HOST", "ENVIRONMENT", "LOG_LEVEL", "CORS_ALLOWED_ORIGINS",
	"GROQ_API_KEY", "GROQ_API_KEY_2", "GROQ_API_URL", "LLM_MODEL", "LLM_TEMPERATURE", "MAX_TOKENS",
	"SERPSTACK_API_KEY", "SERP_API_KEY", "SERP_API_URL", "WEBSCRAPING_AI_API_KEY", "TAVILY_API_KEY",
	"MAX_ITERATIONS", "RECURSION_LIMIT", "RUN_TIMEOUT", "SERVER_WRITE_TIMEOUT", "CHECKPOINT_BACKEND", "DATABASE_PATH", "PUBLIC_URL",
	"FRONTEND_LOCAL_API_URL", "FRONTEND_PRODUCTION_API_URL", "KEEPALIVE_INTERVAL",
}

// clearEnv blanks every variable the loader reads for the duration of the test
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnvKeys {
		t.Setenv(k, "")
	}
}
