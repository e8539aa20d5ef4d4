package doctor

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/forgo/negotiator/internal/config"
)

func init() {
	color.NoColor = true
}

func validConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Server: config.ServerConfig{
			Host:           "0.0.0.0",
			Port:           "8000",
			Env:            "production",
			LogLevel:       "INFO",
			AllowedOrigins: []string{"*"},
		},
		LLM:        config.LLMConfig{APIKey: "gsk_test", Temperature: 0.7, MaxTokens: 2048},
		Search:     config.SearchConfig{APIKey: "serp_test"},
		Reviews:    config.ReviewsConfig{PerPlace: 3, Candidates: 3},
		Agent:      config.AgentConfig{MaxIterations: 3, RecursionLimit: 50, RunTimeout: time.Minute},
		Checkpoint: config.CheckpointConfig{Backend: config.BackendSQLite, Path: filepath.Join(dir, "checkpoints.db")},
		Frontend:   config.FrontendConfig{Dir: dir, LocalAPIURL: "http://localhost:8000"},
	}
}

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusPass, "pass"},
		{StatusWarn, "warn"},
		{StatusFail, "fail"},
		{StatusInfo, "info"},
		{Status(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.status.String(); got != tt.want {
				t.Errorf("Status.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReport_Counts(t *testing.T) {
	report := Report{Sections: []SectionResult{
		{Results: []CheckResult{{Status: StatusPass}, {Status: StatusFail}, {Status: StatusInfo}}},
		{Results: []CheckResult{{Status: StatusWarn}, {Status: StatusFail}}},
	}}

	if got := report.ErrorCount(); got != 2 {
		t.Errorf("ErrorCount() = %d, want 2", got)
	}
	if got := report.WarnCount(); got != 1 {
		t.Errorf("WarnCount() = %d, want 1", got)
	}
	if got := len(report.Issues()); got != 3 {
		t.Errorf("len(Issues()) = %d, want 3", got)
	}
	if (Report{}).HasIssues() {
		t.Error("empty report should have no issues")
	}
}

func TestCheckConfiguration(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		section := CheckConfiguration(validConfig(t))
		if len(section.Results) != 1 || section.Results[0].Status != StatusPass {
			t.Errorf("results = %+v, want a single pass", section.Results)
		}
	})

	t.Run("each failure reported", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.LLM.APIKey = ""
		cfg.Search.APIKey = ""

		section := CheckConfiguration(cfg)
		if len(section.Results) != 2 {
			t.Fatalf("got %d results, want 2: %+v", len(section.Results), section.Results)
		}
		for _, r := range section.Results {
			if r.Status != StatusFail {
				t.Errorf("status = %v, want fail", r.Status)
			}
		}
	})
}

func TestCheckProviders(t *testing.T) {
	cfg := validConfig(t)
	cfg.Search.APIKey = ""

	section := CheckProviders(cfg)

	byVar := map[string]CheckResult{}
	for _, r := range section.Results {
		byVar[r.Label] = r
	}
	if byVar["GROQ_API_KEY"].Status != StatusPass {
		t.Errorf("GROQ_API_KEY = %v, want pass", byVar["GROQ_API_KEY"].Status)
	}
	if byVar["SERPSTACK_API_KEY"].Status != StatusFail {
		t.Errorf("SERPSTACK_API_KEY = %v, want fail", byVar["SERPSTACK_API_KEY"].Status)
	}
	if byVar["TAVILY_API_KEY"].Status != StatusInfo {
		t.Errorf("TAVILY_API_KEY = %v, want info", byVar["TAVILY_API_KEY"].Status)
	}
	if section.Summary != "1 configured" {
		t.Errorf("Summary = %q, want %q", section.Summary, "1 configured")
	}
}

func TestCheckCheckpointStore(t *testing.T) {
	t.Run("writable sqlite dir", func(t *testing.T) {
		section := CheckCheckpointStore(validConfig(t))
		if got := section.Results[0].Status; got != StatusPass {
			t.Errorf("status = %v, want pass", got)
		}
	})

	t.Run("missing sqlite dir", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Checkpoint.Path = filepath.Join(t.TempDir(), "nested", "checkpoints.db")
		if got := CheckCheckpointStore(cfg).Results[0].Status; got != StatusWarn {
			t.Errorf("status = %v, want warn", got)
		}
	})

	t.Run("path is a file", func(t *testing.T) {
		cfg := validConfig(t)
		file := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(file, nil, 0o644); err != nil {
			t.Fatal(err)
		}
		cfg.Checkpoint.Path = filepath.Join(file, "checkpoints.db")
		if got := CheckCheckpointStore(cfg).Results[0].Status; got != StatusFail {
			t.Errorf("status = %v, want fail", got)
		}
	})

	t.Run("surrealdb reachable", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		defer ln.Close()

		host, port, _ := net.SplitHostPort(ln.Addr().String())
		cfg := validConfig(t)
		cfg.Checkpoint.Backend = config.BackendSurrealDB
		cfg.Database = config.DatabaseConfig{Host: host, Port: port}

		if got := CheckCheckpointStore(cfg).Results[0].Status; got != StatusPass {
			t.Errorf("status = %v, want pass", got)
		}
	})

	t.Run("surrealdb unreachable", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		host, port, _ := net.SplitHostPort(ln.Addr().String())
		ln.Close()

		cfg := validConfig(t)
		cfg.Checkpoint.Backend = config.BackendSurrealDB
		cfg.Database = config.DatabaseConfig{Host: host, Port: port}

		if got := CheckCheckpointStore(cfg).Results[0].Status; got != StatusFail {
			t.Errorf("status = %v, want fail", got)
		}
	})
}

func TestCheckFrontend(t *testing.T) {
	cfg := validConfig(t)
	if got := CheckFrontend(cfg).Results[0].Status; got != StatusWarn {
		t.Errorf("without index.html: status = %v, want warn", got)
	}

	if err := os.WriteFile(filepath.Join(cfg.Frontend.Dir, "index.html"), []byte("<html></html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := CheckFrontend(cfg).Results[0].Status; got != StatusPass {
		t.Errorf("with index.html: status = %v, want pass", got)
	}
}

// ============================================================================
// Reporter
// ============================================================================

func TestReporter_Print(t *testing.T) {
	report := Report{Sections: []SectionResult{
		CheckVersion(NewBuildInfo("1.2.3")),
		{Name: "Providers", Results: []CheckResult{
			{Status: StatusPass, Label: "GROQ_API_KEY", Message: "groq"},
			{Status: StatusFail, Label: "SERPSTACK_API_KEY", Message: "NOT SET", Fix: "Set SERPSTACK_API_KEY"},
		}},
	}}

	var buf bytes.Buffer
	NewReporter(&buf, false).Print(report)
	out := buf.String()

	for _, want := range []string{
		"negotiator doctor",
		"negotiator 1.2.3",
		"✓ GROQ_API_KEY - groq",
		"✗ SERPSTACK_API_KEY - NOT SET",
		"Fix: Set SERPSTACK_API_KEY",
		"1 error found",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestReporter_Quiet(t *testing.T) {
	report := Report{Sections: []SectionResult{{Results: []CheckResult{
		{Status: StatusPass, Label: "ok"},
		{Status: StatusWarn, Label: "index.html", Message: "not found"},
	}}}}

	var buf bytes.Buffer
	NewReporter(&buf, true).Print(report)

	if got, want := buf.String(), "Warning: index.html: not found\n"; got != want {
		t.Errorf("quiet output = %q, want %q", got, want)
	}
}

func TestReporter_NoIssues(t *testing.T) {
	var buf bytes.Buffer
	NewReporter(&buf, false).Print(Report{})
	if !strings.Contains(buf.String(), "No issues found") {
		t.Errorf("output = %q", buf.String())
	}
}
