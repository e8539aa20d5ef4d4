package doctor

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/forgo/negotiator/internal/config"
	"github.com/forgo/negotiator/internal/frontend"
)

// dialTimeout bounds the SurrealDB reachability probe
var dialTimeout = 2 * time.Second

// CheckVersion returns the version section.
func CheckVersion(info BuildInfo) SectionResult {
	return SectionResult{
		Name:    "Version",
		NoIcons: true,
		Results: []CheckResult{
			{Status: StatusInfo, Label: "negotiator " + info.Version},
			{Status: StatusInfo, Label: "Go", Message: info.GoVersion},
			{Status: StatusInfo, Label: "Platform", Message: info.Platform},
		},
	}
}

// CheckConfiguration reports every validation failure as its own result.
func CheckConfiguration(cfg *config.Config) SectionResult {
	section := SectionResult{
		Name:    "Configuration",
		Summary: cfg.Server.Env,
	}

	err := cfg.Validate()
	if err == nil {
		section.Results = append(section.Results, CheckResult{
			Status:  StatusPass,
			Label:   "Validation",
			Message: "Valid",
		})
		return section
	}

	for _, e := range splitJoined(err) {
		section.Results = append(section.Results, CheckResult{
			Status:  StatusFail,
			Label:   "Validation",
			Message: e.Error(),
			Fix:     "Set the variable in .env or the environment",
		})
	}
	return section
}

// splitJoined unpacks an errors.Join result.
func splitJoined(err error) []error {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		return joined.Unwrap()
	}
	return []error{err}
}

// CheckProviders reports which provider keys are set. Missing required keys
// fail outside the test environment; missing optional keys are informational.
func CheckProviders(cfg *config.Config) SectionResult {
	section := SectionResult{Name: "Providers"}

	configured := 0
	for _, p := range cfg.ProviderStatus() {
		result := CheckResult{Label: p.EnvVar}
		switch {
		case p.Configured:
			configured++
			result.Status = StatusPass
			result.Message = p.Name
		case p.Required:
			// test runs use fake providers
			result.Status = StatusFail
			if cfg.IsTest() {
				result.Status = StatusWarn
			}
			result.Message = "NOT SET"
			result.Fix = fmt.Sprintf("Set %s to enable %s", p.EnvVar, p.Name)
		default:
			result.Status = StatusInfo
			result.Message = "not set (optional)"
		}
		section.Results = append(section.Results, result)
	}
	section.Summary = fmt.Sprintf("%d configured", configured)
	return section
}

// CheckCheckpointStore checks that the selected backend is usable: a
// writable directory for SQLite, a reachable host for SurrealDB.
func CheckCheckpointStore(cfg *config.Config) SectionResult {
	section := SectionResult{Name: "Checkpoints", Summary: cfg.Checkpoint.Backend}

	switch cfg.Checkpoint.Backend {
	case config.BackendSQLite:
		section.Results = append(section.Results, checkWritableDir(filepath.Dir(cfg.Checkpoint.Path)))
	case config.BackendSurrealDB:
		addr := net.JoinHostPort(cfg.Database.Host, cfg.Database.Port)
		conn, err := net.DialTimeout("tcp", addr, dialTimeout)
		if err != nil {
			section.Results = append(section.Results, CheckResult{
				Status:  StatusFail,
				Label:   addr,
				Message: "unreachable",
				Fix:     "Start SurrealDB or set CHECKPOINT_BACKEND=sqlite",
			})
			break
		}
		_ = conn.Close()
		section.Results = append(section.Results, CheckResult{Status: StatusPass, Label: addr, Message: "reachable"})
	default:
		section.Results = append(section.Results, CheckResult{
			Status:  StatusFail,
			Label:   "CHECKPOINT_BACKEND",
			Message: "unknown backend " + cfg.Checkpoint.Backend,
			Fix:     "Use sqlite or surrealdb",
		})
	}
	return section
}

// checkWritableDir passes when dir exists and a file can be created in it,
// warns when dir is missing but its parent would let the server create it.
func checkWritableDir(dir string) CheckResult {
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return CheckResult{
			Status:  StatusWarn,
			Label:   dir,
			Message: "does not exist yet",
			Fix:     "It is created on first start, or run: mkdir -p " + dir,
		}
	}
	if err != nil {
		return CheckResult{Status: StatusFail, Label: dir, Message: err.Error()}
	}
	if !info.IsDir() {
		return CheckResult{Status: StatusFail, Label: dir, Message: "not a directory", Fix: "Point DATABASE_PATH at a file inside a directory"}
	}

	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Label:   dir,
			Message: "not writable",
			Fix:     "Fix permissions or change DATABASE_PATH",
		}
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return CheckResult{Status: StatusPass, Label: dir, Message: "writable"}
}

// CheckFrontend checks the publish directory for an entry page.
func CheckFrontend(cfg *config.Config) SectionResult {
	section := SectionResult{Name: "Frontend"}

	index := filepath.Join(cfg.Frontend.Dir, frontend.IndexFile)
	if _, err := os.Stat(index); err != nil {
		section.Results = append(section.Results, CheckResult{
			Status:  StatusWarn,
			Label:   frontend.IndexFile,
			Message: "not found in " + cfg.Frontend.Dir,
			Fix:     "The built-in page is served. Set FRONTEND_DIR to use your own.",
		})
	} else {
		section.Results = append(section.Results, CheckResult{Status: StatusPass, Label: frontend.IndexFile, Message: index})
	}

	section.Results = append(section.Results,
		CheckResult{Status: StatusInfo, Label: "Local API", Message: cfg.Frontend.LocalAPIURL},
		CheckResult{Status: StatusInfo, Label: "Production API", Message: orDefault(cfg.Frontend.ProductionURL, "serving origin")},
	)
	return section
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
