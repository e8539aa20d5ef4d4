// Package doctor diagnoses a negotiator installation: configuration,
// provider keys, the checkpoint store and the frontend directory.
package doctor

import (
	"runtime"

	"github.com/forgo/negotiator/internal/config"
)

// Status is the outcome of a single check.
type Status int

const (
	StatusPass Status = iota
	StatusWarn
	StatusFail
	StatusInfo
)

// String returns the string representation of a Status.
func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusWarn:
		return "warn"
	case StatusFail:
		return "fail"
	case StatusInfo:
		return "info"
	default:
		return "unknown"
	}
}

// Symbol returns the display symbol for a Status.
func (s Status) Symbol() string {
	switch s {
	case StatusPass:
		return "✓"
	case StatusWarn:
		return "⚠"
	case StatusFail:
		return "✗"
	case StatusInfo:
		return "-"
	default:
		return "?"
	}
}

// CheckResult holds the result of a single check item.
type CheckResult struct {
	Status  Status
	Label   string // e.g. "GROQ_API_KEY", "index.html"
	Message string
	Fix     string
}

// SectionResult groups related check results.
type SectionResult struct {
	Name    string
	Results []CheckResult
	Summary string
	NoIcons bool // info-only sections
}

// Report holds the complete diagnostic report.
type Report struct {
	Sections []SectionResult
}

// Issues returns all check results that are failures or warnings.
func (r Report) Issues() []CheckResult {
	var issues []CheckResult
	for _, s := range r.Sections {
		for _, c := range s.Results {
			if c.Status == StatusFail || c.Status == StatusWarn {
				issues = append(issues, c)
			}
		}
	}
	return issues
}

// HasIssues returns true if the report contains any failures or warnings.
func (r Report) HasIssues() bool {
	return len(r.Issues()) > 0
}

// ErrorCount returns the number of failures in the report.
func (r Report) ErrorCount() int {
	return r.count(StatusFail)
}

// WarnCount returns the number of warnings in the report.
func (r Report) WarnCount() int {
	return r.count(StatusWarn)
}

func (r Report) count(status Status) int {
	n := 0
	for _, s := range r.Sections {
		for _, c := range s.Results {
			if c.Status == status {
				n++
			}
		}
	}
	return n
}

// BuildInfo holds version and runtime information.
type BuildInfo struct {
	Version   string
	GoVersion string
	Platform  string
}

// NewBuildInfo returns build info for the running binary.
func NewBuildInfo(version string) BuildInfo {
	if version == "" {
		version = "dev"
	}
	return BuildInfo{
		Version:   version,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Run executes every check against cfg.
func Run(cfg *config.Config, info BuildInfo) Report {
	return Report{Sections: []SectionResult{
		CheckVersion(info),
		CheckConfiguration(cfg),
		CheckProviders(cfg),
		CheckCheckpointStore(cfg),
		CheckFrontend(cfg),
	}}
}
