package doctor

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var (
	colorHeader    = color.New(color.FgGreen)
	colorSeparator = color.New(color.FgMagenta)
	colorSection   = color.New(color.FgBlue)
	colorSuccess   = color.New(color.FgGreen)
	colorError     = color.New(color.FgRed)
	colorWarning   = color.New(color.FgYellow)
	colorDim       = color.New(color.Faint)
)

// Reporter writes a Report for humans.
type Reporter struct {
	w     io.Writer
	quiet bool
}

// NewReporter creates a new reporter. Quiet mode prints only issues.
func NewReporter(w io.Writer, quiet bool) *Reporter {
	return &Reporter{w: w, quiet: quiet}
}

// Print outputs the complete report.
func (r *Reporter) Print(report Report) {
	if r.quiet {
		r.printQuiet(report)
		return
	}

	_, _ = fmt.Fprintln(r.w)
	_, _ = colorHeader.Fprintln(r.w, "negotiator doctor")
	_, _ = colorSeparator.Fprintln(r.w, strings.Repeat("═", 59))
	_, _ = fmt.Fprintln(r.w)

	for _, section := range report.Sections {
		r.printSection(section)
	}
	r.printSummary(report)
}

func (r *Reporter) printSection(section SectionResult) {
	_, _ = colorSection.Fprint(r.w, section.Name)
	if section.Summary != "" {
		_, _ = colorDim.Fprintf(r.w, " (%s)", section.Summary)
	}
	_, _ = fmt.Fprintln(r.w)

	for _, result := range section.Results {
		r.printResult(result, section.NoIcons)
	}
	_, _ = fmt.Fprintln(r.w)
}

func statusColor(s Status) *color.Color {
	switch s {
	case StatusPass:
		return colorSuccess
	case StatusFail:
		return colorError
	case StatusWarn:
		return colorWarning
	default:
		return colorDim
	}
}

func (r *Reporter) printResult(result CheckResult, noIcons bool) {
	if noIcons {
		if result.Message == "" {
			_, _ = fmt.Fprintf(r.w, "  %s\n", result.Label)
		} else {
			_, _ = fmt.Fprintf(r.w, "  %-10s ", result.Label+":")
			_, _ = colorDim.Fprintln(r.w, result.Message)
		}
		return
	}

	_, _ = fmt.Fprint(r.w, "  ")
	_, _ = statusColor(result.Status).Fprint(r.w, result.Status.Symbol())
	if result.Message == "" {
		_, _ = fmt.Fprintf(r.w, " %s\n", result.Label)
	} else {
		_, _ = fmt.Fprintf(r.w, " %s - ", result.Label)
		_, _ = colorDim.Fprintln(r.w, result.Message)
	}

	if result.Fix != "" && (result.Status == StatusFail || result.Status == StatusWarn) {
		_, _ = colorDim.Fprintf(r.w, "    Fix: %s\n", result.Fix)
	}
}

func (r *Reporter) printSummary(report Report) {
	_, _ = colorHeader.Fprintln(r.w, "Summary")
	_, _ = colorSeparator.Fprintln(r.w, strings.Repeat("─", 59))

	errs := report.ErrorCount()
	warnings := report.WarnCount()
	if errs == 0 && warnings == 0 {
		_, _ = colorSuccess.Fprintln(r.w, "  No issues found")
		return
	}

	_, _ = fmt.Fprint(r.w, "  ")
	if errs > 0 {
		_, _ = colorError.Fprint(r.w, plural(errs, "error"))
		if warnings > 0 {
			_, _ = fmt.Fprint(r.w, ", ")
		}
	}
	if warnings > 0 {
		_, _ = colorWarning.Fprint(r.w, plural(warnings, "warning"))
	}
	_, _ = fmt.Fprintln(r.w, " found")
}

func (r *Reporter) printQuiet(report Report) {
	for _, issue := range report.Issues() {
		prefix := "Warning"
		if issue.Status == StatusFail {
			prefix = "Error"
		}
		_, _ = statusColor(issue.Status).Fprintf(r.w, "%s: ", prefix)
		if issue.Message != "" {
			_, _ = fmt.Fprintf(r.w, "%s: %s\n", issue.Label, issue.Message)
		} else {
			_, _ = fmt.Fprintf(r.w, "%s\n", issue.Label)
		}
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
