package cli

import (
	"github.com/spf13/cobra"

	"github.com/forgo/negotiator/internal/doctor"
)

// errDoctorFailed is returned when doctor finds failures. It is silent so
// main.go only sets the exit code.
var errDoctorFailed = &doctorError{}

type doctorError struct{}

func (e *doctorError) Error() string { return "doctor found failures" }
func (e *doctorError) Silent() bool  { return true }

func addDoctorCommand(parent *cobra.Command, opts *rootOptions) {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose configuration and environment",
		Long: `Checks the configuration the server would start with and reports problems.

Checks performed:
  - Configuration validation
  - Provider API keys (values are never printed)
  - Checkpoint store (SQLite directory writable, SurrealDB reachable)
  - Frontend publish directory has index.html

Exit codes:
  0 - No failures (warnings allowed)
  1 - At least one check failed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			report := doctor.Run(cfg, doctor.NewBuildInfo(version))
			doctor.NewReporter(cmd.OutOrStdout(), quiet).Print(report)

			if report.ErrorCount() > 0 {
				return errDoctorFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print issues")

	parent.AddCommand(cmd)
}
