package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/forgo/negotiator/internal/config"
)

// Build-time variables set via ldflags
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// IsSilentError returns true if the error should not be printed to stderr.
// Used by main.go for errors that only set the exit code.
func IsSilentError(err error) bool {
	type silent interface {
		Silent() bool
	}
	if s, ok := err.(silent); ok {
		return s.Silent()
	}
	return false
}

// rootOptions are the persistent flags shared by every subcommand
type rootOptions struct {
	envFile string
	noColor bool
}

// NewRootCmd creates a new root command instance with all subcommands
// attached. Tests get isolated instances with their own flags.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "negotiator",
		Short: "Agentic place search and price negotiation API",
		Long: `negotiator finds places with SerpStack, reads their reviews, simulates
contacting the shops for prices and recommends a single winner.

Run "negotiator serve" to start the API and frontend, or
"negotiator search" to run one search from the terminal.`,
		Version: version,
		// Usage is still shown for flag and argument parsing errors
		SilenceUsage: true,
		// main.go prints errors itself, in colour
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				color.NoColor = true
			}
		},
	}
	cmd.SetVersionTemplate("negotiator version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", config.DefaultEnvFile, "Environment file to load when present")
	cmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	addServeCommand(cmd, opts)
	addSearchCommand(cmd, opts)
	addDoctorCommand(cmd, opts)
	addVersionCommand(cmd)

	return cmd
}

// Execute runs the root command. This is the main entry point for the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig reads the env file named by --env-file and the environment
func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.LoadFile(opts.envFile)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}
