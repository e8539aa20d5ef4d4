package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forgo/negotiator/internal/model"
	"github.com/forgo/negotiator/internal/server"
)

// Output formats for search results
const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

type searchOptions struct {
	city      string
	placeType string
	budget    float64
	route     string
	all       bool
	output    string
	verbose   bool
}

func addSearchCommand(parent *cobra.Command, root *rootOptions) {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Run one search from the terminal",
		Long: `Runs the whole workflow in-process and prints the recommendation.
The human review step is approved automatically.

Either a query or both --city and --type are required.`,
		Example: `  negotiator search "cheap gyms in Pune under 3000"
  negotiator search --city Pune --type gym --budget 3000 --route negotiation
  negotiator search "cafes in Bangalore" --all --output yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch opts.output {
			case outputText, outputJSON, outputYAML:
			default:
				return fmt.Errorf("unknown output format %q (want text, json or yaml)", opts.output)
			}

			req := &model.SearchRequest{
				City:        opts.city,
				PlaceType:   opts.placeType,
				Route:       opts.route,
				ShowAll:     opts.all,
				AutoApprove: true,
			}
			if len(args) == 1 {
				req.Query = args[0]
			}
			if cmd.Flags().Changed("budget") {
				budget := opts.budget
				req.Budget = &budget
			}
			return runSearch(cmd, root, opts, req)
		},
	}

	cmd.Flags().StringVar(&opts.city, "city", "", "City to search in")
	cmd.Flags().StringVar(&opts.placeType, "type", "", "Kind of place, e.g. gym")
	cmd.Flags().Float64Var(&opts.budget, "budget", 0, "Monthly budget")
	cmd.Flags().StringVar(&opts.route, "route", "", "negotiation, comparison or info_only (inferred when empty)")
	cmd.Flags().BoolVar(&opts.all, "all", false, "Show every ranked place, not just the winner")
	cmd.Flags().StringVarP(&opts.output, "output", "o", outputText, "Output format: text, json or yaml")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log workflow progress to stderr")

	parent.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, root *rootOptions, opts *searchOptions, req *model.SearchRequest) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration (run 'negotiator doctor' for details):\n%w", err)
	}

	level := "WARN"
	if opts.verbose {
		level = "DEBUG"
	}
	logger := server.NewLogger(cmd.ErrOrStderr(), level)

	ctx := cmd.Context()
	srv, err := server.New(ctx, cfg, server.Options{Version: version, Logger: logger})
	if err != nil {
		return err
	}
	defer func() { _ = srv.Close() }()

	state, runErr := srv.Negotiator().Start(ctx, req)
	if state != nil {
		if err := printRun(cmd.OutOrStdout(), opts.output, model.NewRunResponse(state)); err != nil {
			return err
		}
	}
	if runErr != nil {
		slog.Debug("search failed", slog.String("error", runErr.Error()))
		return runErr
	}
	return nil
}

func printRun(w io.Writer, format string, run *model.RunResponse) error {
	switch format {
	case outputJSON:
		return writeJSON(w, run)
	case outputYAML:
		return writeYAML(w, run)
	default:
		printRunText(w, run)
		return nil
	}
}

func printRunText(w io.Writer, run *model.RunResponse) {
	PrintHeader(w, run.UserQuery)
	PrintSeparator(w)
	_, _ = fmt.Fprintf(w, "Thread: %s\n", run.ThreadID)
	_, _ = fmt.Fprintf(w, "Where:  %s in %s\n", run.PlaceType, run.City)
	if run.Budget != nil {
		_, _ = fmt.Fprintf(w, "Budget: ₹%.0f\n", *run.Budget)
	}
	_, _ = fmt.Fprintln(w)

	if len(run.Recommendations) == 0 {
		PrintWarning(w, "no recommendation (%s)", run.Status)
	}
	for _, rec := range run.Recommendations {
		printRecommendation(w, rec)
	}

	if n := len(run.Messages); n > 0 && run.Messages[n-1].Role == model.RoleAssistant {
		_, _ = fmt.Fprintln(w)
		_, _ = colorDim.Fprintln(w, strings.TrimSpace(run.Messages[n-1].Content))
	}
	if run.Error != "" {
		PrintError(w, "%s", run.Error)
	}
}

func printRecommendation(w io.Writer, rec model.Recommendation) {
	if rec.IsWinner {
		_, _ = colorSuccess.Fprintf(w, "★ %d. %s", rec.Rank, rec.Name)
	} else {
		_, _ = fmt.Fprintf(w, "  %d. %s", rec.Rank, rec.Name)
	}
	_, _ = colorDim.Fprintf(w, "  score %.1f", rec.Score)
	if rec.Rating != nil {
		_, _ = colorDim.Fprintf(w, ", rated %.1f", *rec.Rating)
	}
	_, _ = fmt.Fprintln(w)

	if rec.Price != nil {
		_, _ = fmt.Fprintf(w, "     price ₹%.0f\n", *rec.Price)
	}
	if rec.Phone != "" {
		_, _ = fmt.Fprintf(w, "     phone %s\n", rec.Phone)
	}
	if rec.Reason != "" {
		_, _ = fmt.Fprintf(w, "     %s\n", rec.Reason)
	}
}
