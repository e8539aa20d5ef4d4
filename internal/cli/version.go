package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func addVersionCommand(parent *cobra.Command) {
	parent.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "negotiator %s\n", version)
			_, _ = fmt.Fprintf(w, "  commit:   %s\n", commit)
			_, _ = fmt.Fprintf(w, "  built:    %s\n", buildDate)
			_, _ = fmt.Fprintf(w, "  go:       %s\n", runtime.Version())
			_, _ = fmt.Fprintf(w, "  platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
			return nil
		},
	})
}
