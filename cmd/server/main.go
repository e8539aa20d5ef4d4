package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/forgo/negotiator/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		if !cli.IsSilentError(err) {
			_, _ = color.New(color.FgRed).Fprint(os.Stderr, "Error: ")
			_, _ = fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
