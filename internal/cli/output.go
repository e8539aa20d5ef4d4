package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

var (
	colorError     = color.New(color.FgRed)
	colorWarning   = color.New(color.FgYellow)
	colorSuccess   = color.New(color.FgGreen)
	colorHeader    = color.New(color.FgGreen)
	colorSeparator = color.New(color.FgMagenta)
	colorDim       = color.New(color.Faint)
)

// PrintError prints an error message in red.
func PrintError(w io.Writer, format string, args ...interface{}) {
	_, _ = colorError.Fprint(w, "Error: ")
	_, _ = fmt.Fprintf(w, format, args...)
	_, _ = fmt.Fprintln(w)
}

// PrintWarning prints a warning message in yellow.
func PrintWarning(w io.Writer, format string, args ...interface{}) {
	_, _ = colorWarning.Fprint(w, "Warning: ")
	_, _ = fmt.Fprintf(w, format, args...)
	_, _ = fmt.Fprintln(w)
}

// PrintHeader prints a header in green with a leading blank line.
func PrintHeader(w io.Writer, text string) {
	_, _ = fmt.Fprintln(w)
	_, _ = colorHeader.Fprintln(w, text)
}

// PrintSeparator prints a separator line in magenta.
func PrintSeparator(w io.Writer) {
	_, _ = colorSeparator.Fprintln(w, strings.Repeat("─", 59))
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeYAML renders v as block YAML with the same keys and field order as
// its JSON encoding. JSON is valid YAML, so it is decoded into a node tree
// and re-emitted without the flow styles it was parsed with.
func writeYAML(w io.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	clearStyle(&doc)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return err
	}
	return enc.Close()
}

func clearStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		clearStyle(c)
	}
}
