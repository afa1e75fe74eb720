// Package output renders comparison reports for terminals and automation.
package output

import (
	"fmt"
	"io"

	"github.com/treediff/treediff/pkg/diff"
)

// Formatter defines the interface for report formatting
// Implementations include human-readable and JSON formatters
type Formatter interface {
	// Write renders the report to w
	Write(w io.Writer, report *diff.Report) error

	// Name returns the formatter name
	Name() string
}

// New returns the formatter for the given format name.
// Supported formats are "human" and "json".
func New(format string) (Formatter, error) {
	switch format {
	case "human", "":
		return NewHumanFormatter(), nil
	case "json":
		return NewJSONFormatter(), nil
	default:
		return nil, fmt.Errorf("unknown output format: %q", format)
	}
}
