package output

import (
	"encoding/json"
	"io"

	"github.com/treediff/treediff/pkg/diff"
)

// JSONFormatter formats reports as JSON for automation and scripting
type JSONFormatter struct{}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// Name returns the formatter name
func (f *JSONFormatter) Name() string {
	return "json"
}

// Write encodes the full report as indented JSON
func (f *JSONFormatter) Write(w io.Writer, report *diff.Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
