package output

import (
	"fmt"
	"io"
	"time"

	"github.com/treediff/treediff/pkg/diff"
)

// HumanFormatter formats reports in human-readable format
type HumanFormatter struct{}

// NewHumanFormatter creates a new human-readable formatter
func NewHumanFormatter() *HumanFormatter {
	return &HumanFormatter{}
}

// Name returns the formatter name
func (f *HumanFormatter) Name() string {
	return "human"
}

// Write renders the report grouped by status category
func (f *HumanFormatter) Write(w io.Writer, report *diff.Report) error {
	fmt.Fprintf(w, "Comparison Report\n")
	fmt.Fprintf(w, "=================\n\n")
	fmt.Fprintf(w, "Run ID: %s\n", report.ID)
	fmt.Fprintf(w, "Started: %s\n", report.StartTime.Format(time.RFC3339))
	fmt.Fprintf(w, "Duration: %s\n\n", report.EndTime.Sub(report.StartTime).Round(time.Millisecond))

	if !report.HasDifferences() {
		fmt.Fprintf(w, "Trees are identical (%d entries compared)\n", report.Stats.Total)
		return nil
	}

	// Group by status
	byStatus := make(map[diff.Status][]diff.Node)
	for _, node := range report.Nodes {
		if node.Status == diff.Same {
			continue
		}
		byStatus[node.Status] = append(byStatus[node.Status], node)
	}

	statusOrder := []diff.Status{
		diff.Different,
		diff.OrphanLeft,
		diff.OrphanRight,
	}

	statusLabels := map[diff.Status]string{
		diff.Different:   "Different",
		diff.OrphanLeft:  "Only on Left",
		diff.OrphanRight: "Only on Right",
	}

	for _, status := range statusOrder {
		nodes, exists := byStatus[status]
		if !exists || len(nodes) == 0 {
			continue
		}

		fmt.Fprintf(w, "%s (%d):\n", statusLabels[status], len(nodes))
		for _, node := range nodes {
			if node.Reason != "" {
				fmt.Fprintf(w, "  %s (%s)\n", node.Path, node.Reason)
			} else {
				fmt.Fprintf(w, "  %s\n", node.Path)
			}
		}
		fmt.Fprintf(w, "\n")
	}

	stats := report.Stats
	fmt.Fprintf(w, "Summary:\n")
	fmt.Fprintf(w, "  Total entries:  %d\n", stats.Total)
	fmt.Fprintf(w, "  Identical:      %d\n", stats.Same)
	fmt.Fprintf(w, "  Different:      %d\n", stats.Different)
	fmt.Fprintf(w, "  Left orphans:   %d\n", stats.OrphanLeft)
	fmt.Fprintf(w, "  Right orphans:  %d\n", stats.OrphanRight)
	fmt.Fprintf(w, "  Files hashed:   %d\n", stats.FilesHashed)

	return nil
}
