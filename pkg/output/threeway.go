package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/treediff/treediff/pkg/diff"
)

// WriteThreeWay renders a three-way comparison result.
// Format can be "human" or "json".
func WriteThreeWay(w io.Writer, nodes []diff.ThreeWayNode, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(nodes)
	case "human", "":
		return writeThreeWayHuman(w, nodes)
	default:
		return fmt.Errorf("unknown output format: %q", format)
	}
}

func writeThreeWayHuman(w io.Writer, nodes []diff.ThreeWayNode) error {
	byStatus := make(map[diff.ThreeWayStatus][]diff.ThreeWayNode)
	same := 0
	for _, node := range nodes {
		if node.Status == diff.AllSame {
			same++
			continue
		}
		byStatus[node.Status] = append(byStatus[node.Status], node)
	}

	statusOrder := []diff.ThreeWayStatus{
		diff.Conflict,
		diff.LeftChanged,
		diff.RightChanged,
		diff.BothAdded,
		diff.LeftOnly,
		diff.RightOnly,
		diff.OneSideDeleted,
		diff.BaseOnly,
	}

	statusLabels := map[diff.ThreeWayStatus]string{
		diff.Conflict:       "Conflicts",
		diff.LeftChanged:    "Changed on Left",
		diff.RightChanged:   "Changed on Right",
		diff.BothAdded:      "Added on Both Sides",
		diff.LeftOnly:       "Added on Left",
		diff.RightOnly:      "Added on Right",
		diff.OneSideDeleted: "Deleted on One Side",
		diff.BaseOnly:       "Deleted on Both Sides",
	}

	fmt.Fprintf(w, "Three-Way Comparison\n")
	fmt.Fprintf(w, "====================\n\n")

	if len(byStatus) == 0 {
		fmt.Fprintf(w, "All three trees are identical (%d entries compared)\n", same)
		return nil
	}

	for _, status := range statusOrder {
		group, exists := byStatus[status]
		if !exists || len(group) == 0 {
			continue
		}

		fmt.Fprintf(w, "%s (%d):\n", statusLabels[status], len(group))
		for _, node := range group {
			if node.Reason != "" {
				fmt.Fprintf(w, "  %s (%s)\n", node.Path, node.Reason)
			} else {
				fmt.Fprintf(w, "  %s\n", node.Path)
			}
		}
		fmt.Fprintf(w, "\n")
	}

	fmt.Fprintf(w, "Summary: %d entries, %d unchanged, %d diverged\n",
		len(nodes), same, len(nodes)-same)

	return nil
}
