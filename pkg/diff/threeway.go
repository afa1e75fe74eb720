package diff

import (
	"context"

	"github.com/treediff/treediff/pkg/vfs"
)

// ThreeWayStatus classifies one path in a base/left/right comparison
type ThreeWayStatus string

const (
	// AllSame indicates all three sides are identical
	AllSame ThreeWayStatus = "all_same"
	// LeftChanged indicates only the left side diverged from base
	LeftChanged ThreeWayStatus = "left_changed"
	// RightChanged indicates only the right side diverged from base
	RightChanged ThreeWayStatus = "right_changed"
	// Conflict indicates both sides diverged from base
	Conflict ThreeWayStatus = "conflict"
	// BaseOnly indicates the path was deleted on both sides
	BaseOnly ThreeWayStatus = "base_only"
	// LeftOnly indicates the path was added on the left side only
	LeftOnly ThreeWayStatus = "left_only"
	// RightOnly indicates the path was added on the right side only
	RightOnly ThreeWayStatus = "right_only"
	// BothAdded indicates the path was added on both sides but not base
	BothAdded ThreeWayStatus = "both_added"
	// OneSideDeleted indicates the path exists in base and exactly one side
	OneSideDeleted ThreeWayStatus = "one_side_deleted"
)

// ThreeWayNode is the comparison result for one relative path across
// base, left and right. Immutable once emitted.
type ThreeWayNode struct {
	Path   string         `json:"path"`
	Base   *vfs.FileEntry `json:"base,omitempty"`
	Left   *vfs.FileEntry `json:"left,omitempty"`
	Right  *vfs.FileEntry `json:"right,omitempty"`
	Status ThreeWayStatus `json:"status"`
	Reason string         `json:"reason,omitempty"`
}

// CompareThreeWay aligns three entry lists by relative path. The mechanics
// are the two-way alignment applied pairwise: each present pair is checked
// with the same cheap-before-expensive policy and the same hash cache.
// The emitted order is base order, then left-only additions, then
// right-only additions.
func (e *Engine) CompareThreeWay(ctx context.Context, base, left, right Side) ([]ThreeWayNode, error) {
	baseIdx := indexEntries(base.Entries)
	leftIdx := indexEntries(left.Entries)
	rightIdx := indexEntries(right.Entries)

	nodes := make([]ThreeWayNode, 0, len(base.Entries))

	for i := range base.Entries {
		b := &base.Entries[i]
		node, err := e.classifyThreeWay(ctx, base, left, right, b.Path, b, leftIdx[b.Path], rightIdx[b.Path])
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}

	for i := range left.Entries {
		l := &left.Entries[i]
		if _, inBase := baseIdx[l.Path]; inBase {
			continue
		}
		node, err := e.classifyThreeWay(ctx, base, left, right, l.Path, nil, l, rightIdx[l.Path])
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}

	for i := range right.Entries {
		r := &right.Entries[i]
		if _, inBase := baseIdx[r.Path]; inBase {
			continue
		}
		if _, inLeft := leftIdx[r.Path]; inLeft {
			continue
		}
		nodes = append(nodes, ThreeWayNode{
			Path:   r.Path,
			Right:  r,
			Status: RightOnly,
			Reason: "added on right side",
		})
	}

	return nodes, nil
}

// classifyThreeWay resolves one path given its presence on each side
func (e *Engine) classifyThreeWay(ctx context.Context, base, left, right Side, path string, b, l, r *vfs.FileEntry) (ThreeWayNode, error) {
	node := ThreeWayNode{Path: path, Base: b, Left: l, Right: r}

	switch {
	case b != nil && l != nil && r != nil:
		baseLeftEqual, err := e.pairEqual(ctx, base, left, b, l)
		if err != nil {
			return node, err
		}
		baseRightEqual, err := e.pairEqual(ctx, base, right, b, r)
		if err != nil {
			return node, err
		}

		switch {
		case baseLeftEqual && baseRightEqual:
			node.Status = AllSame
		case baseRightEqual:
			node.Status = LeftChanged
			node.Reason = "left side diverged from base"
		case baseLeftEqual:
			node.Status = RightChanged
			node.Reason = "right side diverged from base"
		default:
			node.Status = Conflict
			leftRightEqual, err := e.pairEqual(ctx, left, right, l, r)
			if err != nil {
				return node, err
			}
			if leftRightEqual {
				node.Reason = "both sides changed identically"
			} else {
				node.Reason = "both sides changed differently"
			}
		}

	case b != nil && l != nil:
		node.Status = OneSideDeleted
		node.Reason = "deleted on right side"

	case b != nil && r != nil:
		node.Status = OneSideDeleted
		node.Reason = "deleted on left side"

	case b != nil:
		node.Status = BaseOnly
		node.Reason = "deleted on both sides"

	case l != nil && r != nil:
		node.Status = BothAdded
		equal, err := e.pairEqual(ctx, left, right, l, r)
		if err != nil {
			return node, err
		}
		if equal {
			node.Reason = "added on both sides with identical content"
		} else {
			node.Reason = "added on both sides with different content"
		}

	case l != nil:
		node.Status = LeftOnly
		node.Reason = "added on left side"
	}

	return node, nil
}

// pairEqual applies the two-way decision table to one present pair,
// hashing through the cache only when cheap signals are ambiguous
func (e *Engine) pairEqual(ctx context.Context, sideA, sideB Side, a, b *vfs.FileEntry) (bool, error) {
	status, _ := e.classify(a, b)
	switch status {
	case Same:
		return true, nil
	case Different:
		return false, nil
	default:
		return e.hashEqual(ctx, sideA, sideB, a, b)
	}
}
