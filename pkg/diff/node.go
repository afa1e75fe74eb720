package diff

import (
	"time"

	"github.com/treediff/treediff/pkg/vfs"
)

// Status classifies one path in a two-way comparison
type Status string

const (
	// Same indicates files are identical
	Same Status = "same"
	// Different indicates files differ
	Different Status = "different"
	// OrphanLeft indicates the path exists only on the left side
	OrphanLeft Status = "orphan_left"
	// OrphanRight indicates the path exists only on the right side
	OrphanRight Status = "orphan_right"

	// unchecked marks a pair whose cheap signals matched ambiguously and
	// whose content still needs hash verification. It never appears in
	// results returned to callers.
	unchecked Status = "unchecked"
)

// Node is the comparison result for one relative path. Immutable once
// emitted. Left or Right is nil for orphans.
type Node struct {
	Path   string         `json:"path"`
	Left   *vfs.FileEntry `json:"left,omitempty"`
	Right  *vfs.FileEntry `json:"right,omitempty"`
	Status Status         `json:"status"`
	Reason string         `json:"reason,omitempty"`
}

// Side binds a VFS instance, a root path inside it, and the entries
// scanned from that root
type Side struct {
	FS      vfs.FS
	Root    string
	Entries []vfs.FileEntry
}

// fullPath maps a root-relative entry path back to a backend path
func (s Side) fullPath(rel string) string {
	if s.Root == "" || s.Root == "." {
		return rel
	}
	return s.Root + "/" + rel
}

// Stats summarizes a comparison run
type Stats struct {
	Total       int   `json:"total"`
	Same        int   `json:"same"`
	Different   int   `json:"different"`
	OrphanLeft  int   `json:"orphan_left"`
	OrphanRight int   `json:"orphan_right"`
	FilesHashed int64 `json:"files_hashed"`
}

// Report is the full result of one comparison run
type Report struct {
	ID            string    `json:"id"`
	LeftInstance  string    `json:"left_instance"`
	RightInstance string    `json:"right_instance"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Nodes         []Node    `json:"nodes"`
	Stats         Stats     `json:"stats"`
}

// HasDifferences reports whether any path is not Same
func (r *Report) HasDifferences() bool {
	return r.Stats.Different > 0 || r.Stats.OrphanLeft > 0 || r.Stats.OrphanRight > 0
}

// collectStats tallies node statuses
func collectStats(nodes []Node, hashed int64) Stats {
	stats := Stats{Total: len(nodes), FilesHashed: hashed}
	for _, node := range nodes {
		switch node.Status {
		case Same:
			stats.Same++
		case Different:
			stats.Different++
		case OrphanLeft:
			stats.OrphanLeft++
		case OrphanRight:
			stats.OrphanRight++
		}
	}
	return stats
}
