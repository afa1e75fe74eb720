package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/treediff/treediff/pkg/diff"
	"github.com/treediff/treediff/pkg/vfs"
)

func sampleReport() *diff.Report {
	entry := func(path string, size int64) *vfs.FileEntry {
		return &vfs.FileEntry{Path: path, Size: size, ModTime: time.Unix(1700000000, 0)}
	}

	return &diff.Report{
		ID:            "run-1234",
		LeftInstance:  "/tmp/left",
		RightInstance: "/tmp/right",
		StartTime:     time.Unix(1700000000, 0),
		EndTime:       time.Unix(1700000002, 0),
		Nodes: []diff.Node{
			{Path: "same.txt", Left: entry("same.txt", 5), Right: entry("same.txt", 5), Status: diff.Same},
			{Path: "diff.txt", Left: entry("diff.txt", 5), Right: entry("diff.txt", 9), Status: diff.Different, Reason: "file sizes differ"},
			{Path: "only-left.txt", Left: entry("only-left.txt", 3), Status: diff.OrphanLeft, Reason: "exists only on left side"},
		},
		Stats: diff.Stats{Total: 3, Same: 1, Different: 1, OrphanLeft: 1},
	}
}

// TestNew tests formatter selection
func TestNew(t *testing.T) {
	tests := []struct {
		format   string
		wantName string
		wantErr  bool
	}{
		{"human", "human", false},
		{"", "human", false},
		{"json", "json", false},
		{"yaml", "", true},
	}

	for _, tt := range tests {
		formatter, err := New(tt.format)
		if (err != nil) != tt.wantErr {
			t.Errorf("New(%q) error = %v, wantErr %v", tt.format, err, tt.wantErr)
			continue
		}
		if err == nil && formatter.Name() != tt.wantName {
			t.Errorf("New(%q).Name() = %q, want %q", tt.format, formatter.Name(), tt.wantName)
		}
	}
}

// TestHumanFormatter tests the grouped human-readable rendering
func TestHumanFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewHumanFormatter().Write(&buf, sampleReport()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"run-1234",
		"Different (1):",
		"diff.txt (file sizes differ)",
		"Only on Left (1):",
		"only-left.txt",
		"Identical:      1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}

	// Identical paths are summarized, not listed
	if strings.Contains(out, "same.txt") {
		t.Error("identical paths should not be listed individually")
	}
}

// TestHumanFormatterIdenticalTrees tests the no-differences rendering
func TestHumanFormatterIdenticalTrees(t *testing.T) {
	report := sampleReport()
	report.Nodes = report.Nodes[:1]
	report.Stats = diff.Stats{Total: 1, Same: 1}

	var buf bytes.Buffer
	if err := NewHumanFormatter().Write(&buf, report); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if !strings.Contains(buf.String(), "Trees are identical") {
		t.Errorf("output should declare identical trees:\n%s", buf.String())
	}
}

// TestJSONFormatter tests that JSON output round-trips
func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewJSONFormatter().Write(&buf, sampleReport()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	var decoded diff.Report
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}

	if decoded.ID != "run-1234" {
		t.Errorf("ID = %q, want run-1234", decoded.ID)
	}
	if len(decoded.Nodes) != 3 {
		t.Errorf("Nodes = %d, want 3", len(decoded.Nodes))
	}
	if decoded.Stats.Different != 1 {
		t.Errorf("Stats.Different = %d, want 1", decoded.Stats.Different)
	}
}

// TestWriteThreeWay tests three-way rendering
func TestWriteThreeWay(t *testing.T) {
	nodes := []diff.ThreeWayNode{
		{Path: "ok.txt", Status: diff.AllSame},
		{Path: "both.txt", Status: diff.Conflict, Reason: "both sides changed differently"},
		{Path: "l.txt", Status: diff.LeftOnly, Reason: "added on left side"},
	}

	t.Run("Human", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteThreeWay(&buf, nodes, "human"); err != nil {
			t.Fatalf("WriteThreeWay() error = %v", err)
		}

		out := buf.String()
		for _, want := range []string{"Conflicts (1):", "both.txt", "Added on Left (1):", "3 entries, 1 unchanged, 2 diverged"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q\n%s", want, out)
			}
		}
	})

	t.Run("JSON", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteThreeWay(&buf, nodes, "json"); err != nil {
			t.Fatalf("WriteThreeWay() error = %v", err)
		}

		var decoded []diff.ThreeWayNode
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if len(decoded) != 3 {
			t.Errorf("decoded %d nodes, want 3", len(decoded))
		}
	})

	t.Run("UnknownFormat", func(t *testing.T) {
		if err := WriteThreeWay(&bytes.Buffer{}, nodes, "xml"); err == nil {
			t.Error("WriteThreeWay() should reject unknown formats")
		}
	})
}
