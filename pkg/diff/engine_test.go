package diff

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/treediff/treediff/pkg/hashcache"
	"github.com/treediff/treediff/pkg/scan"
	"github.com/treediff/treediff/pkg/vfs"
)

// testTree builds a local backend over files with fixed content and mtime
type testFile struct {
	content string
	modTime time.Time
}

var baseTime = time.Date(2024, 2, 10, 12, 0, 0, 0, time.UTC)

func testTree(t *testing.T, files map[string]testFile) vfs.FS {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "treediff-diff-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	for path, file := range files {
		fullPath := filepath.Join(tempDir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			t.Fatalf("failed to create dir: %v", err)
		}
		if err := os.WriteFile(fullPath, []byte(file.content), 0644); err != nil {
			t.Fatalf("failed to create file: %v", err)
		}
		if err := os.Chtimes(fullPath, file.modTime, file.modTime); err != nil {
			t.Fatalf("failed to set mtime: %v", err)
		}
	}

	fsys, err := vfs.NewLocal(tempDir)
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}
	t.Cleanup(func() { fsys.Close() })

	return fsys
}

func scanSide(t *testing.T, fsys vfs.FS) Side {
	t.Helper()

	entries, err := scan.New(scan.Options{}, nil).Scan(context.Background(), fsys, "")
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	return Side{FS: fsys, Entries: entries}
}

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()

	if opts.MaxWorkers == 0 {
		opts.MaxWorkers = 2
	}
	if opts.ModTimeWindow == 0 {
		opts.ModTimeWindow = time.Second
	}
	return NewEngine(hashcache.NewMemory(), opts, nil)
}

func nodeByPath(nodes []Node, path string) *Node {
	for i := range nodes {
		if nodes[i].Path == path {
			return &nodes[i]
		}
	}
	return nil
}

// TestCompareCheapSignals tests the decisions that never read content
func TestCompareCheapSignals(t *testing.T) {
	ctx := context.Background()

	t.Run("SizeDiffersNoHashing", func(t *testing.T) {
		left := testTree(t, map[string]testFile{
			"a.txt": {"short", baseTime},
		})
		right := testTree(t, map[string]testFile{
			"a.txt": {"much longer content", baseTime},
		})

		engine := newTestEngine(t, Options{})
		nodes, err := engine.Compare(ctx, scanSide(t, left), scanSide(t, right))
		if err != nil {
			t.Fatalf("Compare() error = %v", err)
		}

		node := nodeByPath(nodes, "a.txt")
		if node == nil || node.Status != Different {
			t.Fatalf("a.txt status = %v, want Different", node)
		}
		if engine.HashCount() != 0 {
			t.Errorf("HashCount() = %d, size mismatch must not hash", engine.HashCount())
		}
	})

	t.Run("SizeAndMtimeMatchTrusted", func(t *testing.T) {
		// Same size and mtime but different bytes: the fast path reports
		// Same without reading either file
		left := testTree(t, map[string]testFile{
			"a.txt": {"aaaa", baseTime},
		})
		right := testTree(t, map[string]testFile{
			"a.txt": {"bbbb", baseTime},
		})

		engine := newTestEngine(t, Options{})
		nodes, err := engine.Compare(ctx, scanSide(t, left), scanSide(t, right))
		if err != nil {
			t.Fatalf("Compare() error = %v", err)
		}

		node := nodeByPath(nodes, "a.txt")
		if node == nil || node.Status != Same {
			t.Fatalf("a.txt status = %v, want Same (trusted metadata)", node)
		}
		if engine.HashCount() != 0 {
			t.Errorf("HashCount() = %d, fast path must not hash", engine.HashCount())
		}
	})

	t.Run("MtimeWithinWindow", func(t *testing.T) {
		left := testTree(t, map[string]testFile{
			"a.txt": {"same", baseTime},
		})
		right := testTree(t, map[string]testFile{
			"a.txt": {"same", baseTime.Add(500 * time.Millisecond)},
		})

		engine := newTestEngine(t, Options{ModTimeWindow: time.Second})
		nodes, err := engine.Compare(ctx, scanSide(t, left), scanSide(t, right))
		if err != nil {
			t.Fatalf("Compare() error = %v", err)
		}

		if node := nodeByPath(nodes, "a.txt"); node.Status != Same {
			t.Errorf("status = %v, want Same within mtime window", node.Status)
		}
		if engine.HashCount() != 0 {
			t.Errorf("HashCount() = %d, want 0", engine.HashCount())
		}
	})

	t.Run("TypeMismatch", func(t *testing.T) {
		left := testTree(t, map[string]testFile{
			"thing/inner.txt": {"x", baseTime},
		})
		right := testTree(t, map[string]testFile{
			"thing": {"a plain file", baseTime},
		})

		engine := newTestEngine(t, Options{})
		nodes, err := engine.Compare(ctx, scanSide(t, left), scanSide(t, right))
		if err != nil {
			t.Fatalf("Compare() error = %v", err)
		}

		if node := nodeByPath(nodes, "thing"); node.Status != Different {
			t.Errorf("status = %v, want Different for dir-vs-file", node.Status)
		}
	})

	t.Run("DirectoriesAlwaysSame", func(t *testing.T) {
		left := testTree(t, map[string]testFile{
			"dir/f.txt": {"left", baseTime},
		})
		right := testTree(t, map[string]testFile{
			"dir/f.txt": {"right but longer", baseTime},
		})

		engine := newTestEngine(t, Options{})
		nodes, err := engine.Compare(ctx, scanSide(t, left), scanSide(t, right))
		if err != nil {
			t.Fatalf("Compare() error = %v", err)
		}

		if node := nodeByPath(nodes, "dir"); node.Status != Same {
			t.Errorf("dir status = %v, directories are aligned, never diffed", node.Status)
		}
		if node := nodeByPath(nodes, "dir/f.txt"); node.Status != Different {
			t.Errorf("dir/f.txt status = %v, want Different", node.Status)
		}
	})
}

// TestCompareHashResolution tests the pairs that require content hashing
func TestCompareHashResolution(t *testing.T) {
	ctx := context.Background()

	t.Run("MtimeDiffersSameContent", func(t *testing.T) {
		left := testTree(t, map[string]testFile{
			"a.txt": {"identical", baseTime},
		})
		right := testTree(t, map[string]testFile{
			"a.txt": {"identical", baseTime.Add(time.Hour)},
		})

		engine := newTestEngine(t, Options{})
		nodes, err := engine.Compare(ctx, scanSide(t, left), scanSide(t, right))
		if err != nil {
			t.Fatalf("Compare() error = %v", err)
		}

		if node := nodeByPath(nodes, "a.txt"); node.Status != Same {
			t.Errorf("status = %v, want Same after hash check", node.Status)
		}
		if engine.HashCount() != 2 {
			t.Errorf("HashCount() = %d, want 2 (both sides hashed)", engine.HashCount())
		}
	})

	t.Run("MtimeDiffersDifferentContent", func(t *testing.T) {
		left := testTree(t, map[string]testFile{
			"a.txt": {"AAAA", baseTime},
		})
		right := testTree(t, map[string]testFile{
			"a.txt": {"BBBB", baseTime.Add(time.Hour)},
		})

		engine := newTestEngine(t, Options{})
		nodes, err := engine.Compare(ctx, scanSide(t, left), scanSide(t, right))
		if err != nil {
			t.Fatalf("Compare() error = %v", err)
		}

		if node := nodeByPath(nodes, "a.txt"); node.Status != Different {
			t.Errorf("status = %v, want Different", node.Status)
		}
	})

	t.Run("VerifyHashForcesHashing", func(t *testing.T) {
		// Equal size and mtime, different bytes: VerifyHash catches it
		left := testTree(t, map[string]testFile{
			"a.txt": {"aaaa", baseTime},
		})
		right := testTree(t, map[string]testFile{
			"a.txt": {"bbbb", baseTime},
		})

		engine := newTestEngine(t, Options{VerifyHash: true})
		nodes, err := engine.Compare(ctx, scanSide(t, left), scanSide(t, right))
		if err != nil {
			t.Fatalf("Compare() error = %v", err)
		}

		if node := nodeByPath(nodes, "a.txt"); node.Status != Different {
			t.Errorf("status = %v, VerifyHash should detect the difference", node.Status)
		}
		if engine.HashCount() != 2 {
			t.Errorf("HashCount() = %d, want 2", engine.HashCount())
		}
	})

	t.Run("CacheAvoidsRehashing", func(t *testing.T) {
		left := testTree(t, map[string]testFile{
			"a.txt": {"identical", baseTime},
		})
		right := testTree(t, map[string]testFile{
			"a.txt": {"identical", baseTime.Add(time.Hour)},
		})

		engine := newTestEngine(t, Options{})
		leftSide, rightSide := scanSide(t, left), scanSide(t, right)

		if _, err := engine.Compare(ctx, leftSide, rightSide); err != nil {
			t.Fatalf("Compare() error = %v", err)
		}
		first := engine.HashCount()
		if first != 2 {
			t.Fatalf("HashCount() after first run = %d, want 2", first)
		}

		if _, err := engine.Compare(ctx, leftSide, rightSide); err != nil {
			t.Fatalf("second Compare() error = %v", err)
		}
		if engine.HashCount() != first {
			t.Errorf("HashCount() = %d after second run, cache should absorb all reads", engine.HashCount())
		}
	})
}

// TestCompareCancelledContext verifies a cancelled context fails the
// comparison instead of returning nodes that were never hash-verified
func TestCompareCancelledContext(t *testing.T) {
	left := testTree(t, map[string]testFile{
		"a.txt": {"same", baseTime},
	})
	right := testTree(t, map[string]testFile{
		"a.txt": {"same", baseTime.Add(time.Hour)},
	})

	engine := newTestEngine(t, Options{})
	leftSide := scanSide(t, left)
	rightSide := scanSide(t, right)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	nodes, err := engine.Compare(ctx, leftSide, rightSide)
	if err == nil {
		t.Fatal("Compare() with cancelled context returned nil error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Compare() error = %v, want context.Canceled", err)
	}
	for _, node := range nodes {
		if node.Status == unchecked {
			t.Errorf("node %s returned with unresolved status", node.Path)
		}
	}
}

// TestCompareOrphans tests one-sided paths
func TestCompareOrphans(t *testing.T) {
	ctx := context.Background()

	left := testTree(t, map[string]testFile{
		"both.txt":      {"x", baseTime},
		"left-only.txt": {"l", baseTime},
	})
	right := testTree(t, map[string]testFile{
		"both.txt":       {"x", baseTime},
		"right-only.txt": {"r", baseTime},
	})

	engine := newTestEngine(t, Options{})
	nodes, err := engine.Compare(ctx, scanSide(t, left), scanSide(t, right))
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}

	if node := nodeByPath(nodes, "left-only.txt"); node == nil || node.Status != OrphanLeft {
		t.Errorf("left-only.txt = %v, want OrphanLeft", node)
	}
	if node := nodeByPath(nodes, "right-only.txt"); node == nil || node.Status != OrphanRight {
		t.Errorf("right-only.txt = %v, want OrphanRight", node)
	}

	orphan := nodeByPath(nodes, "left-only.txt")
	if orphan.Right != nil {
		t.Error("OrphanLeft node should have nil Right")
	}
	if orphan.Left == nil {
		t.Error("OrphanLeft node should carry the Left entry")
	}
}

// TestCompareTrees tests the scan-and-compare entry point
func TestCompareTrees(t *testing.T) {
	ctx := context.Background()

	left := testTree(t, map[string]testFile{
		"same.txt":    {"same", baseTime},
		"changed.txt": {"old content!", baseTime},
		"extra.txt":   {"extra", baseTime},
	})
	right := testTree(t, map[string]testFile{
		"same.txt":    {"same", baseTime},
		"changed.txt": {"new content.", baseTime.Add(time.Hour)},
	})

	engine := newTestEngine(t, Options{})
	scanner := scan.New(scan.Options{}, nil)

	report, err := engine.CompareTrees(ctx, left, right, "", "", scanner)
	if err != nil {
		t.Fatalf("CompareTrees() error = %v", err)
	}

	if report.ID == "" {
		t.Error("report should carry a run ID")
	}
	if report.LeftInstance != left.InstanceID() || report.RightInstance != right.InstanceID() {
		t.Error("report should record both instance IDs")
	}
	if report.EndTime.Before(report.StartTime) {
		t.Error("EndTime should not precede StartTime")
	}

	if !report.HasDifferences() {
		t.Fatal("HasDifferences() should be true")
	}

	stats := report.Stats
	if stats.Total != 3 {
		t.Errorf("Stats.Total = %d, want 3", stats.Total)
	}
	if stats.Same != 1 {
		t.Errorf("Stats.Same = %d, want 1", stats.Same)
	}
	if stats.Different != 1 {
		t.Errorf("Stats.Different = %d, want 1", stats.Different)
	}
	if stats.OrphanLeft != 1 {
		t.Errorf("Stats.OrphanLeft = %d, want 1", stats.OrphanLeft)
	}
	// changed.txt has equal sizes but different mtimes, so both sides
	// were hashed
	if stats.FilesHashed != 2 {
		t.Errorf("Stats.FilesHashed = %d, want 2", stats.FilesHashed)
	}
}

// TestCompareProgress tests that the progress callback fires per hashed pair
func TestCompareProgress(t *testing.T) {
	ctx := context.Background()

	left := testTree(t, map[string]testFile{
		"a.txt": {"aaa", baseTime},
		"b.txt": {"bbb", baseTime},
	})
	right := testTree(t, map[string]testFile{
		"a.txt": {"aaa", baseTime.Add(time.Hour)},
		"b.txt": {"bbb", baseTime.Add(time.Hour)},
	})

	engine := newTestEngine(t, Options{MaxWorkers: 1})

	var updates []int
	engine.SetProgressCallback(func(done, total int) {
		if total != 2 {
			t.Errorf("progress total = %d, want 2", total)
		}
		updates = append(updates, done)
	})

	if _, err := engine.Compare(ctx, scanSide(t, left), scanSide(t, right)); err != nil {
		t.Fatalf("Compare() error = %v", err)
	}

	if len(updates) != 2 {
		t.Errorf("got %d progress updates, want 2", len(updates))
	}
}
