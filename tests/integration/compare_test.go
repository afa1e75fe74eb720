package integration

import (
	"archive/tar"
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/treediff/treediff/pkg/diff"
	"github.com/treediff/treediff/pkg/hashcache"
	"github.com/treediff/treediff/pkg/scan"
	"github.com/treediff/treediff/pkg/vfs"
)

var stamp = time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

// TestHelper provides utilities for integration tests
type TestHelper struct {
	t       *testing.T
	tempDir string
}

// NewTestHelper creates a new integration test helper
func NewTestHelper(t *testing.T) *TestHelper {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "treediff-integration-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	return &TestHelper{t: t, tempDir: tempDir}
}

// LocalTree writes files into a fresh directory and opens it as a backend
func (h *TestHelper) LocalTree(name string, files map[string]string) vfs.FS {
	h.t.Helper()

	dir := filepath.Join(h.tempDir, name)
	for path, content := range files {
		fullPath := filepath.Join(dir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			h.t.Fatalf("failed to create dir: %v", err)
		}
		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			h.t.Fatalf("failed to write file: %v", err)
		}
		if err := os.Chtimes(fullPath, stamp, stamp); err != nil {
			h.t.Fatalf("failed to set mtime: %v", err)
		}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		h.t.Fatalf("failed to create dir: %v", err)
	}

	fsys, err := vfs.NewLocal(dir)
	if err != nil {
		h.t.Fatalf("NewLocal() error = %v", err)
	}
	h.t.Cleanup(func() { fsys.Close() })

	return fsys
}

// ZipTree writes files into a fresh ZIP archive and opens it as a backend
func (h *TestHelper) ZipTree(name string, files map[string]string) vfs.FS {
	h.t.Helper()

	archivePath := filepath.Join(h.tempDir, name)
	file, err := os.Create(archivePath)
	if err != nil {
		h.t.Fatalf("failed to create archive: %v", err)
	}

	writer := zip.NewWriter(file)
	for entryName, content := range files {
		header := &zip.FileHeader{Name: entryName, Method: zip.Deflate, Modified: stamp}
		entry, err := writer.CreateHeader(header)
		if err != nil {
			h.t.Fatalf("failed to create entry: %v", err)
		}
		if _, err := entry.Write([]byte(content)); err != nil {
			h.t.Fatalf("failed to write entry: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		h.t.Fatalf("failed to close writer: %v", err)
	}
	if err := file.Close(); err != nil {
		h.t.Fatalf("failed to close archive: %v", err)
	}

	fsys, err := vfs.NewZip(archivePath)
	if err != nil {
		h.t.Fatalf("NewZip() error = %v", err)
	}
	h.t.Cleanup(func() { fsys.Close() })

	return fsys
}

// TarTree writes files into a fresh tar.gz archive and opens it as a backend
func (h *TestHelper) TarTree(name string, files map[string]string) vfs.FS {
	h.t.Helper()

	archivePath := filepath.Join(h.tempDir, name)
	file, err := os.Create(archivePath)
	if err != nil {
		h.t.Fatalf("failed to create archive: %v", err)
	}

	gz := gzip.NewWriter(file)
	writer := tar.NewWriter(gz)
	for entryName, content := range files {
		header := &tar.Header{Name: entryName, Mode: 0644, Size: int64(len(content)), ModTime: stamp}
		if err := writer.WriteHeader(header); err != nil {
			h.t.Fatalf("failed to write header: %v", err)
		}
		if _, err := io.WriteString(writer, content); err != nil {
			h.t.Fatalf("failed to write entry: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		h.t.Fatalf("failed to close tar writer: %v", err)
	}
	if err := gz.Close(); err != nil {
		h.t.Fatalf("failed to close gzip writer: %v", err)
	}
	if err := file.Close(); err != nil {
		h.t.Fatalf("failed to close archive: %v", err)
	}

	fsys, err := vfs.NewTar(archivePath)
	if err != nil {
		h.t.Fatalf("NewTar() error = %v", err)
	}
	h.t.Cleanup(func() { fsys.Close() })

	return fsys
}

// Compare runs a full scan-and-compare between two backends
func (h *TestHelper) Compare(left, right vfs.FS, opts diff.Options) *diff.Report {
	h.t.Helper()

	if opts.MaxWorkers == 0 {
		opts.MaxWorkers = 2
	}
	if opts.ModTimeWindow == 0 {
		opts.ModTimeWindow = time.Second
	}

	engine := diff.NewEngine(hashcache.NewMemory(), opts, nil)
	scanner := scan.New(scan.Options{}, nil)

	report, err := engine.CompareTrees(context.Background(), left, right, "", "", scanner)
	if err != nil {
		h.t.Fatalf("CompareTrees() error = %v", err)
	}
	return report
}

// TestLocalVsZip compares a directory against a ZIP archive of the same tree
func TestLocalVsZip(t *testing.T) {
	h := NewTestHelper(t)

	files := map[string]string{
		"readme.md":   "# project",
		"src/main.go": "package main",
	}

	local := h.LocalTree("local", files)
	zipped := h.ZipTree("tree.zip", files)

	t.Run("IdenticalContent", func(t *testing.T) {
		// Archive and filesystem mtimes rarely agree exactly, so force
		// hashing to prove the contents match across backends
		report := h.Compare(local, zipped, diff.Options{VerifyHash: true})

		if report.HasDifferences() {
			t.Errorf("identical trees reported differences: %+v", report.Stats)
			for _, node := range report.Nodes {
				if node.Status != diff.Same {
					t.Logf("  %s: %s (%s)", node.Path, node.Status, node.Reason)
				}
			}
		}
	})

	t.Run("ContentDrift", func(t *testing.T) {
		drifted := h.ZipTree("drift.zip", map[string]string{
			"readme.md":   "# project!!", // longer
			"src/main.go": "package main",
		})

		report := h.Compare(local, drifted, diff.Options{VerifyHash: true})
		if !report.HasDifferences() {
			t.Fatal("drifted trees should differ")
		}
		if report.Stats.Different != 1 {
			t.Errorf("Different = %d, want 1", report.Stats.Different)
		}
	})
}

// TestZipVsTar compares two archive backends directly
func TestZipVsTar(t *testing.T) {
	h := NewTestHelper(t)

	files := map[string]string{
		"data/a.csv": "1,2,3",
		"data/b.csv": "4,5,6",
		"notes.txt":  "hello",
	}

	zipped := h.ZipTree("tree.zip", files)
	tarred := h.TarTree("tree.tar.gz", files)

	report := h.Compare(zipped, tarred, diff.Options{VerifyHash: true})
	if report.HasDifferences() {
		t.Errorf("equivalent archives reported differences: %+v", report.Stats)
	}

	// Both sides carry the same logical paths
	if report.Stats.Total != 4 {
		t.Errorf("Total = %d, want 4 (3 files + 1 dir)", report.Stats.Total)
	}
}

// TestOrphansAcrossBackends tests one-sided paths between backend kinds
func TestOrphansAcrossBackends(t *testing.T) {
	h := NewTestHelper(t)

	local := h.LocalTree("local", map[string]string{
		"shared.txt": "s",
		"only-local": "l",
	})
	tarred := h.TarTree("tree.tgz", map[string]string{
		"shared.txt": "s",
		"only-tar":   "t",
	})

	report := h.Compare(local, tarred, diff.Options{VerifyHash: true})

	var left, right int
	for _, node := range report.Nodes {
		switch node.Status {
		case diff.OrphanLeft:
			left++
		case diff.OrphanRight:
			right++
		}
	}
	if left != 1 || right != 1 {
		t.Errorf("orphans = (%d, %d), want (1, 1)", left, right)
	}
}

// TestPersistentCacheAcrossRuns tests that a disk cache carries hashes
// between engine instances
func TestPersistentCacheAcrossRuns(t *testing.T) {
	h := NewTestHelper(t)

	files := map[string]string{"big.txt": "some file content"}
	left := h.LocalTree("left", files)
	right := h.LocalTree("right", files)

	cacheDir := filepath.Join(h.tempDir, "cache")
	opts := diff.Options{VerifyHash: true, MaxWorkers: 2, ModTimeWindow: time.Second}
	scanner := scan.New(scan.Options{}, nil)
	ctx := context.Background()

	cache1, err := hashcache.New(cacheDir, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	engine1 := diff.NewEngine(cache1, opts, nil)
	if _, err := engine1.CompareTrees(ctx, left, right, "", "", scanner); err != nil {
		t.Fatalf("CompareTrees() error = %v", err)
	}
	if engine1.HashCount() != 2 {
		t.Fatalf("first run HashCount() = %d, want 2", engine1.HashCount())
	}
	if err := engine1.PersistCache(); err != nil {
		t.Fatalf("PersistCache() error = %v", err)
	}

	// A fresh engine over the persisted cache re-hashes nothing
	cache2, err := hashcache.New(cacheDir, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	engine2 := diff.NewEngine(cache2, opts, nil)
	report, err := engine2.CompareTrees(ctx, left, right, "", "", scanner)
	if err != nil {
		t.Fatalf("CompareTrees() error = %v", err)
	}
	if engine2.HashCount() != 0 {
		t.Errorf("second run HashCount() = %d, want 0 (cache hits)", engine2.HashCount())
	}
	if report.HasDifferences() {
		t.Error("identical trees reported differences on cached run")
	}
}
