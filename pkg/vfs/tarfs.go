package vfs

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
)

// TarFS is an FS backed by a TAR or TAR.GZ archive. TAR is a sequential
// format, so the constructor scans the archive once to build a metadata
// index and Open re-scans to stream a single entry. Like ZipFS, mutations
// are buffered and materialized by Flush through a whole-archive rebuild.
type TarFS struct {
	archivePath string
	gzipped     bool

	mu      sync.RWMutex
	index   map[string]tarEntry
	dirs    map[string]time.Time
	pending map[string]*pendingFile
	deleted map[string]bool
	mtimes  map[string]time.Time
	dirty   bool
}

// tarEntry is the indexed metadata of one archive member
type tarEntry struct {
	size    int64
	modTime time.Time
}

// NewTar opens a TAR archive as an FS. Archives named *.tar.gz or *.tgz
// are decompressed transparently.
func NewTar(archivePath string) (*TarFS, error) {
	absPath, err := filepath.Abs(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	lower := strings.ToLower(absPath)
	t := &TarFS{
		archivePath: absPath,
		gzipped:     strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tgz"),
		pending:     make(map[string]*pendingFile),
		deleted:     make(map[string]bool),
		mtimes:      make(map[string]time.Time),
	}

	if err := t.buildIndex(); err != nil {
		return nil, err
	}

	return t, nil
}

// buildIndex scans the whole archive once to record entry metadata
func (t *TarFS) buildIndex() error {
	reader, closeAll, err := t.openArchive()
	if err != nil {
		return err
	}
	defer closeAll()

	t.index = make(map[string]tarEntry)
	t.dirs = make(map[string]time.Time)

	for {
		header, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to scan tar archive: %w", err)
		}

		name := normalizeArchivePath(header.Name)
		if name == "" {
			continue
		}

		switch header.Typeflag {
		case tar.TypeDir:
			t.dirs[name] = header.ModTime
		case tar.TypeReg:
			t.index[name] = tarEntry{size: header.Size, modTime: header.ModTime}
			addParentDirs(t.dirs, name)
		}
	}

	return nil
}

// openArchive opens the archive file and layers gzip decompression when
// needed. The returned func closes everything in the right order.
func (t *TarFS) openArchive() (*tar.Reader, func(), error) {
	file, err := os.Open(t.archivePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open tar archive: %w", err)
	}

	var src io.Reader = file
	closers := []io.Closer{file}

	if t.gzipped {
		gz, err := gzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		src = gz
		closers = append(closers, gz)
	}

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i].Close()
		}
	}

	return tar.NewReader(src), closeAll, nil
}

// InstanceID returns the archive path
func (t *TarFS) InstanceID() string {
	return t.archivePath
}

// Capabilities returns the full capability set. Mutations are deferred
// until Flush.
func (t *TarFS) Capabilities() Capabilities {
	return Capabilities{
		Read:       true,
		Write:      true,
		Delete:     true,
		Rename:     true,
		CreateDir:  true,
		SetModTime: true,
	}
}

// Metadata returns metadata for a single entry
func (t *TarFS) Metadata(ctx context.Context, p string) (*FileMetadata, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	name := normalizeArchivePath(p)
	if name == "" {
		return &FileMetadata{IsDir: true}, nil
	}

	if t.deleted[name] {
		return nil, newPathError("metadata", t.archivePath, p, ErrNotFound)
	}

	if pf, ok := t.pending[name]; ok {
		return &FileMetadata{
			Size:    int64(len(pf.data)),
			ModTime: pf.modTime,
			IsDir:   pf.isDir,
		}, nil
	}

	if entry, ok := t.index[name]; ok {
		mtime := entry.modTime
		if override, ok := t.mtimes[name]; ok {
			mtime = override
		}
		return &FileMetadata{Size: entry.size, ModTime: mtime}, nil
	}

	if mtime, ok := t.dirs[name]; ok {
		return &FileMetadata{ModTime: mtime, IsDir: true}, nil
	}

	return nil, newPathError("metadata", t.archivePath, p, ErrNotFound)
}

// ReadDir lists the immediate children of a directory in the archive
func (t *TarFS) ReadDir(ctx context.Context, p string) ([]FileEntry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	dir := normalizeArchivePath(p)
	if dir != "" {
		if t.deleted[dir] {
			return nil, newPathError("readdir", t.archivePath, p, ErrNotFound)
		}
		if _, isFile := t.index[dir]; isFile {
			return nil, newPathError("readdir", t.archivePath, p, ErrNotDir)
		}
		if _, isDir := t.dirs[dir]; !isDir {
			if pf, ok := t.pending[dir]; !ok || !pf.isDir {
				return nil, newPathError("readdir", t.archivePath, p, ErrNotFound)
			}
		}
	}

	seen := make(map[string]FileEntry)

	for name, entry := range t.index {
		if t.deleted[name] {
			continue
		}
		if _, overridden := t.pending[name]; overridden {
			continue
		}
		if child, ok := childName(dir, name); ok {
			mtime := entry.modTime
			if override, ok := t.mtimes[name]; ok {
				mtime = override
			}
			seen[child] = FileEntry{
				Path:    joinEntryPath(dir, child),
				Size:    entry.size,
				ModTime: mtime,
			}
		}
	}

	for name, mtime := range t.dirs {
		if t.deleted[name] {
			continue
		}
		if child, ok := childName(dir, name); ok {
			if _, exists := seen[child]; !exists {
				seen[child] = FileEntry{
					Path:    joinEntryPath(dir, child),
					ModTime: mtime,
					IsDir:   true,
				}
			}
		}
	}

	for name, pf := range t.pending {
		if child, ok := childName(dir, name); ok {
			seen[child] = FileEntry{
				Path:    joinEntryPath(dir, child),
				Size:    int64(len(pf.data)),
				ModTime: pf.modTime,
				IsDir:   pf.isDir,
			}
		}
	}

	for name, pf := range t.pending {
		if !pf.isDir {
			addParentChildEntries(dir, name, seen)
		}
	}

	entries := make([]FileEntry, 0, len(seen))
	for _, entry := range seen {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	return entries, nil
}

// tarEntryReader streams one archive member and closes the underlying
// file (and gzip stream) when done
type tarEntryReader struct {
	reader   io.Reader
	closeAll func()
}

func (r *tarEntryReader) Read(p []byte) (int, error) {
	return r.reader.Read(p)
}

func (r *tarEntryReader) Close() error {
	r.closeAll()
	return nil
}

// Open streams an archive entry. The archive is re-scanned sequentially up
// to the entry; for gzipped archives this decompresses from the start, a
// cost inherent to the format.
func (t *TarFS) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	t.mu.RLock()
	name := normalizeArchivePath(p)

	if t.deleted[name] {
		t.mu.RUnlock()
		return nil, newPathError("open", t.archivePath, p, ErrNotFound)
	}
	if pf, ok := t.pending[name]; ok {
		defer t.mu.RUnlock()
		if pf.isDir {
			return nil, newPathError("open", t.archivePath, p, ErrNotFile)
		}
		return io.NopCloser(bytes.NewReader(pf.data)), nil
	}
	if _, ok := t.index[name]; !ok {
		defer t.mu.RUnlock()
		if _, isDir := t.dirs[name]; isDir {
			return nil, newPathError("open", t.archivePath, p, ErrNotFile)
		}
		return nil, newPathError("open", t.archivePath, p, ErrNotFound)
	}
	t.mu.RUnlock()

	reader, closeAll, err := t.openArchive()
	if err != nil {
		return nil, newPathError("open", t.archivePath, p, err)
	}

	for {
		header, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			closeAll()
			return nil, newPathError("open", t.archivePath, p, err)
		}
		if header.Typeflag == tar.TypeReg && normalizeArchivePath(header.Name) == name {
			return &tarEntryReader{reader: reader, closeAll: closeAll}, nil
		}
	}

	closeAll()
	return nil, newPathError("open", t.archivePath, p, ErrNotFound)
}

// WriteFile buffers a file write until Flush
func (t *TarFS) WriteFile(ctx context.Context, p string, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	name := normalizeArchivePath(p)
	if name == "" {
		return newPathError("write", t.archivePath, p, ErrNotFile)
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	t.pending[name] = &pendingFile{data: buf, modTime: time.Now()}
	delete(t.deleted, name)
	delete(t.mtimes, name)
	t.dirty = true

	return nil
}

// Remove marks a file deleted until Flush
func (t *TarFS) Remove(ctx context.Context, p string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	name := normalizeArchivePath(p)
	_, inPending := t.pending[name]
	_, inArchive := t.index[name]
	if (!inPending && !inArchive) || t.deleted[name] {
		return newPathError("remove", t.archivePath, p, ErrNotFound)
	}

	delete(t.pending, name)
	delete(t.mtimes, name)
	if inArchive {
		t.deleted[name] = true
	}
	t.dirty = true

	return nil
}

// CopyFile copies an entry within the archive
func (t *TarFS) CopyFile(ctx context.Context, src, dst string) error {
	rc, err := t.Open(ctx, src)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return newPathError("copy", t.archivePath, src, err)
	}
	return t.WriteFile(ctx, dst, data)
}

// Rename moves an entry to a new path
func (t *TarFS) Rename(ctx context.Context, oldPath, newPath string) error {
	if err := t.CopyFile(ctx, oldPath, newPath); err != nil {
		return err
	}
	return t.Remove(ctx, oldPath)
}

// MkdirAll records directory entries until Flush
func (t *TarFS) MkdirAll(ctx context.Context, p string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	name := normalizeArchivePath(p)
	for name != "" {
		if _, exists := t.dirs[name]; !exists {
			t.pending[name] = &pendingFile{modTime: time.Now(), isDir: true}
			t.dirty = true
		}
		delete(t.deleted, name)
		name = parentPath(name)
	}

	return nil
}

// SetModTime records an mtime override applied on Flush
func (t *TarFS) SetModTime(ctx context.Context, p string, mtime time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	name := normalizeArchivePath(p)
	if t.deleted[name] {
		return newPathError("chtimes", t.archivePath, p, ErrNotFound)
	}
	if pf, ok := t.pending[name]; ok {
		pf.modTime = mtime
		t.dirty = true
		return nil
	}
	if _, ok := t.index[name]; ok {
		t.mtimes[name] = mtime
		t.dirty = true
		return nil
	}
	if _, ok := t.dirs[name]; ok {
		t.dirs[name] = mtime
		t.dirty = true
		return nil
	}

	return newPathError("chtimes", t.archivePath, p, ErrNotFound)
}

// Exists checks if an entry exists
func (t *TarFS) Exists(ctx context.Context, p string) (bool, error) {
	return ExistsByMetadata(ctx, t, p)
}

// Flush rebuilds the archive with all pending mutations applied, writing
// to a temp file and atomically renaming over the original.
func (t *TarFS) Flush(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.dirty {
		return nil
	}

	tmpPath := t.archivePath + ".tmp"
	if err := t.writeRebuilt(tmpPath); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, t.archivePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace archive: %w", err)
	}

	if err := t.buildIndex(); err != nil {
		return err
	}
	t.pending = make(map[string]*pendingFile)
	t.deleted = make(map[string]bool)
	t.mtimes = make(map[string]time.Time)
	t.dirty = false

	return nil
}

// writeRebuilt writes the merged archive contents to tmpPath.
// Caller holds the write lock.
func (t *TarFS) writeRebuilt(tmpPath string) error {
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temp archive: %w", err)
	}
	defer tmpFile.Close()

	var dst io.Writer = tmpFile
	var gzWriter *gzip.Writer
	if t.gzipped {
		gzWriter = gzip.NewWriter(tmpFile)
		dst = gzWriter
	}

	writer := tar.NewWriter(dst)

	// Kept originals, streamed through a full archive pass
	src, closeAll, err := t.openArchive()
	if err != nil {
		return err
	}
	for {
		header, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			closeAll()
			return fmt.Errorf("failed to scan tar archive: %w", err)
		}

		name := normalizeArchivePath(header.Name)
		if name == "" || t.deleted[name] {
			continue
		}
		if _, overridden := t.pending[name]; overridden {
			continue
		}
		if override, ok := t.mtimes[name]; ok {
			header.ModTime = override
		}

		if err := writer.WriteHeader(header); err != nil {
			closeAll()
			return fmt.Errorf("failed to write entry %s: %w", name, err)
		}
		if header.Typeflag == tar.TypeReg {
			if _, err := io.Copy(writer, src); err != nil {
				closeAll()
				return fmt.Errorf("failed to copy entry %s: %w", name, err)
			}
		}
	}
	closeAll()

	for name, pf := range t.pending {
		header := &tar.Header{
			Name:    name,
			Mode:    0644,
			Size:    int64(len(pf.data)),
			ModTime: pf.modTime,
		}
		if pf.isDir {
			header.Name = name + "/"
			header.Mode = 0755
			header.Size = 0
			header.Typeflag = tar.TypeDir
		} else {
			header.Typeflag = tar.TypeReg
		}

		if err := writer.WriteHeader(header); err != nil {
			return fmt.Errorf("failed to write entry %s: %w", name, err)
		}
		if !pf.isDir {
			if _, err := writer.Write(pf.data); err != nil {
				return fmt.Errorf("failed to write entry %s: %w", name, err)
			}
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	if gzWriter != nil {
		if err := gzWriter.Close(); err != nil {
			return fmt.Errorf("failed to finalize gzip stream: %w", err)
		}
	}

	return nil
}

// Close is a no-op; TarFS holds no file handle between operations
func (t *TarFS) Close() error {
	return nil
}

var _ FS = (*TarFS)(nil)
