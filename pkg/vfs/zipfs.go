package vfs

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// ZipFS is an FS backed by a ZIP archive. Reads stream directly from the
// archive. ZIP files are append-unfriendly, so mutations are recorded in a
// pending overlay and only materialized by Flush, which rebuilds the whole
// archive and atomically replaces it.
type ZipFS struct {
	archivePath string

	mu      sync.RWMutex
	reader  *zip.ReadCloser
	index   map[string]*zip.File // normalized entry path -> archive entry
	dirs    map[string]time.Time // directories, explicit and implicit
	pending map[string]*pendingFile
	deleted map[string]bool
	mtimes  map[string]time.Time // mtime overrides applied on rebuild
	dirty   bool
}

// pendingFile is a buffered write waiting for Flush
type pendingFile struct {
	data    []byte
	modTime time.Time
	isDir   bool
}

// NewZip opens a ZIP archive as an FS
func NewZip(archivePath string) (*ZipFS, error) {
	absPath, err := filepath.Abs(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	reader, err := zip.OpenReader(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip archive: %w", err)
	}

	z := &ZipFS{
		archivePath: absPath,
		reader:      reader,
		pending:     make(map[string]*pendingFile),
		deleted:     make(map[string]bool),
		mtimes:      make(map[string]time.Time),
	}
	z.buildIndex()

	return z, nil
}

// buildIndex maps normalized entry paths to archive entries and collects
// the directory set, including directories only implied by file paths.
// Caller holds the write lock (or is the constructor).
func (z *ZipFS) buildIndex() {
	z.index = make(map[string]*zip.File, len(z.reader.File))
	z.dirs = make(map[string]time.Time)

	for _, file := range z.reader.File {
		name := normalizeArchivePath(file.Name)
		if name == "" {
			continue
		}
		if file.FileInfo().IsDir() {
			z.dirs[name] = file.Modified
			continue
		}
		z.index[name] = file
		addParentDirs(z.dirs, name)
	}
}

// InstanceID returns the archive path
func (z *ZipFS) InstanceID() string {
	return z.archivePath
}

// Capabilities returns the full capability set. Mutations are deferred
// until Flush.
func (z *ZipFS) Capabilities() Capabilities {
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
func (z *ZipFS) Metadata(ctx context.Context, p string) (*FileMetadata, error) {
	z.mu.RLock()
	defer z.mu.RUnlock()

	name := normalizeArchivePath(p)
	if name == "" {
		return &FileMetadata{IsDir: true}, nil
	}

	if z.deleted[name] {
		return nil, newPathError("metadata", z.archivePath, p, ErrNotFound)
	}

	if pf, ok := z.pending[name]; ok {
		return &FileMetadata{
			Size:    int64(len(pf.data)),
			ModTime: pf.modTime,
			IsDir:   pf.isDir,
		}, nil
	}

	if file, ok := z.index[name]; ok {
		mtime := file.Modified
		if override, ok := z.mtimes[name]; ok {
			mtime = override
		}
		return &FileMetadata{
			Size:    int64(file.UncompressedSize64),
			ModTime: mtime,
		}, nil
	}

	if mtime, ok := z.dirs[name]; ok {
		return &FileMetadata{ModTime: mtime, IsDir: true}, nil
	}

	return nil, newPathError("metadata", z.archivePath, p, ErrNotFound)
}

// ReadDir lists the immediate children of a directory in the archive
func (z *ZipFS) ReadDir(ctx context.Context, p string) ([]FileEntry, error) {
	z.mu.RLock()
	defer z.mu.RUnlock()

	dir := normalizeArchivePath(p)
	if dir != "" {
		if z.deleted[dir] {
			return nil, newPathError("readdir", z.archivePath, p, ErrNotFound)
		}
		if _, isFile := z.index[dir]; isFile {
			return nil, newPathError("readdir", z.archivePath, p, ErrNotDir)
		}
		if _, isDir := z.dirs[dir]; !isDir {
			if pf, ok := z.pending[dir]; !ok || !pf.isDir {
				return nil, newPathError("readdir", z.archivePath, p, ErrNotFound)
			}
		}
	}

	seen := make(map[string]FileEntry)

	for name, file := range z.index {
		if z.deleted[name] {
			continue
		}
		if _, overridden := z.pending[name]; overridden {
			continue
		}
		if child, ok := childName(dir, name); ok {
			mtime := file.Modified
			if override, ok := z.mtimes[name]; ok {
				mtime = override
			}
			seen[child] = FileEntry{
				Path:    joinEntryPath(dir, child),
				Size:    int64(file.UncompressedSize64),
				ModTime: mtime,
			}
		}
	}

	for name, mtime := range z.dirs {
		if z.deleted[name] {
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

	for name, pf := range z.pending {
		if child, ok := childName(dir, name); ok {
			seen[child] = FileEntry{
				Path:    joinEntryPath(dir, child),
				Size:    int64(len(pf.data)),
				ModTime: pf.modTime,
				IsDir:   pf.isDir,
			}
		}
	}

	// Intermediate directories implied by deeper overlay entries
	for name, pf := range z.pending {
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

// Open opens an archive entry for reading
func (z *ZipFS) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	z.mu.RLock()
	defer z.mu.RUnlock()

	name := normalizeArchivePath(p)
	if z.deleted[name] {
		return nil, newPathError("open", z.archivePath, p, ErrNotFound)
	}

	if pf, ok := z.pending[name]; ok {
		if pf.isDir {
			return nil, newPathError("open", z.archivePath, p, ErrNotFile)
		}
		return io.NopCloser(bytes.NewReader(pf.data)), nil
	}

	file, ok := z.index[name]
	if !ok {
		if _, isDir := z.dirs[name]; isDir {
			return nil, newPathError("open", z.archivePath, p, ErrNotFile)
		}
		return nil, newPathError("open", z.archivePath, p, ErrNotFound)
	}

	rc, err := file.Open()
	if err != nil {
		return nil, newPathError("open", z.archivePath, p, err)
	}

	return rc, nil
}

// WriteFile buffers a file write until Flush
func (z *ZipFS) WriteFile(ctx context.Context, p string, data []byte) error {
	z.mu.Lock()
	defer z.mu.Unlock()

	name := normalizeArchivePath(p)
	if name == "" {
		return newPathError("write", z.archivePath, p, ErrNotFile)
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	z.pending[name] = &pendingFile{data: buf, modTime: time.Now()}
	delete(z.deleted, name)
	delete(z.mtimes, name)
	z.dirty = true

	return nil
}

// Remove marks a file deleted until Flush
func (z *ZipFS) Remove(ctx context.Context, p string) error {
	z.mu.Lock()
	defer z.mu.Unlock()

	name := normalizeArchivePath(p)
	_, inPending := z.pending[name]
	_, inArchive := z.index[name]
	if (!inPending && !inArchive) || z.deleted[name] {
		return newPathError("remove", z.archivePath, p, ErrNotFound)
	}

	delete(z.pending, name)
	delete(z.mtimes, name)
	if inArchive {
		z.deleted[name] = true
	}
	z.dirty = true

	return nil
}

// CopyFile copies an entry within the archive
func (z *ZipFS) CopyFile(ctx context.Context, src, dst string) error {
	data, err := z.readAll(ctx, src)
	if err != nil {
		return err
	}
	return z.WriteFile(ctx, dst, data)
}

// Rename moves an entry to a new path
func (z *ZipFS) Rename(ctx context.Context, oldPath, newPath string) error {
	if err := z.CopyFile(ctx, oldPath, newPath); err != nil {
		return err
	}
	return z.Remove(ctx, oldPath)
}

// MkdirAll records directory entries until Flush
func (z *ZipFS) MkdirAll(ctx context.Context, p string) error {
	z.mu.Lock()
	defer z.mu.Unlock()

	name := normalizeArchivePath(p)
	for name != "" {
		if _, exists := z.dirs[name]; !exists {
			z.pending[name] = &pendingFile{modTime: time.Now(), isDir: true}
			z.dirty = true
		}
		delete(z.deleted, name)
		name = parentPath(name)
	}

	return nil
}

// SetModTime records an mtime override applied on Flush
func (z *ZipFS) SetModTime(ctx context.Context, p string, mtime time.Time) error {
	z.mu.Lock()
	defer z.mu.Unlock()

	name := normalizeArchivePath(p)
	if z.deleted[name] {
		return newPathError("chtimes", z.archivePath, p, ErrNotFound)
	}
	if pf, ok := z.pending[name]; ok {
		pf.modTime = mtime
		z.dirty = true
		return nil
	}
	if _, ok := z.index[name]; ok {
		z.mtimes[name] = mtime
		z.dirty = true
		return nil
	}
	if _, ok := z.dirs[name]; ok {
		z.dirs[name] = mtime
		z.dirty = true
		return nil
	}

	return newPathError("chtimes", z.archivePath, p, ErrNotFound)
}

// Exists checks if an entry exists
func (z *ZipFS) Exists(ctx context.Context, p string) (bool, error) {
	return ExistsByMetadata(ctx, z, p)
}

// Flush rebuilds the archive with all pending mutations applied, writing
// to a temp file and atomically renaming over the original.
func (z *ZipFS) Flush(ctx context.Context) error {
	z.mu.Lock()
	defer z.mu.Unlock()

	if !z.dirty {
		return nil
	}

	tmpPath := z.archivePath + ".tmp"
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temp archive: %w", err)
	}

	writer := zip.NewWriter(tmpFile)
	if err := z.writeRebuilt(writer); err != nil {
		writer.Close()
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}

	if err := writer.Close(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp archive: %w", err)
	}

	// Release the original before replacing it
	if err := z.reader.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close archive: %w", err)
	}

	if err := os.Rename(tmpPath, z.archivePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace archive: %w", err)
	}

	reader, err := zip.OpenReader(z.archivePath)
	if err != nil {
		return fmt.Errorf("failed to reopen archive: %w", err)
	}
	z.reader = reader
	z.buildIndex()
	z.pending = make(map[string]*pendingFile)
	z.deleted = make(map[string]bool)
	z.mtimes = make(map[string]time.Time)
	z.dirty = false

	return nil
}

// writeRebuilt streams kept originals and pending writes into writer.
// Caller holds the write lock.
func (z *ZipFS) writeRebuilt(writer *zip.Writer) error {
	for name, file := range z.index {
		if z.deleted[name] {
			continue
		}
		if _, overridden := z.pending[name]; overridden {
			continue
		}

		mtime := file.Modified
		if override, ok := z.mtimes[name]; ok {
			mtime = override
		}

		header := &zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: mtime,
		}
		dst, err := writer.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("failed to write entry %s: %w", name, err)
		}

		src, err := file.Open()
		if err != nil {
			return fmt.Errorf("failed to read entry %s: %w", name, err)
		}
		if _, err := io.Copy(dst, src); err != nil {
			src.Close()
			return fmt.Errorf("failed to copy entry %s: %w", name, err)
		}
		src.Close()
	}

	for name, pf := range z.pending {
		header := &zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: pf.modTime,
		}
		if pf.isDir {
			header.Name = name + "/"
			header.Method = zip.Store
			if _, err := writer.CreateHeader(header); err != nil {
				return fmt.Errorf("failed to write directory %s: %w", name, err)
			}
			continue
		}

		dst, err := writer.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("failed to write entry %s: %w", name, err)
		}
		if _, err := dst.Write(pf.data); err != nil {
			return fmt.Errorf("failed to write entry %s: %w", name, err)
		}
	}

	return nil
}

// Close releases the archive reader without flushing pending writes
func (z *ZipFS) Close() error {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.reader.Close()
}

// readAll reads an entire entry into memory
func (z *ZipFS) readAll(ctx context.Context, p string) ([]byte, error) {
	rc, err := z.Open(ctx, p)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// normalizeArchivePath cleans an archive entry path to a slash-separated
// relative form without leading or trailing slashes
func normalizeArchivePath(p string) string {
	p = path.Clean(strings.TrimSuffix(filepath.ToSlash(p), "/"))
	p = strings.TrimPrefix(p, "/")
	if p == "." {
		return ""
	}
	return p
}

// parentPath returns the parent of a normalized path, "" for top level
func parentPath(p string) string {
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return ""
	}
	return p[:idx]
}

// addParentDirs records every ancestor directory of a file path
func addParentDirs(dirs map[string]time.Time, name string) {
	for dir := parentPath(name); dir != ""; dir = parentPath(dir) {
		if _, exists := dirs[dir]; !exists {
			dirs[dir] = time.Time{}
		}
	}
}

// childName returns the immediate child component of name under dir, and
// whether name lives (directly or transitively) under dir
func childName(dir, name string) (string, bool) {
	if dir == "" {
		if idx := strings.Index(name, "/"); idx >= 0 {
			return "", false
		}
		return name, true
	}
	if !strings.HasPrefix(name, dir+"/") {
		return "", false
	}
	rest := name[len(dir)+1:]
	if idx := strings.Index(rest, "/"); idx >= 0 {
		return "", false
	}
	return rest, true
}

// addParentChildEntries adds a synthetic directory entry for any ancestor
// of name that is an immediate child of dir
func addParentChildEntries(dir, name string, seen map[string]FileEntry) {
	for parent := parentPath(name); parent != ""; parent = parentPath(parent) {
		if child, ok := childName(dir, parent); ok {
			if _, exists := seen[child]; !exists {
				seen[child] = FileEntry{
					Path:  joinEntryPath(dir, child),
					IsDir: true,
				}
			}
		}
	}
}

var _ FS = (*ZipFS)(nil)
