package vfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Local is a filesystem-backed FS rooted at a directory
type Local struct {
	rootPath string
}

// NewLocal creates a local filesystem backend rooted at rootPath
func NewLocal(rootPath string) (*Local, error) {
	absPath, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to access path: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", absPath)
	}

	return &Local{rootPath: absPath}, nil
}

// InstanceID returns the absolute root path
func (l *Local) InstanceID() string {
	return l.rootPath
}

// Capabilities returns the full capability set
func (l *Local) Capabilities() Capabilities {
	return Capabilities{
		Read:       true,
		Write:      true,
		Delete:     true,
		Rename:     true,
		CreateDir:  true,
		SetModTime: true,
	}
}

// fullPath maps a slash-separated relative path to an OS path under the root
func (l *Local) fullPath(path string) string {
	return filepath.Join(l.rootPath, filepath.FromSlash(path))
}

// wrapOSError maps an os error onto the VFS error taxonomy
func (l *Local) wrapOSError(op, path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return newPathError(op, l.rootPath, path, ErrNotFound)
	case errors.Is(err, fs.ErrPermission):
		return newPathError(op, l.rootPath, path, ErrPermission)
	default:
		return newPathError(op, l.rootPath, path, err)
	}
}

// Metadata returns metadata for a single path. Symlink status is taken from
// Lstat so links are reported as links, not as their targets.
func (l *Local) Metadata(ctx context.Context, path string) (*FileMetadata, error) {
	info, err := os.Lstat(l.fullPath(path))
	if err != nil {
		return nil, l.wrapOSError("metadata", path, err)
	}

	isSymlink := info.Mode()&fs.ModeSymlink != 0
	if isSymlink {
		// Report the target's size and mtime where resolvable
		if resolved, err := os.Stat(l.fullPath(path)); err == nil {
			info = resolved
		}
	}

	return &FileMetadata{
		Size:      info.Size(),
		ModTime:   info.ModTime(),
		IsDir:     info.IsDir(),
		IsSymlink: isSymlink,
	}, nil
}

// ReadDir lists the immediate children of a directory
func (l *Local) ReadDir(ctx context.Context, path string) ([]FileEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(l.fullPath(path))
	if err != nil {
		if info, statErr := os.Stat(l.fullPath(path)); statErr == nil && !info.IsDir() {
			return nil, newPathError("readdir", l.rootPath, path, ErrNotDir)
		}
		return nil, l.wrapOSError("readdir", path, err)
	}

	result := make([]FileEntry, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			return nil, l.wrapOSError("readdir", path, err)
		}

		result = append(result, FileEntry{
			Path:    joinEntryPath(path, entry.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			IsDir:   entry.IsDir(),
		})
	}

	return result, nil
}

// Open opens a file for reading
func (l *Local) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	file, err := os.Open(l.fullPath(path))
	if err != nil {
		return nil, l.wrapOSError("open", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, l.wrapOSError("open", path, err)
	}
	if info.IsDir() {
		file.Close()
		return nil, newPathError("open", l.rootPath, path, ErrNotFile)
	}

	return file, nil
}

// WriteFile creates or overwrites a file with the given content
func (l *Local) WriteFile(ctx context.Context, path string, data []byte) error {
	fullPath := l.fullPath(path)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return l.wrapOSError("write", path, err)
	}

	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return l.wrapOSError("write", path, err)
	}

	return nil
}

// Remove deletes a file
func (l *Local) Remove(ctx context.Context, path string) error {
	if err := os.Remove(l.fullPath(path)); err != nil {
		return l.wrapOSError("remove", path, err)
	}
	return nil
}

// CopyFile copies a file within the backend
func (l *Local) CopyFile(ctx context.Context, src, dst string) error {
	in, err := os.Open(l.fullPath(src))
	if err != nil {
		return l.wrapOSError("copy", src, err)
	}
	defer in.Close()

	dstPath := l.fullPath(dst)
	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return l.wrapOSError("copy", dst, err)
	}

	out, err := os.Create(dstPath)
	if err != nil {
		return l.wrapOSError("copy", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return l.wrapOSError("copy", dst, err)
	}

	if err := out.Close(); err != nil {
		return l.wrapOSError("copy", dst, err)
	}

	return nil
}

// Rename moves a file to a new path
func (l *Local) Rename(ctx context.Context, oldPath, newPath string) error {
	if err := os.Rename(l.fullPath(oldPath), l.fullPath(newPath)); err != nil {
		return l.wrapOSError("rename", oldPath, err)
	}
	return nil
}

// MkdirAll creates a directory and all necessary parents
func (l *Local) MkdirAll(ctx context.Context, path string) error {
	if err := os.MkdirAll(l.fullPath(path), 0755); err != nil {
		return l.wrapOSError("mkdir", path, err)
	}
	return nil
}

// SetModTime changes the modification time of a file
func (l *Local) SetModTime(ctx context.Context, path string, mtime time.Time) error {
	if err := os.Chtimes(l.fullPath(path), mtime, mtime); err != nil {
		return l.wrapOSError("chtimes", path, err)
	}
	return nil
}

// Exists checks if a path exists
func (l *Local) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Lstat(l.fullPath(path))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, l.wrapOSError("exists", path, err)
}

// Flush is a no-op for the local filesystem
func (l *Local) Flush(ctx context.Context) error {
	return nil
}

// Close releases resources (no-op for local filesystem)
func (l *Local) Close() error {
	return nil
}

// joinEntryPath joins a parent listing path with a child name, keeping
// paths slash-separated and root-relative
func joinEntryPath(parent, name string) string {
	if parent == "" || parent == "." {
		return name
	}
	return parent + "/" + name
}

var _ FS = (*Local)(nil)
