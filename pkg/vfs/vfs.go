package vfs

import (
	"context"
	"io"
	"time"
)

// FileEntry represents one file or directory observed while listing a tree.
// Paths are slash-separated and relative to the backend root.
type FileEntry struct {
	Path    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// FileMetadata is the result of a single-path metadata query.
// Unlike FileEntry it carries symlink status, which some backends only
// expose on direct lookup rather than on directory listing.
type FileMetadata struct {
	Size      int64
	ModTime   time.Time
	IsDir     bool
	IsSymlink bool
}

// Capabilities describes which mutating operations a backend supports.
// Callers should check Capabilities before attempting a mutation, but
// implementations also fail gracefully with ErrUnsupported if called anyway.
type Capabilities struct {
	Read       bool
	Write      bool
	Delete     bool
	Rename     bool
	CreateDir  bool
	SetModTime bool
}

// FS is the uniform contract over heterogeneous storage backends.
// Implementations include local filesystem, ZIP and TAR archives,
// S3-compatible object storage, and WebDAV.
//
// All paths are slash-separated and relative to the backend root.
// Implementations must be safe for concurrent reads; concurrent writes to
// the same instance are only as safe as the underlying storage makes them,
// so callers serialize writes per instance.
type FS interface {
	// InstanceID returns a stable identifier for this backend and target
	// (e.g. "s3://bucket/prefix" or an archive path), used for cache
	// namespacing and diagnostics.
	InstanceID() string

	// Capabilities returns the declared capability set
	Capabilities() Capabilities

	// Metadata returns metadata for a single path
	Metadata(ctx context.Context, path string) (*FileMetadata, error)

	// ReadDir lists the immediate children of a directory
	ReadDir(ctx context.Context, path string) ([]FileEntry, error)

	// Open opens a file for reading
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// WriteFile creates or overwrites a file with the given content
	WriteFile(ctx context.Context, path string, data []byte) error

	// Remove deletes a file
	Remove(ctx context.Context, path string) error

	// CopyFile copies a file within the same backend
	CopyFile(ctx context.Context, src, dst string) error

	// Rename moves a file to a new path
	Rename(ctx context.Context, oldPath, newPath string) error

	// MkdirAll creates a directory and all necessary parents
	MkdirAll(ctx context.Context, path string) error

	// SetModTime changes the modification time of a file
	SetModTime(ctx context.Context, path string, mtime time.Time) error

	// Exists checks if a path exists
	Exists(ctx context.Context, path string) (bool, error)

	// Flush materializes any deferred writes. Archive backends buffer
	// mutations and rebuild the whole archive here; other backends treat
	// this as a no-op.
	Flush(ctx context.Context) error

	// Close releases any resources held by the backend
	Close() error
}

// ExistsByMetadata implements Exists in terms of Metadata. Backends use it
// when they have no cheaper existence check.
func ExistsByMetadata(ctx context.Context, fsys FS, path string) (bool, error) {
	_, err := fsys.Metadata(ctx, path)
	if err == nil {
		return true, nil
	}
	if IsNotFound(err) {
		return false, nil
	}
	return false, err
}
