package vfs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/studio-b12/gowebdav"
)

// WebDAVConfig holds connection parameters for a WebDAV server
type WebDAVConfig struct {
	BaseURL  string
	Username string
	Password string
	Root     string
}

// WebDAVFS is an FS over a WebDAV server. Every operation is a network
// round-trip; there is no local state to flush.
type WebDAVFS struct {
	client  *gowebdav.Client
	baseURL string
	root    string
}

// NewWebDAV creates a WebDAV backend and verifies the connection
func NewWebDAV(cfg WebDAVConfig) (*WebDAVFS, error) {
	client := gowebdav.NewClient(cfg.BaseURL, cfg.Username, cfg.Password)
	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to webdav server: %w", err)
	}

	return &WebDAVFS{
		client:  client,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		root:    strings.Trim(cfg.Root, "/"),
	}, nil
}

// InstanceID returns the server URL plus root path
func (w *WebDAVFS) InstanceID() string {
	if w.root == "" {
		return w.baseURL
	}
	return w.baseURL + "/" + w.root
}

// Capabilities returns the capability set. WebDAV has no portable way to
// set modification times.
func (w *WebDAVFS) Capabilities() Capabilities {
	return Capabilities{
		Read:      true,
		Write:     true,
		Delete:    true,
		Rename:    true,
		CreateDir: true,
	}
}

// remotePath maps a relative path to a server path under the root
func (w *WebDAVFS) remotePath(p string) string {
	p = normalizeArchivePath(p)
	if w.root != "" {
		if p == "" {
			p = w.root
		} else {
			p = w.root + "/" + p
		}
	}
	return "/" + p
}

// translateDAVError maps a gowebdav error onto the VFS error taxonomy
func (w *WebDAVFS) translateDAVError(op, path string, err error) error {
	switch {
	case gowebdav.IsErrNotFound(err):
		return newPathError(op, w.InstanceID(), path, ErrNotFound)
	case gowebdav.IsErrCode(err, http.StatusUnauthorized), gowebdav.IsErrCode(err, http.StatusForbidden):
		return newPathError(op, w.InstanceID(), path, ErrPermission)
	default:
		return newPathError(op, w.InstanceID(), path, err)
	}
}

// Metadata returns metadata for a single path
func (w *WebDAVFS) Metadata(ctx context.Context, p string) (*FileMetadata, error) {
	info, err := w.client.Stat(w.remotePath(p))
	if err != nil {
		return nil, w.translateDAVError("metadata", p, err)
	}

	return &FileMetadata{
		Size:    info.Size(),
		ModTime: info.ModTime(),
		IsDir:   info.IsDir(),
	}, nil
}

// ReadDir lists the immediate children of a collection
func (w *WebDAVFS) ReadDir(ctx context.Context, p string) ([]FileEntry, error) {
	dir := normalizeArchivePath(p)

	infos, err := w.client.ReadDir(w.remotePath(p))
	if err != nil {
		return nil, w.translateDAVError("readdir", p, err)
	}

	entries := make([]FileEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, FileEntry{
			Path:    joinEntryPath(dir, info.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			IsDir:   info.IsDir(),
		})
	}

	return entries, nil
}

// Open opens a remote file for streaming
func (w *WebDAVFS) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	rc, err := w.client.ReadStream(w.remotePath(p))
	if err != nil {
		return nil, w.translateDAVError("open", p, err)
	}
	return rc, nil
}

// WriteFile uploads a file
func (w *WebDAVFS) WriteFile(ctx context.Context, p string, data []byte) error {
	if err := w.client.Write(w.remotePath(p), data, 0644); err != nil {
		return w.translateDAVError("write", p, err)
	}
	return nil
}

// Remove deletes a file
func (w *WebDAVFS) Remove(ctx context.Context, p string) error {
	if err := w.client.Remove(w.remotePath(p)); err != nil {
		return w.translateDAVError("remove", p, err)
	}
	return nil
}

// CopyFile copies a file server-side
func (w *WebDAVFS) CopyFile(ctx context.Context, src, dst string) error {
	if err := w.client.Copy(w.remotePath(src), w.remotePath(dst), true); err != nil {
		return w.translateDAVError("copy", src, err)
	}
	return nil
}

// Rename moves a file server-side
func (w *WebDAVFS) Rename(ctx context.Context, oldPath, newPath string) error {
	if err := w.client.Rename(w.remotePath(oldPath), w.remotePath(newPath), true); err != nil {
		return w.translateDAVError("rename", oldPath, err)
	}
	return nil
}

// MkdirAll creates a collection and all necessary parents
func (w *WebDAVFS) MkdirAll(ctx context.Context, p string) error {
	if err := w.client.MkdirAll(w.remotePath(p), 0755); err != nil {
		return w.translateDAVError("mkdir", p, err)
	}
	return nil
}

// SetModTime is not supported over WebDAV
func (w *WebDAVFS) SetModTime(ctx context.Context, p string, mtime time.Time) error {
	return newPathError("chtimes", w.InstanceID(), p, ErrUnsupported)
}

// Exists checks if a path exists
func (w *WebDAVFS) Exists(ctx context.Context, p string) (bool, error) {
	return ExistsByMetadata(ctx, w, p)
}

// Flush is a no-op; writes are uploaded immediately
func (w *WebDAVFS) Flush(ctx context.Context) error {
	return nil
}

// Close releases resources (the client needs no teardown)
func (w *WebDAVFS) Close() error {
	return nil
}

var _ FS = (*WebDAVFS)(nil)
