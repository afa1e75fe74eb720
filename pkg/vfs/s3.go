package vfs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config holds connection parameters for an S3-compatible endpoint
type S3Config struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// S3FS is an FS over S3-compatible object storage. Directories do not
// exist as real objects; they are key prefixes, listed with a delimiter
// and created implicitly by writing deeper keys.
type S3FS struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewS3 creates an S3 object storage backend
func NewS3(cfg S3Config) (*S3FS, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}

	return &S3FS{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// InstanceID returns an s3:// URL identifying bucket and prefix
func (s *S3FS) InstanceID() string {
	if s.prefix == "" {
		return "s3://" + s.bucket
	}
	return "s3://" + s.bucket + "/" + s.prefix
}

// Capabilities returns the capability set. Object storage has no
// modification-time mutation.
func (s *S3FS) Capabilities() Capabilities {
	return Capabilities{
		Read:      true,
		Write:     true,
		Delete:    true,
		Rename:    true,
		CreateDir: true,
	}
}

// key maps a relative path to a full object key under the prefix
func (s *S3FS) key(p string) string {
	p = normalizeArchivePath(p)
	if s.prefix == "" {
		return p
	}
	if p == "" {
		return s.prefix
	}
	return s.prefix + "/" + p
}

// translateS3Error maps a minio error onto the VFS error taxonomy
func (s *S3FS) translateS3Error(op, path string, err error) error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket":
		return newPathError(op, s.InstanceID(), path, ErrNotFound)
	case "AccessDenied":
		return newPathError(op, s.InstanceID(), path, ErrPermission)
	default:
		return newPathError(op, s.InstanceID(), path, err)
	}
}

// Metadata returns metadata for a single path. A path with no object but
// with keys under it is reported as a directory.
func (s *S3FS) Metadata(ctx context.Context, p string) (*FileMetadata, error) {
	key := s.key(p)
	if key == "" {
		return &FileMetadata{IsDir: true}, nil
	}

	stat, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return &FileMetadata{
			Size:    stat.Size,
			ModTime: stat.LastModified,
		}, nil
	}

	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		isDir, derr := s.prefixExists(ctx, key)
		if derr != nil {
			return nil, derr
		}
		if isDir {
			return &FileMetadata{IsDir: true}, nil
		}
	}

	return nil, s.translateS3Error("metadata", p, err)
}

// prefixExists reports whether any object lives under key/
func (s *S3FS) prefixExists(ctx context.Context, key string) (bool, error) {
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for obj := range s.client.ListObjects(listCtx, s.bucket, minio.ListObjectsOptions{
		Prefix:  key + "/",
		MaxKeys: 1,
	}) {
		if obj.Err != nil {
			return false, s.translateS3Error("list", key, obj.Err)
		}
		return true, nil
	}
	return false, nil
}

// ReadDir lists the immediate children of a key prefix. A non-recursive
// listing returns common prefixes as directory entries.
func (s *S3FS) ReadDir(ctx context.Context, p string) ([]FileEntry, error) {
	dir := normalizeArchivePath(p)
	listPrefix := s.key(dir)
	if listPrefix != "" {
		listPrefix += "/"
	}

	var entries []FileEntry
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    listPrefix,
		Recursive: false,
	}) {
		if obj.Err != nil {
			return nil, s.translateS3Error("readdir", p, obj.Err)
		}

		name := strings.TrimPrefix(obj.Key, listPrefix)
		isDir := strings.HasSuffix(name, "/")
		name = strings.TrimSuffix(name, "/")
		if name == "" {
			// The delimiter listing echoes directory marker objects
			continue
		}

		entries = append(entries, FileEntry{
			Path:    joinEntryPath(dir, name),
			Size:    obj.Size,
			ModTime: obj.LastModified,
			IsDir:   isDir,
		})
	}

	return entries, nil
}

// Open opens an object for reading. The read error surfaces on the first
// Read call, not here, because GetObject is lazy.
func (s *S3FS) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(p), minio.GetObjectOptions{})
	if err != nil {
		return nil, s.translateS3Error("open", p, err)
	}

	// Force the request so missing objects fail at Open time
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, s.translateS3Error("open", p, err)
	}

	return obj, nil
}

// WriteFile uploads an object
func (s *S3FS) WriteFile(ctx context.Context, p string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(p),
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return s.translateS3Error("write", p, err)
	}
	return nil
}

// Remove deletes an object
func (s *S3FS) Remove(ctx context.Context, p string) error {
	exists, err := s.Exists(ctx, p)
	if err != nil {
		return err
	}
	if !exists {
		return newPathError("remove", s.InstanceID(), p, ErrNotFound)
	}

	if err := s.client.RemoveObject(ctx, s.bucket, s.key(p), minio.RemoveObjectOptions{}); err != nil {
		return s.translateS3Error("remove", p, err)
	}
	return nil
}

// CopyFile copies an object server-side
func (s *S3FS) CopyFile(ctx context.Context, src, dst string) error {
	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: s.key(dst)},
		minio.CopySrcOptions{Bucket: s.bucket, Object: s.key(src)})
	if err != nil {
		return s.translateS3Error("copy", src, err)
	}
	return nil
}

// Rename moves an object via server-side copy plus delete
func (s *S3FS) Rename(ctx context.Context, oldPath, newPath string) error {
	if err := s.CopyFile(ctx, oldPath, newPath); err != nil {
		return err
	}
	return s.Remove(ctx, oldPath)
}

// MkdirAll succeeds without doing anything; prefixes are implicit
func (s *S3FS) MkdirAll(ctx context.Context, p string) error {
	return nil
}

// SetModTime is not supported by object storage
func (s *S3FS) SetModTime(ctx context.Context, p string, mtime time.Time) error {
	return newPathError("chtimes", s.InstanceID(), p, ErrUnsupported)
}

// Exists checks if an object or prefix exists via a single stat
func (s *S3FS) Exists(ctx context.Context, p string) (bool, error) {
	return ExistsByMetadata(ctx, s, p)
}

// Flush is a no-op; writes are uploaded immediately
func (s *S3FS) Flush(ctx context.Context) error {
	return nil
}

// Close releases resources (the client needs no teardown)
func (s *S3FS) Close() error {
	return nil
}

var _ FS = (*S3FS)(nil)
