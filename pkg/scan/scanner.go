// Package scan walks a VFS tree and produces a filtered entry list for
// comparison.
package scan

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/treediff/treediff/pkg/vfs"
)

// Options configures a scan
type Options struct {
	// IgnorePatterns are glob-style exclusion patterns
	IgnorePatterns []string

	// UseIgnoreFile loads additional patterns from the ignore file at
	// the scan root
	UseIgnoreFile bool

	// FollowSymlinks descends into symlinked entries. Disabled by
	// default to avoid cycles.
	FollowSymlinks bool
}

// Scanner produces entry lists for one VFS root
type Scanner struct {
	opts   Options
	logger *zap.Logger
}

// New creates a scanner. A nil logger disables logging.
func New(opts Options, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{opts: opts, logger: logger}
}

// Scan walks fsys from root and returns the filtered entries, with paths
// relative to root. Directories are included; excluded directories are not
// descended into. Any read error aborts the whole scan.
func (s *Scanner) Scan(ctx context.Context, fsys vfs.FS, root string) ([]vfs.FileEntry, error) {
	patterns := s.opts.IgnorePatterns

	if s.opts.UseIgnoreFile {
		filePatterns, err := loadIgnoreFile(ctx, fsys, root)
		if err != nil {
			return nil, fmt.Errorf("failed to load ignore file: %w", err)
		}
		patterns = append(append([]string{}, patterns...), filePatterns...)
	}

	var entries []vfs.FileEntry
	if err := s.walk(ctx, fsys, root, root, patterns, &entries); err != nil {
		return nil, err
	}

	s.logger.Debug("scan complete",
		zap.String("instance", fsys.InstanceID()),
		zap.String("root", root),
		zap.Int("entries", len(entries)))

	return entries, nil
}

// walk recursively lists dir, appending filtered entries to out
func (s *Scanner) walk(ctx context.Context, fsys vfs.FS, root, dir string, patterns []string, out *[]vfs.FileEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	listing, err := fsys.ReadDir(ctx, dir)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", dir, err)
	}

	for _, entry := range listing {
		relPath := relativeTo(root, entry.Path)

		if relPath == IgnoreFileName {
			continue
		}
		if shouldExclude(relPath, patterns) {
			s.logger.Debug("excluded by pattern", zap.String("path", relPath))
			continue
		}

		if !s.opts.FollowSymlinks {
			meta, err := fsys.Metadata(ctx, entry.Path)
			if err != nil {
				return fmt.Errorf("failed to stat %s: %w", relPath, err)
			}
			if meta.IsSymlink {
				s.logger.Debug("skipped symlink", zap.String("path", relPath))
				continue
			}
		}

		*out = append(*out, vfs.FileEntry{
			Path:    relPath,
			Size:    entry.Size,
			ModTime: entry.ModTime,
			IsDir:   entry.IsDir,
		})

		if entry.IsDir {
			if err := s.walk(ctx, fsys, root, entry.Path, patterns, out); err != nil {
				return err
			}
		}
	}

	return nil
}

// relativeTo strips the scan root prefix from an entry path
func relativeTo(root, path string) string {
	if root == "" || root == "." {
		return path
	}
	return strings.TrimPrefix(path, strings.TrimSuffix(root, "/")+"/")
}
