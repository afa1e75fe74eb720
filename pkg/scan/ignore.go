package scan

import (
	"bufio"
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/treediff/treediff/pkg/vfs"
)

// IgnoreFileName is the optional ignore file loaded from the scan root.
// One pattern per line, gitignore style: blank lines and # comments are
// skipped.
const IgnoreFileName = ".treediffignore"

// shouldExclude checks if a relative path matches any of the patterns.
// Patterns support:
//   - Simple glob patterns: *.tmp, *.log
//   - Directory patterns: .git/, node_modules/
//   - Path patterns: build/*
//   - Any-depth patterns: **/test/*
func shouldExclude(relativePath string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}

	normalizedPath := filepath.ToSlash(relativePath)
	baseName := filepath.Base(relativePath)

	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}

		normalizedPattern := filepath.ToSlash(pattern)

		// Directory pattern (ends with /): matches the directory itself
		// and everything under it
		if strings.HasSuffix(normalizedPattern, "/") {
			dirPattern := strings.TrimSuffix(normalizedPattern, "/")
			if strings.HasPrefix(normalizedPath, dirPattern+"/") ||
				normalizedPath == dirPattern ||
				strings.Contains(normalizedPath, "/"+dirPattern+"/") {
				return true
			}
			continue
		}

		// **/pattern matches the pattern at any depth
		if strings.Contains(normalizedPattern, "**") {
			parts := strings.Split(normalizedPattern, "**/")
			if len(parts) == 2 && parts[0] == "" {
				suffix := parts[1]
				if matchGlob(baseName, suffix) {
					return true
				}
				if strings.HasSuffix(normalizedPath, "/"+suffix) || normalizedPath == suffix {
					return true
				}
				if matchGlobComponent(normalizedPath, suffix) {
					return true
				}
			}
			continue
		}

		if strings.Contains(normalizedPattern, "/") {
			// Pattern applies to the full path
			matched, _ := filepath.Match(normalizedPattern, normalizedPath)
			if matched {
				return true
			}
			if strings.HasSuffix(normalizedPath, normalizedPattern) {
				return true
			}
		} else {
			// Pattern applies to the basename only
			matched, _ := filepath.Match(normalizedPattern, baseName)
			if matched {
				return true
			}
		}
	}

	return false
}

// matchGlob performs glob matching on a single path component
func matchGlob(name, pattern string) bool {
	matched, _ := filepath.Match(pattern, name)
	return matched
}

// matchGlobComponent checks if any component of the path matches the pattern
func matchGlobComponent(path, pattern string) bool {
	for _, part := range strings.Split(path, "/") {
		if matchGlob(part, pattern) {
			return true
		}
	}
	return false
}

// loadIgnoreFile reads ignore patterns from the ignore file at the scan
// root. A missing file yields no patterns.
func loadIgnoreFile(ctx context.Context, fsys vfs.FS, root string) ([]string, error) {
	ignorePath := IgnoreFileName
	if root != "" && root != "." {
		ignorePath = root + "/" + IgnoreFileName
	}

	rc, err := fsys.Open(ctx, ignorePath)
	if err != nil {
		if vfs.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	defer rc.Close()

	return parseIgnorePatterns(rc)
}

// parseIgnorePatterns parses gitignore-style lines from r
func parseIgnorePatterns(r io.Reader) ([]string, error) {
	var patterns []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return patterns, nil
}
