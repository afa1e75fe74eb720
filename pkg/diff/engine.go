// Package diff aligns two (or three) scanned entry lists into per-path
// statuses, using cheap signals first and content hashing only to resolve
// ambiguity.
package diff

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/treediff/treediff/pkg/hashcache"
	"github.com/treediff/treediff/pkg/scan"
	"github.com/treediff/treediff/pkg/vfs"
)

// ReaderWrapper wraps readers opened for hashing (e.g. for rate limiting)
type ReaderWrapper func(io.Reader) io.Reader

// Options configures the comparison engine
type Options struct {
	// VerifyHash forces content hashing even when size and mtime match.
	// When false, equal size plus equal mtime is trusted as Same without
	// reading any content; that fast path is the main throughput
	// optimization and a deliberate accuracy/speed trade-off.
	VerifyHash bool

	// MaxWorkers bounds concurrent hash verification
	MaxWorkers int

	// ModTimeWindow is the tolerance for treating modification times as
	// equal, accounting for filesystem timestamp precision differences
	ModTimeWindow time.Duration
}

// Engine compares entry lists through a shared hash cache. Safe for use
// from multiple goroutines; the cache is the only shared mutable state.
type Engine struct {
	cache  *hashcache.Cache
	opts   Options
	logger *zap.Logger

	readerWrapper ReaderWrapper
	progress      func(done, total int)
	hashCount     atomic.Int64
}

// NewEngine creates a comparison engine around a shared hash cache.
// A nil logger disables logging.
func NewEngine(cache *hashcache.Cache, opts Options, logger *zap.Logger) *Engine {
	if opts.MaxWorkers < 1 {
		opts.MaxWorkers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cache: cache, opts: opts, logger: logger}
}

// SetReaderWrapper sets a function to wrap readers opened for hashing
func (e *Engine) SetReaderWrapper(wrapper ReaderWrapper) {
	e.readerWrapper = wrapper
}

// SetProgressCallback sets a callback invoked after each resolved hash
// verification with (done, total) counts
func (e *Engine) SetProgressCallback(callback func(done, total int)) {
	e.progress = callback
}

// HashCount returns how many files have been hashed (cache misses only)
func (e *Engine) HashCount() int64 {
	return e.hashCount.Load()
}

// PersistCache flushes the hash cache to disk. The engine never persists
// on its own; the caller decides when, typically once per run.
func (e *Engine) PersistCache() error {
	return e.cache.Persist()
}

// Compare aligns both entry lists by relative path and classifies every
// path. Ambiguous pairs are resolved by hash verification through the
// cache; a hashing failure on any entry fails the whole call. The emitted
// order is the left list's order followed by right-only paths in the right
// list's order.
func (e *Engine) Compare(ctx context.Context, left, right Side) ([]Node, error) {
	rightIdx := indexEntries(right.Entries)
	leftIdx := indexEntries(left.Entries)

	nodes := make([]Node, 0, len(left.Entries)+len(right.Entries))
	var pending []int

	for i := range left.Entries {
		l := &left.Entries[i]
		r, ok := rightIdx[l.Path]
		if !ok {
			nodes = append(nodes, Node{
				Path:   l.Path,
				Left:   l,
				Status: OrphanLeft,
				Reason: "exists only on left side",
			})
			continue
		}

		status, reason := e.classify(l, r)
		nodes = append(nodes, Node{Path: l.Path, Left: l, Right: r, Status: status, Reason: reason})
		if status == unchecked {
			pending = append(pending, len(nodes)-1)
		}
	}

	for i := range right.Entries {
		r := &right.Entries[i]
		if _, ok := leftIdx[r.Path]; ok {
			continue
		}
		nodes = append(nodes, Node{
			Path:   r.Path,
			Right:  r,
			Status: OrphanRight,
			Reason: "exists only on right side",
		})
	}

	if err := e.resolveUnchecked(ctx, left, right, nodes, pending); err != nil {
		return nil, err
	}

	return nodes, nil
}

// CompareTrees scans both roots and compares the results, returning a
// full report. This is the entry point for backends of any kind; hashing
// reads bytes through each side's own VFS.
func (e *Engine) CompareTrees(ctx context.Context, leftFS, rightFS vfs.FS, leftRoot, rightRoot string, scanner *scan.Scanner) (*Report, error) {
	report := &Report{
		ID:            uuid.New().String(),
		LeftInstance:  leftFS.InstanceID(),
		RightInstance: rightFS.InstanceID(),
		StartTime:     time.Now(),
	}

	leftEntries, err := scanner.Scan(ctx, leftFS, leftRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to scan left tree: %w", err)
	}

	rightEntries, err := scanner.Scan(ctx, rightFS, rightRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to scan right tree: %w", err)
	}

	startHashes := e.hashCount.Load()
	nodes, err := e.Compare(ctx,
		Side{FS: leftFS, Root: leftRoot, Entries: leftEntries},
		Side{FS: rightFS, Root: rightRoot, Entries: rightEntries})
	if err != nil {
		return nil, err
	}

	report.Nodes = nodes
	report.EndTime = time.Now()
	report.Stats = collectStats(nodes, e.hashCount.Load()-startHashes)

	e.logger.Info("comparison complete",
		zap.String("id", report.ID),
		zap.Int("total", report.Stats.Total),
		zap.Int("different", report.Stats.Different),
		zap.Int64("files_hashed", report.Stats.FilesHashed))

	return report, nil
}

// classify applies the cheap decision table to a pair present on both
// sides. It never reads file content.
func (e *Engine) classify(l, r *vfs.FileEntry) (Status, string) {
	if l.IsDir != r.IsDir {
		return Different, "entry type differs"
	}
	if l.IsDir {
		// Directories are aligned, never hashed
		return Same, "directory on both sides"
	}
	if l.Size != r.Size {
		return Different, "file sizes differ"
	}
	if e.modTimeEqual(l.ModTime, r.ModTime) && !e.opts.VerifyHash {
		return Same, "size and modification time match"
	}
	return unchecked, ""
}

// modTimeEqual compares modification times within the configured window
func (e *Engine) modTimeEqual(a, b time.Time) bool {
	delta := a.Sub(b)
	if delta < 0 {
		delta = -delta
	}
	return delta <= e.opts.ModTimeWindow
}

// resolveUnchecked hash-verifies the pending nodes with a bounded worker
// pool. The first failure cancels the rest and fails the comparison.
func (e *Engine) resolveUnchecked(ctx context.Context, left, right Side, nodes []Node, pending []int) error {
	if len(pending) == 0 {
		return nil
	}

	hashCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
		done     atomic.Int64
	)
	semaphore := make(chan struct{}, e.opts.MaxWorkers)
	total := len(pending)

	for _, idx := range pending {
		node := &nodes[idx]

		semaphore <- struct{}{}
		wg.Add(1)
		go func(node *Node) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if hashCtx.Err() != nil {
				return
			}

			equal, err := e.hashEqual(hashCtx, left, right, node.Left, node.Right)
			if err != nil {
				errOnce.Do(func() {
					firstErr = err
					cancel()
				})
				return
			}

			if equal {
				node.Status = Same
				node.Reason = "content hashes match"
			} else {
				node.Status = Different
				node.Reason = "content hashes differ"
			}

			if e.progress != nil {
				e.progress(int(done.Add(1)), total)
			}
		}(node)
	}

	wg.Wait()

	if firstErr != nil {
		return fmt.Errorf("hash verification failed: %w", firstErr)
	}
	// Cancellation makes workers skip their node, leaving it unresolved,
	// so the comparison must fail rather than return partial results.
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// hashEqual compares the content hashes of a pair of files
func (e *Engine) hashEqual(ctx context.Context, left, right Side, l, r *vfs.FileEntry) (bool, error) {
	leftSum, err := e.hashEntry(ctx, left, l)
	if err != nil {
		return false, err
	}
	rightSum, err := e.hashEntry(ctx, right, r)
	if err != nil {
		return false, err
	}
	return leftSum == rightSum, nil
}

// hashEntry returns the content hash of one entry, consulting the cache
// first. The cache key folds the backend instance into the path namespace
// so the two sides never collide.
func (e *Engine) hashEntry(ctx context.Context, side Side, entry *vfs.FileEntry) (hashcache.Sum, error) {
	fullPath := side.fullPath(entry.Path)
	key := hashcache.NewKey(side.FS.InstanceID()+"!"+fullPath, entry.Size, entry.ModTime)

	if sum, ok := e.cache.Get(key); ok {
		return sum, nil
	}

	rc, err := side.FS.Open(ctx, fullPath)
	if err != nil {
		return hashcache.Sum{}, fmt.Errorf("failed to open %s: %w", entry.Path, err)
	}
	defer rc.Close()

	var reader io.Reader = rc
	if e.readerWrapper != nil {
		reader = e.readerWrapper(reader)
	}

	sum, err := hashcache.HashReader(reader)
	if err != nil {
		return hashcache.Sum{}, fmt.Errorf("failed to hash %s: %w", entry.Path, err)
	}

	e.hashCount.Add(1)
	e.cache.Put(key, sum)

	return sum, nil
}

// indexEntries builds a path-keyed index over an entry list
func indexEntries(entries []vfs.FileEntry) map[string]*vfs.FileEntry {
	index := make(map[string]*vfs.FileEntry, len(entries))
	for i := range entries {
		index[entries[i].Path] = &entries[i]
	}
	return index
}
