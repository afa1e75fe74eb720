// Package hashcache persists content hashes keyed on a cheap identity
// proxy (path, size, mtime) so unchanged files are never re-hashed across
// runs. The cache is an optimization only: deleting it changes the cost of
// a comparison, never its outcome.
package hashcache

import (
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

// CacheFileName is the serialized cache file inside the cache directory
const CacheFileName = "hash_cache.bin"

// Key identifies file content by path, size and modification time. Two
// files sharing a Key are assumed to share content until an explicit
// re-hash says otherwise.
type Key struct {
	Path    string
	Size    int64
	ModTime int64 // UnixNano
}

// NewKey builds a Key from observed file identity
func NewKey(path string, size int64, modTime time.Time) Key {
	return Key{Path: path, Size: size, ModTime: modTime.UnixNano()}
}

// Sum is a 256-bit BLAKE2b content hash. Equal sums mean equal content
// with cryptographic confidence; unequal sums mean definitely different.
type Sum [32]byte

func (s Sum) String() string {
	return hex.EncodeToString(s[:])
}

// Cache is a persistent map from Key to Sum. Safe for concurrent use; many
// Gets run under a shared read lock, Put takes the write lock, and Persist
// only holds the read lock while snapshotting.
type Cache struct {
	dir    string
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[Key]Sum
}

// New creates a cache backed by dir, eagerly loading an existing cache
// file. A corrupt or unreadable cache file is treated as empty: the worst
// case is re-hashing, never a wrong comparison.
func New(dir string, logger *zap.Logger) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	c := &Cache{
		dir:     dir,
		logger:  logger,
		entries: make(map[Key]Sum),
	}
	c.load()

	return c, nil
}

// NewMemory creates a cache that never touches disk. Persist and Clear
// become no-ops on the file side.
func NewMemory() *Cache {
	return &Cache{
		logger:  zap.NewNop(),
		entries: make(map[Key]Sum),
	}
}

// load reads the cache file if present. Called once from New.
func (c *Cache) load() {
	file, err := os.Open(c.Path())
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("failed to open hash cache, starting empty",
				zap.String("path", c.Path()), zap.Error(err))
		}
		return
	}
	defer file.Close()

	var entries map[Key]Sum
	if err := gob.NewDecoder(file).Decode(&entries); err != nil {
		c.logger.Warn("hash cache is corrupt, starting empty",
			zap.String("path", c.Path()), zap.Error(err))
		return
	}

	c.entries = entries
}

// Path returns the cache file location
func (c *Cache) Path() string {
	return filepath.Join(c.dir, CacheFileName)
}

// Get returns the cached hash for key, if any
func (c *Cache) Get(key Key) (Sum, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sum, ok := c.entries[key]
	return sum, ok
}

// Put inserts or overwrites the hash for key
func (c *Cache) Put(key Key, sum Sum) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = sum
}

// Len returns the number of cached entries
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Persist writes the cache to disk via a temp file and atomic rename, so
// the on-disk file is never observed half-written. The read lock is held
// only for the in-memory snapshot, not for the file write.
func (c *Cache) Persist() error {
	if c.dir == "" {
		return nil
	}

	c.mu.RLock()
	snapshot := make(map[Key]Sum, len(c.entries))
	for key, sum := range c.entries {
		snapshot[key] = sum
	}
	c.mu.RUnlock()

	tmpPath := c.Path() + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}

	if err := gob.NewEncoder(file).Encode(snapshot); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to serialize cache: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close cache file: %w", err)
	}

	if err := os.Rename(tmpPath, c.Path()); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize cache file: %w", err)
	}

	return nil
}

// Clear removes all entries and deletes the cache file
func (c *Cache) Clear() error {
	c.mu.Lock()
	c.entries = make(map[Key]Sum)
	c.mu.Unlock()

	if c.dir == "" {
		return nil
	}

	err := os.Remove(c.Path())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// HashReader streams r through BLAKE2b-256 and returns the content hash
func HashReader(r io.Reader) (Sum, error) {
	hasher, err := blake2b.New256(nil)
	if err != nil {
		return Sum{}, err
	}

	if _, err := io.Copy(hasher, r); err != nil {
		return Sum{}, err
	}

	var sum Sum
	copy(sum[:], hasher.Sum(nil))
	return sum, nil
}
