// Package cache persists content digests so unchanged files need not be
// re-read on every resolution pass.
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauern/mirrorsync/internal/util"
)

// Entry is a cached digest together with the file metadata it was computed for.
type Entry struct {
	Digest   string    `json:"digest"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
	CachedAt time.Time `json:"cached_at"`
}

// matches reports whether info still describes the file the digest was computed from.
func (e Entry) matches(info os.FileInfo) bool {
	return e.Size == info.Size() && e.ModTime.Equal(info.ModTime())
}

// Cache maps absolute file paths to digests. It is safe for concurrent use.
type Cache struct {
	Version string           `json:"version"`
	Entries map[string]Entry `json:"entries"`

	mu    sync.Mutex
	path  string
	dirty bool
}

const (
	cacheVersion = "1.0"
	// DefaultTTL bounds how long an entry survives Prune.
	DefaultTTL = 30 * 24 * time.Hour
)

// New creates or loads the cache named name (e.g. "digests").
// If cacheDir is empty, defaults to ~/.mirrorsync/cache.
func New(name string, cacheDir string) (*Cache, error) {
	if cacheDir == "" {
		cacheDir = util.CachePath()
	}
	if err := os.MkdirAll(cacheDir, 0o750); err != nil {
		return nil, err
	}

	cachePath := filepath.Join(cacheDir, name+".json")
	c := &Cache{
		Version: cacheVersion,
		Entries: make(map[string]Entry),
	}

	// #nosec G304 - cachePath is constructed from trusted configuration path
	if data, err := os.ReadFile(cachePath); err == nil {
		if err := json.Unmarshal(data, c); err != nil {
			// Corrupted cache, start fresh
			c.Entries = make(map[string]Entry)
		}
		if c.Version != cacheVersion || c.Entries == nil {
			c.Entries = make(map[string]Entry)
			c.Version = cacheVersion
		}
	}

	c.path = cachePath
	return c, nil
}

// Path returns the file the cache persists to.
func (c *Cache) Path() string {
	return c.path
}

// Get returns the cached digest for path if info still matches the entry.
// Stale entries are dropped.
func (c *Cache) Get(path string, info os.FileInfo) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := filepath.Clean(path)
	entry, ok := c.Entries[key]
	if !ok {
		return "", false
	}
	if !entry.matches(info) {
		delete(c.Entries, key)
		c.dirty = true
		return "", false
	}
	return entry.Digest, true
}

// Set records digest for path as computed against info.
func (c *Cache) Set(path string, info os.FileInfo, digest string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Entries[filepath.Clean(path)] = Entry{
		Digest:   digest,
		Size:     info.Size(),
		ModTime:  info.ModTime(),
		CachedAt: time.Now(),
	}
	c.dirty = true
}

// Save persists the cache to disk if it changed since it was loaded.
func (c *Cache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dirty {
		return nil
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	// #nosec G306 - cache files should be readable by user
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return err
	}
	c.dirty = false
	return nil
}

// Clear removes all entries and the backing file.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Entries = make(map[string]Entry)
	c.dirty = false
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Size returns the number of entries in the cache.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Entries)
}

// Prune removes entries cached longer than ttl ago and returns how many went.
func (c *Cache) Prune(ttl time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	pruned := 0
	for key, entry := range c.Entries {
		if time.Since(entry.CachedAt) > ttl {
			delete(c.Entries, key)
			pruned++
		}
	}
	if pruned > 0 {
		c.dirty = true
	}
	return pruned
}
