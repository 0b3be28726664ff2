package diagnostics

import (
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MaxSourceBytes caps the size of files loaded for excerpts.
const MaxSourceBytes = 4 << 20

// DefaultSourceCacheSize is the number of files kept by NewSourceCache(0).
const DefaultSourceCacheSize = 64

type sourceEntry struct {
	modTime time.Time
	size    int64
	text    string
}

// SourceCache keeps recently read source files in memory. An entry is
// re-read when the file's modification time or size changes.
type SourceCache struct {
	lru *lru.Cache[string, *sourceEntry]
}

// NewSourceCache creates a cache holding up to size files.
func NewSourceCache(size int) *SourceCache {
	if size <= 0 {
		size = DefaultSourceCacheSize
	}
	// lru.New only fails for non-positive sizes.
	cache, _ := lru.New[string, *sourceEntry](size)
	return &SourceCache{lru: cache}
}

// Read returns the contents of the regular file at path. The second result
// is false when the file is missing, unreadable, not regular or too large.
func (c *SourceCache) Read(path string) (string, bool) {
	if path == "" {
		return "", false
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() || info.Size() > MaxSourceBytes {
		return "", false
	}

	if c != nil {
		if entry, ok := c.lru.Get(path); ok && entry.size == info.Size() && entry.modTime.Equal(info.ModTime()) {
			return entry.text, true
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}

	text := string(data)
	if c != nil {
		c.lru.Add(path, &sourceEntry{modTime: info.ModTime(), size: info.Size(), text: text})
	}
	return text, true
}

// Len reports the number of cached files.
func (c *SourceCache) Len() int {
	return c.lru.Len()
}

// Purge drops every cached file.
func (c *SourceCache) Purge() {
	c.lru.Purge()
}
