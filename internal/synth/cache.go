package synth

import (
	"crypto/sha256"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache keeps recently synthesized chunks in memory. Chunks are shared
// between hits and must be treated as read-only.
type Cache struct {
	entries *lru.Cache[string, Chunk]
}

// NewCache returns nil when size is not positive; a nil *Cache is a valid
// always-miss cache.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		return nil, nil
	}
	entries, err := lru.New[string, Chunk](size)
	if err != nil {
		return nil, fmt.Errorf("create synth cache: %w", err)
	}
	return &Cache{entries: entries}, nil
}

// CacheKey is a deterministic digest of the speech-affecting parameters.
func CacheKey(normalizedText, voice string) string {
	h := sha256.New()
	fmt.Fprintf(h, "text=%s\nvoice=%s\n", normalizedText, voice)
	return fmt.Sprintf("%x", h.Sum(nil))
}

func (c *Cache) Get(key string) (Chunk, bool) {
	if c == nil {
		return Chunk{}, false
	}
	return c.entries.Get(key)
}

func (c *Cache) Add(key string, chunk Chunk) {
	if c == nil {
		return
	}
	c.entries.Add(key, chunk)
}

func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
