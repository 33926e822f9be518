// Package texture keeps the texture pages referenced by area blocks.
// Pages are stored as read from the container; decompression and palette
// conversion happen in the renderer.
package texture

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/udisondev/levspool/internal/level"
)

// MaxPageSize bounds a single compressed page.
const MaxPageSize = 256 * 1024

// Config sizes the page cache.
type Config struct {
	NumCounters int64 `yaml:"num_counters"`
	MaxCost     int64 `yaml:"max_cost"` // bytes
}

// DefaultConfig returns a cache sized for a few hundred pages.
func DefaultConfig() Config {
	return Config{
		NumCounters: 10000,
		MaxCost:     32 * 1024 * 1024,
	}
}

// PageCache loads area texture pages and keeps their payloads.
// Each page in an area texture block is a u32 size followed by the payload.
type PageCache struct {
	cache *ristretto.Cache[uint64, []byte]
	loads int
	hits  int
}

// NewPageCache creates an empty cache.
func NewPageCache(cfg Config) (*PageCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[uint64, []byte]{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating texture page cache: %w", err)
	}
	return &PageCache{cache: cache}, nil
}

// LoadPage reads the page at the stream position. A cached page is skipped
// over without reading its payload.
func (c *PageCache) LoadPage(src *level.Stream, page uint8) error {
	var hdr [4]byte
	if _, err := src.Read(hdr[:]); err != nil {
		return fmt.Errorf("reading texture page %d header: %w", page, err)
	}
	size := binary.LittleEndian.Uint32(hdr[:])
	if size > MaxPageSize {
		return fmt.Errorf("texture page %d: size %d exceeds %d", page, size, MaxPageSize)
	}

	if _, ok := c.cache.Get(uint64(page)); ok {
		c.hits++
		return src.Seek(src.Tell() + int64(size))
	}

	payload := make([]byte, size)
	if _, err := src.Read(payload); err != nil {
		return fmt.Errorf("reading texture page %d: %w", page, err)
	}
	c.cache.Set(uint64(page), payload, int64(max(size, 1)))
	c.cache.Wait()
	c.loads++
	slog.Debug("texture page loaded", "page", page, "bytes", size)
	return nil
}

// Page returns the stored payload of a page.
func (c *PageCache) Page(page uint8) ([]byte, bool) {
	return c.cache.Get(uint64(page))
}

// Stats returns how many pages were read and how many were served from the
// cache.
func (c *PageCache) Stats() (loads, hits int) {
	return c.loads, c.hits
}

// Close releases the cache.
func (c *PageCache) Close() {
	c.cache.Close()
}
