package match

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/xtmatch/xtmatch/internal/u32"
)

// Cache shares compiled u32 expressions between rules and reloads.
type Cache struct {
	matches *lru.Cache[string, *u32.Match]
}

// NewCache returns nil for a non-positive size, which disables caching.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		return nil, nil
	}
	matches, err := lru.New[string, *u32.Match](size)
	if err != nil {
		return nil, fmt.Errorf("lru.New: %w", err)
	}
	return &Cache{matches: matches}, nil
}

// Parse returns the compiled form of expr. Cached matches are shared, so
// callers must copy before changing Invert.
func (c *Cache) Parse(expr string, mode u32.ATMode) (*u32.Match, error) {
	if c == nil {
		return u32.Parse(expr, u32.WithATMode(mode))
	}

	key := mode.String() + "\x00" + expr
	if m, ok := c.matches.Get(key); ok {
		return m, nil
	}
	m, err := u32.Parse(expr, u32.WithATMode(mode))
	if err != nil {
		return nil, err
	}
	c.matches.Add(key, m)
	return m, nil
}

func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.matches.Len()
}
