package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/m-mizutani/goerr/v2"
	"github.com/vaidya-health/vaidya/pkg/domain/interfaces"
)

// DefaultLRUSize is the number of entries kept by the in-process cache
const DefaultLRUSize = 10000

// LRU is an in-process TranslationCache
type LRU struct {
	cache *lru.Cache[string, string]
}

var _ interfaces.TranslationCache = &LRU{}

// NewLRU creates a cache holding up to size entries
func NewLRU(size int) (*LRU, error) {
	if size <= 0 {
		size = DefaultLRUSize
	}
	c, err := lru.New[string, string](size)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create LRU cache", goerr.V("size", size))
	}
	return &LRU{cache: c}, nil
}

func (c *LRU) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok := c.cache.Get(key)
	return v, ok, nil
}

func (c *LRU) Put(ctx context.Context, key, value string) error {
	c.cache.Add(key, value)
	return nil
}
