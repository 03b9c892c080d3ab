package cache_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/vaidya-health/vaidya/pkg/domain/interfaces"
	"github.com/vaidya-health/vaidya/pkg/repository/cache"
)

func runTranslationCacheTest(t *testing.T, newCache func(t *testing.T) interfaces.TranslationCache) {
	t.Helper()

	t.Run("miss then hit", func(t *testing.T) {
		c := newCache(t)
		ctx := context.Background()
		key := fmt.Sprintf("key-%d", time.Now().UnixNano())

		_, found, err := c.Get(ctx, key)
		gt.NoError(t, err).Required()
		gt.Bool(t, found).False()

		gt.NoError(t, c.Put(ctx, key, "बुखार")).Required()
		v, found, err := c.Get(ctx, key)
		gt.NoError(t, err).Required()
		gt.Bool(t, found).True()
		gt.Value(t, v).Equal("बुखार")
	})

	t.Run("put overwrites", func(t *testing.T) {
		c := newCache(t)
		ctx := context.Background()
		key := fmt.Sprintf("key-%d", time.Now().UnixNano())

		gt.NoError(t, c.Put(ctx, key, "first")).Required()
		gt.NoError(t, c.Put(ctx, key, "second")).Required()
		v, _, err := c.Get(ctx, key)
		gt.NoError(t, err).Required()
		gt.Value(t, v).Equal("second")
	})
}

func TestLRUCache(t *testing.T) {
	runTranslationCacheTest(t, func(t *testing.T) interfaces.TranslationCache {
		c, err := cache.NewLRU(16)
		gt.NoError(t, err).Required()
		return c
	})
}

func TestLRUCacheEvicts(t *testing.T) {
	ctx := context.Background()
	c, err := cache.NewLRU(2)
	gt.NoError(t, err).Required()

	gt.NoError(t, c.Put(ctx, "a", "1")).Required()
	gt.NoError(t, c.Put(ctx, "b", "2")).Required()
	gt.NoError(t, c.Put(ctx, "c", "3")).Required()

	_, found, _ := c.Get(ctx, "a")
	gt.Bool(t, found).False()
	_, found, _ = c.Get(ctx, "c")
	gt.Bool(t, found).True()
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	runTranslationCacheTest(t, func(t *testing.T) interfaces.TranslationCache {
		c, err := cache.NewRedis(context.Background(), addr, os.Getenv("TEST_REDIS_PASSWORD"), 0,
			cache.WithKeyPrefix("vaidya-test:"), cache.WithTTL(time.Minute))
		gt.NoError(t, err).Required()
		t.Cleanup(func() {
			if err := c.Close(); err != nil {
				t.Errorf("failed to close redis: %v", err)
			}
		})
		return c
	})
}
