package config

import (
	"context"
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"github.com/vaidya-health/vaidya/pkg/domain/interfaces"
	"github.com/vaidya-health/vaidya/pkg/repository/cache"
	"github.com/vaidya-health/vaidya/pkg/utils/logging"
)

// Cache holds configuration for the translation cache
type Cache struct {
	backend       string
	size          int
	redisAddr     string
	redisPassword string
	redisDB       int
	ttl           time.Duration
}

// Flags returns CLI flags for cache configuration
func (c *Cache) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "cache-backend",
			Usage:       "Translation cache backend (memory or redis)",
			Value:       "memory",
			Sources:     cli.EnvVars("VAIDYA_CACHE_BACKEND"),
			Destination: &c.backend,
		},
		&cli.IntFlag{
			Name:        "cache-size",
			Usage:       "Number of translations kept by the memory cache",
			Value:       10000,
			Sources:     cli.EnvVars("VAIDYA_CACHE_SIZE"),
			Destination: &c.size,
		},
		&cli.StringFlag{
			Name:        "redis-addr",
			Usage:       "Redis address (host:port) for the redis cache backend",
			Sources:     cli.EnvVars("VAIDYA_REDIS_ADDR"),
			Destination: &c.redisAddr,
		},
		&cli.StringFlag{
			Name:        "redis-password",
			Usage:       "Redis password",
			Sources:     cli.EnvVars("VAIDYA_REDIS_PASSWORD"),
			Destination: &c.redisPassword,
		},
		&cli.IntFlag{
			Name:        "redis-db",
			Usage:       "Redis database number",
			Sources:     cli.EnvVars("VAIDYA_REDIS_DB"),
			Destination: &c.redisDB,
		},
		&cli.DurationFlag{
			Name:        "cache-ttl",
			Usage:       "Lifetime of cached translations in redis",
			Value:       cache.DefaultRedisTTL,
			Sources:     cli.EnvVars("VAIDYA_CACHE_TTL"),
			Destination: &c.ttl,
		},
	}
}

// LogAttrs returns log attributes for the cache configuration
func (c *Cache) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("backend", c.backend),
		slog.Int("size", c.size),
		slog.String("redis_addr", c.redisAddr),
		slog.Duration("ttl", c.ttl),
	}
}

// Configure creates the translation cache. The closer releases the redis connection.
func (c *Cache) Configure(ctx context.Context) (interfaces.TranslationCache, func(), error) {
	switch c.backend {
	case "", "memory":
		lru, err := cache.NewLRU(c.size)
		if err != nil {
			return nil, nil, err
		}
		return lru, func() {}, nil

	case "redis":
		if c.redisAddr == "" {
			return nil, nil, goerr.Wrap(ErrInvalidConfig, "redis-addr is required when using redis cache backend")
		}
		r, err := cache.NewRedis(ctx, c.redisAddr, c.redisPassword, c.redisDB, cache.WithTTL(c.ttl))
		if err != nil {
			return nil, nil, err
		}
		logging.Default().Info("Using Redis translation cache", "addr", c.redisAddr, "db", c.redisDB)
		return r, func() { _ = r.Close() }, nil

	default:
		return nil, nil, goerr.Wrap(ErrInvalidConfig, "invalid cache backend", goerr.V("backend", c.backend))
	}
}
