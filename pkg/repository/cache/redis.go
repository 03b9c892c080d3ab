package cache

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/redis/go-redis/v9"
	"github.com/vaidya-health/vaidya/pkg/domain/interfaces"
)

// DefaultRedisTTL is how long translations stay in Redis
const DefaultRedisTTL = 7 * 24 * time.Hour

// Redis is a TranslationCache shared between processes
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ interfaces.TranslationCache = &Redis{}

// RedisOption configures Redis
type RedisOption func(*Redis)

// WithKeyPrefix prefixes every key
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// WithTTL sets the entry lifetime; 0 keeps entries forever
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		r.ttl = ttl
	}
}

// NewRedis connects to addr and checks the connection
func NewRedis(ctx context.Context, addr, password string, db int, opts ...RedisOption) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, goerr.Wrap(err, "failed to connect to redis", goerr.V("addr", addr))
	}

	r := &Redis{
		client: client,
		prefix: "vaidya:",
		ttl:    DefaultRedisTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, goerr.Wrap(err, "failed to get cache entry", goerr.V("key", key))
	}
	return val, true, nil
}

func (r *Redis) Put(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.prefix+key, value, r.ttl).Err(); err != nil {
		return goerr.Wrap(err, "failed to set cache entry", goerr.V("key", key))
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
