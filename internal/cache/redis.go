package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Redis is a TTL cache shared between engine replicas. Values are stored as
// JSON. Redis errors are logged and treated as misses so the cache never
// fails a read.
type Redis[T any] struct {
	client  *redis.Client
	logger  *slog.Logger
	prefix  string
	ttl     time.Duration
	timeout time.Duration
	obs     Observer
}

// RedisOptions configures the shared tier
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// NewRedis connects to Redis and verifies the connection with a ping
func NewRedis[T any](opts RedisOptions, obs Observer, logger *slog.Logger) (*Redis[T], error) {
	client := redis.NewClient(&redis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return NewRedisFromClient[T](client, opts.Prefix, opts.TTL, obs, logger), nil
}

// NewRedisFromClient wraps an existing client
func NewRedisFromClient[T any](client *redis.Client, prefix string, ttl time.Duration, obs Observer, logger *slog.Logger) *Redis[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis[T]{
		client:  client,
		logger:  logger,
		prefix:  prefix,
		ttl:     ttl,
		timeout: 250 * time.Millisecond,
		obs:     obs,
	}
}

func (r *Redis[T]) Get(ctx context.Context, key string) (T, bool) {
	var zero T
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logRedisError("get", err)
		}
		r.miss()
		return zero, false
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		r.logRedisError("decode", err)
		r.miss()
		return zero, false
	}
	if r.obs != nil {
		r.obs.CacheHit()
	}
	return v, true
}

func (r *Redis[T]) Set(ctx context.Context, key string, v T) {
	if r.ttl <= 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		r.logRedisError("encode", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.client.Set(ctx, r.prefix+key, data, r.ttl).Err(); err != nil {
		r.logRedisError("set", err)
	}
}

func (r *Redis[T]) Delete(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		r.logRedisError("del", err)
	}
}

// Close releases the client
func (r *Redis[T]) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

func (r *Redis[T]) miss() {
	if r.obs != nil {
		r.obs.CacheMiss()
	}
}

func (r *Redis[T]) logRedisError(op string, err error) {
	r.logger.Error("redis cache error", "op", op, "error", err)
}
