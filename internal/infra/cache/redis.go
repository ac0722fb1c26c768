package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "assistant:introspection:"

// IntrospectionCache remembers which credential/identity pairs the
// introspection endpoint has recently accepted. Only successes are stored.
type IntrospectionCache interface {
	Accepted(ctx context.Context, key string) (bool, error)
	Remember(ctx context.Context, key string, ttl time.Duration) error
}

type redisCache struct {
	client *redis.Client
}

func NewRedisClient(ctx context.Context, url string, poolSize int) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	if poolSize > 0 {
		opt.PoolSize = poolSize
	}

	client := redis.NewClient(opt)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

func NewIntrospectionCache(client *redis.Client) IntrospectionCache {
	return &redisCache{client: client}
}

func (r *redisCache) Accepted(ctx context.Context, key string) (bool, error) {
	err := r.client.Get(ctx, keyPrefix+key).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get from redis: %w", err)
	}
	return true, nil
}

func (r *redisCache) Remember(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, keyPrefix+key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to set redis cache: %w", err)
	}
	return nil
}

type noopCache struct{}

// Noop never remembers anything; every validation reaches the introspection endpoint.
func Noop() IntrospectionCache {
	return noopCache{}
}

func (noopCache) Accepted(context.Context, string) (bool, error)         { return false, nil }
func (noopCache) Remember(context.Context, string, time.Duration) error { return nil }

// Key derives a cache key from the outbound header set. The raw token never
// leaves the process; only its digest is stored.
func Key(headers map[string]string) string {
	names := make([]string, 0, len(headers))
	for k := range headers {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, k := range names {
		b.WriteString(strings.ToLower(k))
		b.WriteByte('=')
		b.WriteString(headers[k])
		b.WriteByte('\n')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
