package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// casScript compares the current value to ARGV[1] and replaces it with
// ARGV[2] only on match. ARGV[3] is the expiry in milliseconds, 0 for none.
var casScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current == false then
	return 0
end
if current ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

// RedisProvider is a Redis implementation of the Store interface.
type RedisProvider struct {
	client *redis.Client
}

// RedisConfig contains Redis-specific configuration.
type RedisConfig struct {
	// Host is the Redis server host (default: localhost)
	Host string

	// Port is the Redis server port (default: 6379)
	Port int

	// Password for Redis authentication (optional)
	Password string

	// DB is the Redis database number (default: 0)
	DB int

	// PoolSize is the maximum number of connections (default: 10)
	PoolSize int
}

// NewRedisProvider creates a new Redis store provider.
func NewRedisProvider(config *RedisConfig) (*RedisProvider, error) {
	if config == nil {
		config = &RedisConfig{
			Host: "localhost",
			Port: 6379,
		}
	}

	if config.Host == "" {
		config.Host = "localhost"
	}
	if config.Port == 0 {
		config.Port = 6379
	}
	if config.PoolSize == 0 {
		config.PoolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisProvider{client: client}, nil
}

// Get retrieves a value from the store by key.
func (r *RedisProvider) Get(ctx context.Context, key Key) ([]byte, bool) {
	val, err := r.client.Get(ctx, key.String()).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

// Set stores a value with the specified TTL. ttl=0 means no expiration.
func (r *RedisProvider) Set(ctx context.Context, key Key, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key.String(), value, ttl).Err()
}

// CompareAndSwap stores value only if the current value equals expected.
// A nil expected maps to SET NX.
func (r *RedisProvider) CompareAndSwap(ctx context.Context, key Key, expected, value []byte, ttl time.Duration) (bool, error) {
	if expected == nil {
		return r.client.SetNX(ctx, key.String(), value, ttl).Result()
	}

	res, err := casScript.Run(ctx, r.client, []string{key.String()},
		expected, value, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("redis CAS failed: %w", err)
	}
	return res == 1, nil
}

// Delete removes a key from the store.
func (r *RedisProvider) Delete(ctx context.Context, key Key) error {
	return r.client.Del(ctx, key.String()).Err()
}

// TTL returns the remaining lifetime of a key, clamped to >= 0.
func (r *RedisProvider) TTL(ctx context.Context, key Key) (time.Duration, bool) {
	d, err := r.client.TTL(ctx, key.String()).Result()
	if err != nil {
		return 0, false
	}
	// go-redis reports -2 for an absent key and -1 for a key without expiry.
	switch {
	case d == -2:
		return 0, false
	case d == -1:
		return 0, true
	case d < 0:
		return 0, false
	default:
		return d, true
	}
}

// Keys enumerates the keys of one keyspace using SCAN.
func (r *RedisProvider) Keys(ctx context.Context, kind Kind) ([]Key, error) {
	pattern := fmt.Sprintf("cachespec:%s:*", kindPrefixes[kind])
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()

	keys := make([]Key, 0)
	for iter.Next(ctx) {
		key, err := ParseKey(iter.Val())
		if err != nil {
			continue
		}
		if key.Kind == kind {
			keys = append(keys, key)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// Exists checks if a key exists in the store.
func (r *RedisProvider) Exists(ctx context.Context, key Key) bool {
	result, err := r.client.Exists(ctx, key.String()).Result()
	if err != nil {
		return false
	}
	return result > 0
}

// Clear removes all items from the store.
func (r *RedisProvider) Clear(ctx context.Context) error {
	return r.client.FlushDB(ctx).Err()
}

// Close closes the provider and releases any resources.
func (r *RedisProvider) Close() error {
	return r.client.Close()
}

// Stats returns statistics about the store provider.
func (r *RedisProvider) Stats(ctx context.Context) (*Stats, error) {
	info, err := r.client.Info(ctx, "stats", "keyspace").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get Redis stats: %w", err)
	}

	dbSize, err := r.client.DBSize(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get DB size: %w", err)
	}

	return &Stats{
		Keys:         dbSize,
		ProviderType: "redis",
		ProviderStats: map[string]any{
			"info": info,
		},
	}, nil
}
