package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/uptime-rewards/internal/config"
	apperrors "github.com/uptime-rewards/internal/errors"
)

// RedisCache wraps the Redis client
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache connection
func NewRedisCache(ctx context.Context, cfg *config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConnections,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Close closes the Redis connection
func (r *RedisCache) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Client returns the underlying Redis client
func (r *RedisCache) Client() *redis.Client {
	return r.client
}

// Ping checks if Redis is reachable
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// RedisTickStore keeps the per-wallet "last tick" instant that lets a
// reloaded session resume accrual exactly where it stopped.
type RedisTickStore struct {
	cache *RedisCache
	ttl   time.Duration
}

// NewRedisTickStore creates a tick store. Entries expire after ttl of silence.
func NewRedisTickStore(cache *RedisCache, ttl time.Duration) *RedisTickStore {
	return &RedisTickStore{cache: cache, ttl: ttl}
}

func tickKey(wallet string) string {
	return "lastTick:" + wallet
}

// Get returns the stored tick. Missing, unparsable and non-positive values
// report ok=false.
func (s *RedisTickStore) Get(ctx context.Context, wallet string) (time.Time, bool, error) {
	raw, err := s.cache.client.Get(ctx, tickKey(wallet)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, apperrors.NewCacheError("get last tick", err)
	}

	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

// Set stores the tick as Unix milliseconds.
func (s *RedisTickStore) Set(ctx context.Context, wallet string, tick time.Time) error {
	if err := s.cache.client.Set(ctx, tickKey(wallet), tick.UnixMilli(), s.ttl).Err(); err != nil {
		return apperrors.NewCacheError("set last tick", err)
	}
	return nil
}

// Clear removes the tick.
func (s *RedisTickStore) Clear(ctx context.Context, wallet string) error {
	if err := s.cache.client.Del(ctx, tickKey(wallet)).Err(); err != nil {
		return apperrors.NewCacheError("clear last tick", err)
	}
	return nil
}

// RedisNonceStore holds single-use login nonces.
type RedisNonceStore struct {
	cache *RedisCache
}

// NewRedisNonceStore creates a nonce store.
func NewRedisNonceStore(cache *RedisCache) *RedisNonceStore {
	return &RedisNonceStore{cache: cache}
}

func nonceKey(wallet string) string {
	return "loginNonce:" + wallet
}

// Put stores the nonce for wallet, replacing any previous one.
func (s *RedisNonceStore) Put(ctx context.Context, wallet, nonce string, ttl time.Duration) error {
	if err := s.cache.client.Set(ctx, nonceKey(wallet), nonce, ttl).Err(); err != nil {
		return apperrors.NewCacheError("store nonce", err)
	}
	return nil
}

// Peek returns the outstanding nonce for wallet without consuming it. ok is
// false when none is outstanding.
func (s *RedisNonceStore) Peek(ctx context.Context, wallet string) (string, bool, error) {
	nonce, err := s.cache.client.Get(ctx, nonceKey(wallet)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperrors.NewCacheError("read nonce", err)
	}
	return nonce, true, nil
}

var consumeNonce = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Consume deletes the nonce for wallet only if it still equals nonce. It
// reports whether this call consumed it.
func (s *RedisNonceStore) Consume(ctx context.Context, wallet, nonce string) (bool, error) {
	n, err := consumeNonce.Run(ctx, s.cache.client, []string{nonceKey(wallet)}, nonce).Int()
	if err != nil {
		return false, apperrors.NewCacheError("consume nonce", err)
	}
	return n == 1, nil
}
