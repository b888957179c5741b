package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/a11y-tracker/internal/tracker"
)

// releaseScript deletes the key only while it still carries our token.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// RedisClient is the subset of redis.UniversalClient the lease needs.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisConfig controls the lease.
type RedisConfig struct {
	Key string
	// TTL bounds how long a crashed holder can block others.
	TTL time.Duration
}

// Redis holds the lock as a lease with a random owner token.
type Redis struct {
	client RedisClient
	cfg    RedisConfig
	newTok func() string

	mu    sync.Mutex
	token string
}

// NewRedis returns a Redis lease lock.
func NewRedis(client RedisClient, cfg RedisConfig) (*Redis, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.Key == "" {
		return nil, errors.New("lock key is required")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("lock ttl must be > 0")
	}
	return &Redis{client: client, cfg: cfg, newTok: uuid.NewString}, nil
}

// TryAcquire sets the key if absent or returns tracker.ErrLockContended.
func (l *Redis) TryAcquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.token != "" {
		return tracker.ErrLockContended
	}
	token := l.newTok()
	ok, err := l.client.SetNX(ctx, l.cfg.Key, token, l.cfg.TTL).Result()
	if err != nil {
		return fmt.Errorf("acquire redis lease: %w", err)
	}
	if !ok {
		return tracker.ErrLockContended
	}
	l.token = token
	return nil
}

// Release drops the lease if we still own it.
func (l *Redis) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.token == "" {
		return nil
	}
	token := l.token
	l.token = ""
	if err := l.client.Eval(ctx, releaseScript, []string{l.cfg.Key}, token).Err(); err != nil {
		return fmt.Errorf("release redis lease: %w", err)
	}
	return nil
}
