package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/a11y-tracker/internal/tracker"
)

type fakeRedis struct {
	values  map[string]string
	setErr  error
	evalErr error
	ttls    map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx, "set", key, value, "nx")
	if f.setErr != nil {
		cmd.SetErr(f.setErr)
		return cmd
	}
	if _, exists := f.values[key]; exists {
		cmd.SetVal(false)
		return cmd
	}
	f.values[key] = value.(string)
	f.ttls[key] = ttl
	cmd.SetVal(true)
	return cmd
}

func (f *fakeRedis) Eval(ctx context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	cmd := redis.NewCmd(ctx, "eval")
	if f.evalErr != nil {
		cmd.SetErr(f.evalErr)
		return cmd
	}
	if f.values[keys[0]] == args[0].(string) {
		delete(f.values, keys[0])
		cmd.SetVal(int64(1))
		return cmd
	}
	cmd.SetVal(int64(0))
	return cmd
}

func TestRedisAcquireRelease(t *testing.T) {
	t.Parallel()

	client := newFakeRedis()
	l, err := NewRedis(client, RedisConfig{Key: "a11y:scan", TTL: time.Hour})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, l.TryAcquire(ctx))
	require.Contains(t, client.values, "a11y:scan")
	require.Equal(t, time.Hour, client.ttls["a11y:scan"])

	other, err := NewRedis(client, RedisConfig{Key: "a11y:scan", TTL: time.Hour})
	require.NoError(t, err)
	require.ErrorIs(t, other.TryAcquire(ctx), tracker.ErrLockContended)
	require.NoError(t, other.Release(ctx))
	require.Contains(t, client.values, "a11y:scan")

	require.NoError(t, l.Release(ctx))
	require.NotContains(t, client.values, "a11y:scan")
	require.NoError(t, l.Release(ctx))
}

func TestRedisReleaseKeepsForeignLease(t *testing.T) {
	t.Parallel()

	client := newFakeRedis()
	l, err := NewRedis(client, RedisConfig{Key: "k", TTL: time.Minute})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, l.TryAcquire(ctx))
	// Lease expired and someone else took it.
	client.values["k"] = "someone-else"
	require.NoError(t, l.Release(ctx))
	require.Equal(t, "someone-else", client.values["k"])
}

func TestRedisErrorsPropagate(t *testing.T) {
	t.Parallel()

	client := newFakeRedis()
	client.setErr = errors.New("connection refused")
	l, err := NewRedis(client, RedisConfig{Key: "k", TTL: time.Minute})
	require.NoError(t, err)

	err = l.TryAcquire(context.Background())
	require.Error(t, err)
	require.NotErrorIs(t, err, tracker.ErrLockContended)
}

func TestNewRedisValidates(t *testing.T) {
	t.Parallel()

	_, err := NewRedis(nil, RedisConfig{Key: "k", TTL: time.Second})
	require.Error(t, err)
	_, err = NewRedis(newFakeRedis(), RedisConfig{TTL: time.Second})
	require.Error(t, err)
	_, err = NewRedis(newFakeRedis(), RedisConfig{Key: "k"})
	require.Error(t, err)
}
