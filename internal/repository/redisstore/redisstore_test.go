package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/prefracta-audit/internal/domain"
	"github.com/xela07ax/prefracta-audit/internal/infra"
)

// Тесты ходят в настоящий Redis: PREFRACTA_TEST_REDIS=localhost:6379 go test ./...
func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("PREFRACTA_TEST_REDIS")
	if addr == "" {
		t.Skip("PREFRACTA_TEST_REDIS is not set")
	}

	rdb, err := infra.OpenRedis(context.Background(), infra.RedisConfig{Addr: addr, DB: 15}, 1, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = rdb.FlushDB(context.Background()).Err()
		_ = rdb.Close()
	})
	require.NoError(t, rdb.FlushDB(context.Background()).Err())
	return rdb
}

func TestLatestIndex(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	idx := NewLatestIndex(rdb)

	_, err := idx.Latest(ctx, "u-1")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)

	require.NoError(t, idx.SetLatest(ctx, "u-1", "s-1"))
	require.NoError(t, idx.SetLatest(ctx, "u-1", "s-2"))

	id, err := idx.Latest(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "s-2", id)
}

func TestSessionLocker(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	l := NewSessionLocker(rdb, time.Minute, zap.NewNop())

	release, err := l.Acquire(ctx, "s-1")
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "s-1")
	require.ErrorIs(t, err, domain.ErrSessionBusy)

	release()
	release2, err := l.Acquire(ctx, "s-1")
	require.NoError(t, err)
	defer release2()

	// чужой release не снимает новую блокировку
	release()
	_, err = l.Acquire(ctx, "s-1")
	require.ErrorIs(t, err, domain.ErrSessionBusy)
}

func TestLedger(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	l := NewLedger(rdb, 1, zap.NewNop())

	t.Run("new caller spends free credit once", func(t *testing.T) {
		require.NoError(t, l.CheckAndDebit(ctx, "u-1", 1))
		err := l.CheckAndDebit(ctx, "u-1", 1)
		require.ErrorIs(t, err, domain.ErrEntitlementDenied)
	})

	t.Run("granted credits are spent", func(t *testing.T) {
		require.NoError(t, l.Grant(ctx, "u-1", 2))
		require.NoError(t, l.CheckAndDebit(ctx, "u-1", 2))
		require.ErrorIs(t, l.CheckAndDebit(ctx, "u-1", 1), domain.ErrEntitlementDenied)
	})

	t.Run("active subscription is not debited", func(t *testing.T) {
		require.NoError(t, l.Subscribe(ctx, "u-2", time.Now().Add(24*time.Hour)))
		for i := 0; i < 3; i++ {
			require.NoError(t, l.CheckAndDebit(ctx, "u-2", 1))
		}
		left, err := rdb.HGet(ctx, infra.RedisKeyCredits, "u-2").Result()
		require.ErrorIs(t, err, redis.Nil, "credits untouched, got %q", left)
	})

	t.Run("expired subscription falls back to credits", func(t *testing.T) {
		require.NoError(t, l.Subscribe(ctx, "u-3", time.Now().Add(-time.Hour)))
		require.NoError(t, l.CheckAndDebit(ctx, "u-3", 1))
		require.ErrorIs(t, l.CheckAndDebit(ctx, "u-3", 1), domain.ErrEntitlementDenied)
	})

	t.Run("usage counter", func(t *testing.T) {
		require.NoError(t, l.RecordUsage(ctx, "u-4"))
		require.NoError(t, l.RecordUsage(ctx, "u-4"))
		n, err := rdb.HGet(ctx, infra.RedisKeyTotalTests, "u-4").Int64()
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})
}
