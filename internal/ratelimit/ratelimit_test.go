package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func exercise(t *testing.T, l Limiter, advance func(time.Duration)) {
	t.Helper()
	ctx := context.Background()
	rule := Rule{Name: "auth", Max: 3, Window: time.Minute}

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, rule, "10.0.0.1")
		require.NoError(t, err)
		require.True(t, d.Allowed)
		require.Equal(t, 3, d.Limit)
		require.Equal(t, 2-i, d.Remaining)
	}

	d, err := l.Allow(ctx, rule, "10.0.0.1")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, 0, d.Remaining)
	require.Greater(t, d.RetryAfter, time.Duration(0))

	other, err := l.Allow(ctx, rule, "10.0.0.2")
	require.NoError(t, err)
	require.True(t, other.Allowed)

	sameKeyOtherRule, err := l.Allow(ctx, Rule{Name: "general", Max: 3, Window: time.Minute}, "10.0.0.1")
	require.NoError(t, err)
	require.True(t, sameKeyOtherRule.Allowed)

	advance(time.Minute + time.Second)
	d, err = l.Allow(ctx, rule, "10.0.0.1")
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestMemoryLimiter(t *testing.T) {
	now := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter().WithClock(func() time.Time { return now })
	exercise(t, l, func(d time.Duration) { now = now.Add(d) })
}

func TestMemoryLimiterDropsIdleBuckets(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter().WithClock(func() time.Time { return now })
	rule := Rule{Name: "general", Max: 5, Window: time.Minute}

	for i := 0; i < 50; i++ {
		_, err := l.Allow(ctx, rule, fmt.Sprintf("10.0.0.%d", i))
		require.NoError(t, err)
	}
	require.Len(t, l.buckets, 50)

	now = now.Add(2 * time.Minute)
	d, err := l.Allow(ctx, rule, "10.0.1.1")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Len(t, l.buckets, 1)
}

func TestMemoryLimiterDoesNotRecordDeniedRequests(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter().WithClock(func() time.Time { return now })
	rule := Rule{Name: "upload", Max: 1, Window: time.Minute}

	d, _ := l.Allow(ctx, rule, "k")
	require.True(t, d.Allowed)
	for i := 0; i < 5; i++ {
		now = now.Add(10 * time.Second)
		d, _ = l.Allow(ctx, rule, "k")
		require.False(t, d.Allowed)
	}
	now = now.Add(11 * time.Second)
	d, _ = l.Allow(ctx, rule, "k")
	require.True(t, d.Allowed)
}

func TestRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	l := NewRedisLimiter(client, "nova:rl").WithClock(func() time.Time { return now })
	exercise(t, l, func(d time.Duration) {
		now = now.Add(d)
		mr.FastForward(d)
	})
}
