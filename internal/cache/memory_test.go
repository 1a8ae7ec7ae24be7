package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tpia/config"
)

func TestMemoryStoreExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), 0))

	v, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", string(v))

	now = now.Add(time.Minute)
	_, ok, _ = s.Get(ctx, "a")
	require.False(t, ok)
	_, ok, _ = s.Get(ctx, "b")
	require.True(t, ok)

	require.NoError(t, s.Delete(ctx, "b"))
	_, ok, _ = s.Get(ctx, "b")
	require.False(t, ok)
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	buf := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", buf, 0))
	buf[0] = 'x'
	v, _, _ := s.Get(ctx, "k")
	require.Equal(t, "abc", string(v))
}

func TestNewPicksMemoryWithoutAddr(t *testing.T) {
	require.IsType(t, &MemoryStore{}, New(config.RedisConfig{}))
	require.IsType(t, &RedisStore{}, New(config.RedisConfig{Addr: "localhost:6379"}))
}
