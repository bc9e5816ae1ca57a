package freecache

import (
	"sync"
	"testing"
	"time"

	"github.com/ssuji15/scriptd/model"
	"github.com/stretchr/testify/require"
)

func resetFreeCacheForTest() {
	fcc = nil
	initError = nil
	once = sync.Once{}
}

func newTestCache(t *testing.T, ttl string) *FreeCache {
	t.Helper()
	resetFreeCacheForTest()
	t.Setenv("FREECACHE_TTL", ttl)
	t.Setenv("FREECACHE_SIZE", "1048576")
	c, err := NewFreeCache()
	require.NoError(t, err)
	return c.(*FreeCache)
}

func TestNewFreeCache(t *testing.T) {
	tests := []struct {
		name      string
		ttlEnv    string
		sizeEnv   string
		expectErr bool
	}{
		{"Valid env initializes cache", "5", "1048576", false},
		{"Missing TTL returns error", "", "1048576", true},
		{"Missing size returns error", "5", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFreeCacheForTest()
			t.Setenv("FREECACHE_TTL", tt.ttlEnv)
			t.Setenv("FREECACHE_SIZE", tt.sizeEnv)

			c, err := NewFreeCache()
			if tt.expectErr {
				require.Error(t, err)
				require.Nil(t, c)
				return
			}
			require.NoError(t, err)
			require.Equal(t, 5, c.GetDefaultTTL())

			c2, err := NewFreeCache()
			require.NoError(t, err)
			require.Same(t, c, c2)
		})
	}
}

func TestFreeCache_PutGetStatus(t *testing.T) {
	c := newTestCache(t, "5")
	ctx := t.Context()

	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	completed := started.Add(3 * time.Second)
	want := model.Status{TimeStarted: &started, TimeCompleted: &completed, Error: true}

	require.NoError(t, c.Put(ctx, "status:abc", want, c.GetDefaultTTL()))

	var got model.Status
	require.NoError(t, c.Get(ctx, "status:abc", &got))
	require.True(t, got.TimeStarted.Equal(started))
	require.True(t, got.TimeCompleted.Equal(completed))
	require.True(t, got.Error)
}

func TestFreeCache_InvalidInput(t *testing.T) {
	c := newTestCache(t, "5")
	ctx := t.Context()

	tests := []struct {
		name string
		run  func() error
	}{
		{"Put empty key", func() error { return c.Put(ctx, "", "v", 5) }},
		{"Put nil value", func() error { return c.Put(ctx, "k", nil, 5) }},
		{"Get empty key", func() error { var s string; return c.Get(ctx, "", &s) }},
		{"Get missing key", func() error { var s string; return c.Get(ctx, "missing", &s) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.run())
		})
	}
}

func TestFreeCache_TTL(t *testing.T) {
	c := newTestCache(t, "5")
	ctx := t.Context()

	require.NoError(t, c.Put(ctx, "short", "temp", 1))
	require.NoError(t, c.Put(ctx, "long", "persistent", 10))

	time.Sleep(2 * time.Second)

	var out string
	require.Error(t, c.Get(ctx, "short", &out))
	require.NoError(t, c.Get(ctx, "long", &out))
	require.Equal(t, "persistent", out)
}

func TestFreeCache_ShutDownClears(t *testing.T) {
	c := newTestCache(t, "5")
	ctx := t.Context()

	require.NoError(t, c.Put(ctx, "key1", "value1", c.GetDefaultTTL()))
	c.ShutDown(ctx)

	var out string
	require.Error(t, c.Get(ctx, "key1", &out))
}
