package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("c", 3)
	_, ok = c.Get("b")
	assert.False(t, ok, "b was least recently used")
	assert.Equal(t, 2, c.Size())
}

func TestLRUCacheExpiry(t *testing.T) {
	now := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, c.CleanExpired())
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestLRUCacheDeletePrefix(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	c.Set("summary:b1:2025-07", 1)
	c.Set("summary:b1:2025-08", 2)
	c.Set("summary:b2:2025-07", 3)

	assert.Equal(t, 2, c.DeletePrefix("summary:b1:"))
	assert.Equal(t, 1, c.Size())
	_, ok := c.Get("summary:b2:2025-07")
	assert.True(t, ok)
}

func TestManagerRunEvictsUntilCancelled(t *testing.T) {
	c := NewLRUCache[int](4, time.Millisecond)
	c.Set("k", 1)

	m := NewManager()
	m.Register(c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, time.Millisecond) }()

	require.Eventually(t, func() bool { return c.Size() == 0 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}
