package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheEmptyIsMiss(t *testing.T) {
	t.Parallel()

	c := NewCache(time.Minute, nil)
	_, ok := c.Get()
	assert.False(t, ok)
}

func TestCacheTTLBoundary(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	now := t0
	ttl := 30 * time.Second
	c := NewCache(ttl, func() time.Time { return now })

	c.Set(true)

	now = t0.Add(ttl - time.Millisecond)
	v, ok := c.Get()
	assert.True(t, ok)
	assert.True(t, v)

	now = t0.Add(ttl)
	_, ok = c.Get()
	assert.False(t, ok, "expired exactly at ttl")

	now = t0.Add(ttl + time.Millisecond)
	_, ok = c.Get()
	assert.False(t, ok)
}

func TestCacheSetOverwrites(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	now := t0
	c := NewCache(10*time.Second, func() time.Time { return now })

	c.Set(true)
	now = t0.Add(8 * time.Second)
	c.Set(false)

	now = t0.Add(15 * time.Second)
	v, ok := c.Get()
	assert.True(t, ok, "ttl restarts from the latest Set")
	assert.False(t, v)
}

func TestCacheDefaultTTL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultTTL, NewCache(0, nil).TTL())
	assert.Equal(t, DefaultTTL, NewCache(-time.Second, nil).TTL())
	assert.Equal(t, time.Minute, NewCache(time.Minute, nil).TTL())
}
