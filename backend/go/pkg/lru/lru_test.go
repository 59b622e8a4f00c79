package lru

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresABound(t *testing.T) {
	_, err := New[string, int](Config{})
	assert.Error(t, err)
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, err := New[string, int](Config{Capacity: 2})
	require.NoError(t, err)

	c.Put("a", 1, 1, 0)
	c.Put("b", 2, 1, 0)
	_, _ = c.Get("a")
	c.Put("c", 3, 1, 0)

	_, ok := c.Get("b")
	assert.False(t, ok)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Len())
}

func TestCache_WeightLimit(t *testing.T) {
	c, err := New[string, string](Config{MaxWeight: 10})
	require.NoError(t, err)

	c.Put("a", "x", 6, 0)
	c.Put("b", "y", 6, 0)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 6, c.Weight())

	c.Put("huge", "z", 11, 0)
	_, ok := c.Get("huge")
	assert.False(t, ok)

	c.Put("b", "y2", 2, 0)
	assert.Equal(t, 2, c.Weight())
}

func TestCache_Expiry(t *testing.T) {
	c, err := New[string, int](Config{Capacity: 4})
	require.NoError(t, err)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	c.Put("short", 1, 1, time.Minute)
	c.Put("forever", 2, 1, 0)

	now = now.Add(2 * time.Minute)
	_, ok := c.Get("short")
	assert.False(t, ok)
	_, ok = c.Get("forever")
	assert.True(t, ok)
	assert.Equal(t, 1, c.Len())

	c.Remove("forever")
	assert.Zero(t, c.Len())
}
