package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/semsphere/semsphere/hash"
)

func TestLRUEvictsOldest(t *testing.T) {
	c := NewLRU[string](2)

	k1 := hash.SumString("one")
	k2 := hash.SumString("two")
	k3 := hash.SumString("three")

	c.Set(k1, "a")
	c.Set(k2, "b")
	assert.Equal(t, 2, c.Len())

	// Touch k1 so k2 becomes the eviction victim.
	_, ok := c.Get(k1)
	assert.True(t, ok)

	c.Set(k3, "c")
	assert.Equal(t, 2, c.Len())

	_, ok = c.Get(k2)
	assert.False(t, ok, "k2 should have been evicted")
	v, ok := c.Get(k1)
	assert.True(t, ok)
	assert.Equal(t, "a", v)
	_, ok = c.Get(k3)
	assert.True(t, ok)
}

func TestLRUUpdateInPlace(t *testing.T) {
	c := NewLRU[int](2)
	k := hash.SumString("k")

	c.Set(k, 1)
	c.Set(k, 2)
	assert.Equal(t, 1, c.Len())

	v, ok := c.Get(k)
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestLRURemove(t *testing.T) {
	c := NewLRU[int](4)
	k := hash.SumString("k")

	c.Set(k, 1)
	c.Remove(k)
	_, ok := c.Get(k)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestLRUZeroCapacity(t *testing.T) {
	c := NewLRU[int](0)
	k := hash.SumString("k")

	c.Set(k, 1)
	_, ok := c.Get(k)
	assert.False(t, ok)
}

func TestLRUStats(t *testing.T) {
	c := NewLRU[int](2)
	k := hash.SumString("k")

	c.Set(k, 1)
	c.Get(k)
	c.Get(hash.SumString("missing"))

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}
