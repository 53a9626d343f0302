package queue

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinHeapOrder(t *testing.T) {
	pq := NewMin()
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 100; i++ {
		pq.PushItem(uint32(i), rng.Float32())
	}

	prev := float32(-1)
	for pq.Len() > 0 {
		item := pq.PopItem()
		require.NotNil(t, item)
		assert.GreaterOrEqual(t, item.Priority, prev)
		prev = item.Priority
	}
}

func TestMaxHeapOrder(t *testing.T) {
	pq := NewMax()
	pq.PushItem(1, 0.3)
	pq.PushItem(2, 0.9)
	pq.PushItem(3, 0.1)

	assert.Equal(t, uint32(2), pq.Top().Node)
	assert.Equal(t, uint32(2), pq.PopItem().Node)
	assert.Equal(t, uint32(1), pq.PopItem().Node)
	assert.Equal(t, uint32(3), pq.PopItem().Node)
}

func TestPopEmpty(t *testing.T) {
	pq := NewMin()
	assert.Nil(t, pq.Top())
	assert.Nil(t, pq.PopItem())
}
