package hash

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSumDeterminism(t *testing.T) {
	a := Sum([]byte("whale"))
	b := Sum([]byte("whale"))
	c := Sum([]byte("Whale"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.False(t, a.IsZero())
}

func TestSequenceOrderSensitivity(t *testing.T) {
	x := Sum([]byte("x"))
	y := Sum([]byte("y"))

	assert.Equal(t, Sequence(x, y), Sequence(x, y))
	assert.NotEqual(t, Sequence(x, y), Sequence(y, x))
	assert.NotEqual(t, Sequence(x), Sequence(x, x))
}

func TestOrigin(t *testing.T) {
	a := Origin("Lu", 65)
	b := Origin("Lu", 65)
	c := Origin("Ll", 65)
	d := Origin("Lu", 66)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
}

func TestParseRoundTrip(t *testing.T) {
	h := Sum([]byte("Ishmael"))

	parsed, err := Parse(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, parsed)

	_, err = Parse("abc")
	assert.Error(t, err)

	_, err = Parse(string(make([]byte, 64)))
	assert.Error(t, err)
}

func TestBatch(t *testing.T) {
	inputs := [][]byte{
		[]byte("Call"),
		[]byte("me"),
		[]byte("Ishmael"),
	}

	got, err := Batch(context.Background(), inputs, 2)
	require.NoError(t, err)
	require.Len(t, got, 3)

	for i, in := range inputs {
		assert.Equal(t, Sum(in), got[i])
	}
}

func TestBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inputs := make([][]byte, 1000)
	for i := range inputs {
		inputs[i] = []byte{byte(i)}
	}

	_, err := Batch(ctx, inputs, 1)
	assert.Error(t, err)
}
