package projection

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semsphere/semsphere/geometry"
)

func TestDeterministicIsPure(t *testing.T) {
	for _, ordinal := range []int64{0, 1, 72, 0x10FFFF, -3} {
		a := Deterministic("Lu", ordinal)
		b := Deterministic("Lu", ordinal)
		assert.Equal(t, a, b)
	}
}

func TestDeterministicUnitNorm(t *testing.T) {
	for ordinal := int64(0); ordinal < 5000; ordinal += 37 {
		p := Deterministic("Ll", ordinal)
		require.NoError(t, geometry.ValidateUnit(p), "ordinal %d", ordinal)
	}
}

func TestDeterministicSeparatesCategories(t *testing.T) {
	a := Deterministic("Lu", 72)
	b := Deterministic("Ll", 72)
	assert.NotEqual(t, a, b)
	assert.Greater(t, geometry.Geodesic(a, b), 0.0)
}

func TestDeterministicSpreadsOrdinals(t *testing.T) {
	// Consecutive ordinals should not collapse onto each other.
	seen := make(map[geometry.Vector4]bool)
	for ordinal := int64(0); ordinal < 1000; ordinal++ {
		p := Deterministic("Ll", ordinal)
		assert.False(t, seen[p], "ordinal %d collided", ordinal)
		seen[p] = true
	}
}

func TestSpectralUnitNorm(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	vectors := make([][]float32, 200)
	for i := range vectors {
		v := make([]float32, 16)
		for j := range v {
			v[j] = rng.Float32()
		}
		vectors[i] = v
	}

	points, err := Spectral(context.Background(), vectors)
	require.NoError(t, err)
	require.Len(t, points, len(vectors))
	for i, p := range points {
		require.NoError(t, geometry.ValidateUnit(p), "row %d", i)
	}
}

func TestSpectralPreservesClusters(t *testing.T) {
	// Two well-separated gaussian blobs in 8 dims. Points within a blob
	// should land closer to each other than to the other blob on average.
	rng := rand.New(rand.NewSource(11))
	const perCluster = 60
	vectors := make([][]float32, 0, 2*perCluster)
	for c := 0; c < 2; c++ {
		center := float32(c) * 50
		for i := 0; i < perCluster; i++ {
			v := make([]float32, 8)
			for j := range v {
				v[j] = center + float32(rng.NormFloat64())
			}
			vectors = append(vectors, v)
		}
	}

	points, err := Spectral(context.Background(), vectors)
	require.NoError(t, err)

	var within, across float64
	var nWithin, nAcross int
	for i := 0; i < len(points); i++ {
		for j := i + 1; j < len(points); j++ {
			d := geometry.Geodesic(points[i], points[j])
			if (i < perCluster) == (j < perCluster) {
				within += d
				nWithin++
			} else {
				across += d
				nAcross++
			}
		}
	}
	assert.Less(t, within/float64(nWithin), across/float64(nAcross))
}

func TestSpectralDegenerateBatch(t *testing.T) {
	// Identical vectors have no recoverable structure; every row lands on
	// the default point rather than failing.
	vectors := make([][]float32, 20)
	for i := range vectors {
		vectors[i] = []float32{1, 2, 3, 4}
	}
	points, err := Spectral(context.Background(), vectors)
	require.NoError(t, err)
	for _, p := range points {
		assert.Equal(t, geometry.DefaultPoint, p)
	}
}

func TestSpectralTinyBatch(t *testing.T) {
	points, err := Spectral(context.Background(), [][]float32{{1, 0}, {0, 1}})
	require.NoError(t, err)
	require.Len(t, points, 2)
	for _, p := range points {
		assert.Equal(t, geometry.DefaultPoint, p)
	}
}

func TestSpectralPartitionsLargeBatches(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	vectors := make([][]float32, 50)
	for i := range vectors {
		v := make([]float32, 4)
		for j := range v {
			v[j] = rng.Float32()
		}
		vectors[i] = v
	}

	points, err := Spectral(context.Background(), vectors, func(o *SpectralOptions) {
		o.MaxBatchSize = 16
	})
	require.NoError(t, err)
	assert.Len(t, points, len(vectors))
	for i, p := range points {
		require.NoError(t, geometry.ValidateUnit(p), "row %d", i)
	}
}

func TestSpectralHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	vectors := make([][]float32, 40)
	for i := range vectors {
		vectors[i] = []float32{float32(i), 1}
	}
	_, err := Spectral(ctx, vectors, func(o *SpectralOptions) {
		o.MaxBatchSize = 8
	})
	assert.ErrorIs(t, err, context.Canceled)
}
