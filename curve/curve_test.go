package curve

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDeterministic(t *testing.T) {
	p := [4]float64{0.5, -0.5, 0.5, 0.5}
	assert.Equal(t, Encode(p, 1), Encode(p, 1))
	assert.NotEqual(t, Encode(p, 1), Encode(p, 2))
}

func TestEncodeClampsOutOfRange(t *testing.T) {
	inside := Encode([4]float64{1, 1, 1, 1}, 0)
	outside := Encode([4]float64{5, 5, 5, 5}, 0)
	assert.Equal(t, inside, outside)
}

func TestTagRange(t *testing.T) {
	for tag := uint8(0); tag < 8; tag++ {
		lo, hi := TagRange(tag)
		require.Less(t, lo, hi)

		p := [4]float64{0.1, 0.2, -0.3, 0.4}
		c := Encode(p, tag)
		assert.GreaterOrEqual(t, c, lo)
		assert.LessOrEqual(t, c, hi)
	}

	// Ranges of distinct tags never overlap.
	_, hi0 := TagRange(0)
	lo1, _ := TagRange(1)
	assert.Less(t, hi0, lo1)
}

// randomUnit4 samples a uniform point on S³ (Marsaglia via normal deviates).
func randomUnit4(rng *rand.Rand) [4]float64 {
	for {
		v := [4]float64{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()}
		n := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2] + v[3]*v[3])
		if n < 1e-9 {
			continue
		}
		for i := range v {
			v[i] /= n
		}
		return v
	}
}

func geodesic(a, b [4]float64) float64 {
	dot := a[0]*b[0] + a[1]*b[1] + a[2]*b[2] + a[3]*b[3]
	if dot > 1 {
		dot = 1
	} else if dot < -1 {
		dot = -1
	}
	return math.Acos(dot)
}

// TestLocalityStatistical checks that geodesically close pairs map to
// cells that are, on average, much closer than cells of random pairs.
// This is a statistical property of the curve, not an exact one.
func TestLocalityStatistical(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const samples = 2000

	cellDelta := func(a, b uint64) float64 {
		if a > b {
			return float64(a - b)
		}
		return float64(b - a)
	}

	var closeSum, randomSum float64
	for i := 0; i < samples; i++ {
		p := randomUnit4(rng)

		// Perturb p by a tiny tangent step: geodesic distance < 0.01.
		q := p
		for j := range q {
			q[j] += rng.NormFloat64() * 0.002
		}
		n := math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
		for j := range q {
			q[j] /= n
		}
		require.Less(t, geodesic(p, q), 0.01)

		r := randomUnit4(rng)

		closeSum += cellDelta(Encode(p, 0), Encode(q, 0))
		randomSum += cellDelta(Encode(p, 0), Encode(r, 0))
	}

	// Close pairs should land at least an order of magnitude nearer on
	// the curve than random pairs, on average.
	assert.Less(t, closeSum*10, randomSum,
		"close pairs avg=%g random pairs avg=%g", closeSum/samples, randomSum/samples)
}
