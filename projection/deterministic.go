// Package projection maps content onto the unit 3-sphere.
//
// Two projectors exist. The deterministic projector places an atom purely
// from its origin ordinal and category, so the same input lands on the
// same point on every machine and every run with no trained model in the
// loop. The spectral projector embeds a batch of high-dimensional vectors
// through the eigenvectors of a neighbourhood graph Laplacian, preserving
// local similarity structure.
package projection

import (
	"encoding/binary"
	"math"

	"github.com/semsphere/semsphere/geometry"
	"github.com/semsphere/semsphere/hash"
)

// Irrational multipliers for the additive recurrence. Mutually
// non-commensurable, so consecutive ordinals spread over the sphere
// instead of clustering along an orbit.
var (
	alpha1 = math.Sqrt2 - 1        // 0.4142...
	alpha2 = math.Sqrt(3) - 1      // 0.7320...
	alpha3 = math.Sqrt(5) - 2      // 0.2360...
	twoPi  = 2 * math.Pi
	halfPi = math.Pi / 2
)

// frac returns the fractional part of x in [0, 1).
func frac(x float64) float64 {
	_, f := math.Modf(x)
	if f < 0 {
		f += 1
	}
	return f
}

// categoryPhase derives three stable phase offsets in [0,1) from the
// category name, so categories occupy distinct bands of the sphere.
func categoryPhase(category string) (float64, float64, float64) {
	h := hash.SumString(category)
	u1 := binary.BigEndian.Uint64(h[0:8])
	u2 := binary.BigEndian.Uint64(h[8:16])
	u3 := binary.BigEndian.Uint64(h[16:24])
	const scale = 1.0 / (1 << 53)
	return float64(u1>>11) * scale, float64(u2>>11) * scale, float64(u3>>11) * scale
}

// Deterministic places an origin ordinal on S³ using an additive
// recurrence in Hopf coordinates. The mapping is a pure function: no
// state, no randomness, no model.
func Deterministic(category string, ordinal int64) geometry.Vector4 {
	p1, p2, p3 := categoryPhase(category)
	n := float64(ordinal)

	// Hopf coordinates (eta, xi1, xi2) parametrize S³ with unit norm by
	// construction.
	eta := halfPi * frac(p1+n*alpha1)
	xi1 := twoPi * frac(p2+n*alpha2)
	xi2 := twoPi * frac(p3+n*alpha3)

	sinEta, cosEta := math.Sincos(eta)
	sinXi1, cosXi1 := math.Sincos(xi1)
	sinXi2, cosXi2 := math.Sincos(xi2)

	return geometry.Vector4{
		cosXi1 * sinEta,
		sinXi1 * sinEta,
		cosXi2 * cosEta,
		sinXi2 * cosEta,
	}
}
