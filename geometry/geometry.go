// Package geometry provides the 4-dimensional vector math used by the
// substrate. Entity positions live on S³, the unit 3-sphere embedded in
// 4-space; derived aggregates (centroids, bounds) live in the enclosing
// unit ball.
package geometry

import (
	"fmt"
	"math"
)

// UnitTolerance is the permitted deviation of |p|² from 1 for points that
// must lie on S³.
const UnitTolerance = 1e-4

// Vector4 is a point in 4-space.
type Vector4 [4]float64

// DefaultPoint is the fixed point degenerate projections are pinned to.
// Spectral rows that renormalize to nothing end up here instead of being
// left undefined.
var DefaultPoint = Vector4{1, 0, 0, 0}

// ErrMalformedGeometry reports a point that violates the unit-norm
// invariant. It is raised at write time, never at read time.
type ErrMalformedGeometry struct {
	Point Vector4
	Norm  float64
}

func (e *ErrMalformedGeometry) Error() string {
	return fmt.Sprintf("geometry: point %v has norm %.6f, want 1±%g", e.Point, e.Norm, UnitTolerance)
}

// Dot returns the inner product of a and b.
func Dot(a, b Vector4) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] + a[3]*b[3]
}

// Norm returns |v|.
func Norm(v Vector4) float64 {
	return math.Sqrt(Dot(v, v))
}

// Sub returns a - b.
func Sub(a, b Vector4) Vector4 {
	return Vector4{a[0] - b[0], a[1] - b[1], a[2] - b[2], a[3] - b[3]}
}

// Scale returns v scaled by s.
func Scale(v Vector4, s float64) Vector4 {
	return Vector4{v[0] * s, v[1] * s, v[2] * s, v[3] * s}
}

// Normalize returns v projected onto S³. The second return is false when
// v is too close to zero to normalize; callers should substitute
// DefaultPoint in that case.
func Normalize(v Vector4) (Vector4, bool) {
	n := Norm(v)
	if n < 1e-12 {
		return Vector4{}, false
	}
	return Scale(v, 1/n), true
}

// ValidateUnit checks the S³ invariant |p|² = 1 within UnitTolerance.
func ValidateUnit(p Vector4) error {
	n := Norm(p)
	if math.Abs(n*n-1) > UnitTolerance {
		return &ErrMalformedGeometry{Point: p, Norm: n}
	}
	return nil
}

// Euclidean returns the straight-line distance between a and b.
func Euclidean(a, b Vector4) float64 {
	return Norm(Sub(a, b))
}

// Geodesic returns the great-circle distance between two points on S³,
// i.e. the angle between them. Inputs need not be exactly unit length;
// the cosine is clamped to [-1, 1] before acos.
func Geodesic(a, b Vector4) float64 {
	na, nb := Norm(a), Norm(b)
	if na < 1e-12 || nb < 1e-12 {
		return math.Pi
	}
	cos := Dot(a, b) / (na * nb)
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return math.Acos(cos)
}

// Centroid returns the arithmetic mean of points. It is deliberately NOT
// renormalized: only atoms are constrained to S³, aggregates describe the
// interior of the ball.
func Centroid(points []Vector4) Vector4 {
	if len(points) == 0 {
		return Vector4{}
	}
	var c Vector4
	for _, p := range points {
		c[0] += p[0]
		c[1] += p[1]
		c[2] += p[2]
		c[3] += p[3]
	}
	return Scale(c, 1/float64(len(points)))
}

// Bounds is a componentwise axis-aligned bounding box.
type Bounds struct {
	Min Vector4 `json:"min"`
	Max Vector4 `json:"max"`
}

// BoundingBox returns the componentwise min/max of points.
func BoundingBox(points []Vector4) Bounds {
	if len(points) == 0 {
		return Bounds{}
	}
	b := Bounds{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		for i := 0; i < 4; i++ {
			if p[i] < b.Min[i] {
				b.Min[i] = p[i]
			}
			if p[i] > b.Max[i] {
				b.Max[i] = p[i]
			}
		}
	}
	return b
}

// PathLength sums the geodesic steps between consecutive points. A
// sequence of fewer than two points has zero length.
func PathLength(points []Vector4) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += Geodesic(points[i-1], points[i])
	}
	return total
}
