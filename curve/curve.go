// Package curve maps S³ points to one-way, locality-preserving 64-bit
// cell indices.
//
// The encoding quantizes each coordinate to 15 bits and walks a
// 4-dimensional Hilbert curve (Skilling's transpose algorithm), yielding a
// 60-bit curve position. A 3-bit entity-kind tag occupies the top bits so
// each tier scans its own contiguous key range. Cells are sortable
// integers suitable for an ordered storage column.
//
// There is deliberately no inverse: a cell cannot be decoded back to a
// coordinate. Callers needing the point must read it from the entity
// record.
package curve

const (
	dims    = 4
	bits    = 15 // per-dimension resolution; 4*15 = 60 curve bits
	maxQ    = (1 << bits) - 1
	tagBits = 3
)

// Cell is a sortable spatial key.
type Cell = uint64

// Encode maps a point in [-1,1]⁴ and a kind tag (0..7) to a cell.
// Coordinates outside [-1,1] are clamped. Points geodesically close
// produce nearby cells with high probability; the mapping is one-way.
func Encode(p [4]float64, tag uint8) Cell {
	var x [dims]uint32
	for i := 0; i < dims; i++ {
		x[i] = quantize(p[i])
	}
	axesToTranspose(&x)
	idx := interleave(&x)
	return idx | (uint64(tag&((1<<tagBits)-1)) << (dims * bits))
}

// quantize maps [-1,1] to [0, 2^bits).
func quantize(v float64) uint32 {
	if v < -1 {
		v = -1
	} else if v > 1 {
		v = 1
	}
	q := int64((v + 1) / 2 * maxQ)
	if q < 0 {
		q = 0
	} else if q > maxQ {
		q = maxQ
	}
	return uint32(q)
}

// axesToTranspose converts coordinates into the Hilbert transposed form in
// place. This is Skilling's AxestoTranspose (AIP Conf. Proc. 707, 2004).
func axesToTranspose(x *[dims]uint32) {
	m := uint32(1) << (bits - 1)

	// Inverse undo
	for q := m; q > 1; q >>= 1 {
		p := q - 1
		for i := 0; i < dims; i++ {
			if x[i]&q != 0 {
				x[0] ^= p
			} else {
				t := (x[0] ^ x[i]) & p
				x[0] ^= t
				x[i] ^= t
			}
		}
	}

	// Gray encode
	for i := 1; i < dims; i++ {
		x[i] ^= x[i-1]
	}
	var t uint32
	for q := m; q > 1; q >>= 1 {
		if x[dims-1]&q != 0 {
			t ^= q - 1
		}
	}
	for i := 0; i < dims; i++ {
		x[i] ^= t
	}
}

// interleave packs the transposed form into a single integer, most
// significant bit of dimension 0 first.
func interleave(x *[dims]uint32) uint64 {
	var out uint64
	for b := bits - 1; b >= 0; b-- {
		for i := 0; i < dims; i++ {
			out = (out << 1) | uint64((x[i]>>uint(b))&1)
		}
	}
	return out
}

// TagRange returns the inclusive cell range owned by a kind tag. Range
// scans for one tier stay within these bounds.
func TagRange(tag uint8) (lo, hi Cell) {
	lo = uint64(tag&((1<<tagBits)-1)) << (dims * bits)
	hi = lo | ((1 << (dims * bits)) - 1)
	return lo, hi
}
