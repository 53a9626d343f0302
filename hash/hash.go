// Package hash provides content addressing for the substrate.
//
// Every entity in every tier is keyed by a 256-bit BLAKE3 digest of its
// content. Atoms hash their origin value, compositions and relations hash
// the ordered sequence of their child hashes, so identical content always
// resolves to the identical key regardless of where it occurs.
package hash

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"
)

// Size is the digest width in bytes.
const Size = 32

// Hash is a 256-bit content digest.
type Hash [Size]byte

// Zero is the all-zero hash. It is never a valid content address.
var Zero Hash

// Sum returns the BLAKE3 digest of data.
func Sum(data []byte) Hash {
	return Hash(blake3.Sum256(data))
}

// SumString returns the BLAKE3 digest of s.
func SumString(s string) Hash {
	return Sum([]byte(s))
}

// Origin hashes an atom origin value together with its category so that
// the same ordinal in different categories yields distinct atoms.
func Origin(category string, ordinal int64) Hash {
	buf := make([]byte, 0, len(category)+9)
	buf = append(buf, category...)
	buf = append(buf, 0)
	buf = binary.BigEndian.AppendUint64(buf, uint64(ordinal))
	return Sum(buf)
}

// Sequence hashes an ordered sequence of child hashes. Order is
// significant: Sequence(a, b) != Sequence(b, a).
func Sequence(children ...Hash) Hash {
	h := blake3.New()
	for _, c := range children {
		_, _ = h.Write(c[:])
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == Zero
}

// String returns the lowercase hex encoding of h.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first 8 hex characters, for logging.
func (h Hash) Short() string {
	return hex.EncodeToString(h[:4])
}

// MarshalText encodes h as lowercase hex, so hashes serialize readably
// in JSON payloads and snapshot sections.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText decodes a hex-encoded hash.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Parse decodes a 64-character hex string into a Hash.
func Parse(s string) (Hash, error) {
	var h Hash
	if len(s) != Size*2 {
		return h, fmt.Errorf("hash: invalid length %d, want %d", len(s), Size*2)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("hash: invalid hex: %w", err)
	}
	copy(h[:], b)
	return h, nil
}

// Batch hashes independent inputs in parallel. Inputs share no mutable
// state, so the only bound is the worker count (<= GOMAXPROCS via the
// errgroup limit).
func Batch(ctx context.Context, inputs [][]byte, workers int) ([]Hash, error) {
	out := make([]Hash, len(inputs))
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = Sum(in)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
