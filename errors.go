package semsphere

import (
	"errors"
	"fmt"

	"github.com/semsphere/semsphere/geometry"
	"github.com/semsphere/semsphere/projection"
	"github.com/semsphere/semsphere/query"
	"github.com/semsphere/semsphere/store"
)

var (
	// ErrNotFound is returned when an entity, edge or trajectory does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidK is returned when a result count is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrNoPath is returned when a multi-hop query cannot reach its
	// target.
	ErrNoPath = errors.New("no path to target")

	// ErrProjectionFailed is returned when a spectral batch does not
	// converge.
	ErrProjectionFailed = errors.New("projection failed")
)

// ErrMalformedGeometry reports a point violating the unit-norm invariant.
//
// The original underlying error (if any) can be accessed via
// errors.Unwrap.
type ErrMalformedGeometry struct {
	Point geometry.Vector4
	Norm  float64
	cause error
}

func (e *ErrMalformedGeometry) Error() string {
	return fmt.Sprintf("malformed geometry: point %v has norm %.6f", e.Point, e.Norm)
}

func (e *ErrMalformedGeometry) Unwrap() error { return e.cause }

// ErrDanglingReference reports a write referencing content that is not
// committed yet.
type ErrDanglingReference struct {
	Detail string
	cause  error
}

func (e *ErrDanglingReference) Error() string {
	return fmt.Sprintf("dangling reference: %s", e.Detail)
}

func (e *ErrDanglingReference) Unwrap() error { return e.cause }

// translateError maps internal package errors onto the stable root
// surface.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, query.ErrNoPath) {
		return fmt.Errorf("%w: %w", ErrNoPath, err)
	}
	if errors.Is(err, projection.ErrProjectionFailed) {
		return fmt.Errorf("%w: %w", ErrProjectionFailed, err)
	}

	var mg *geometry.ErrMalformedGeometry
	if errors.As(err, &mg) {
		return &ErrMalformedGeometry{Point: mg.Point, Norm: mg.Norm, cause: err}
	}
	var dangling *store.ErrDanglingReference
	if errors.As(err, &dangling) {
		return &ErrDanglingReference{Detail: dangling.Error(), cause: err}
	}

	return err
}
