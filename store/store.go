// Package store defines the substrate's storage boundary and provides two
// implementations: an in-memory store for embedded and test use, and a
// SQLite-backed store demonstrating the transactional relational
// collaborator.
//
// The boundary guarantees the core relies on: a uniqueness constraint on
// content hash per tier, an orderable cell column per tier, and atomic
// "insert if absent, else return existing" semantics. Dangling references
// and malformed geometry are rejected at write time; reads trust what was
// written.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/semsphere/semsphere/curve"
	"github.com/semsphere/semsphere/entity"
	"github.com/semsphere/semsphere/geometry"
	"github.com/semsphere/semsphere/hash"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrHashCollision reports two distinct contents resolving to the same
// digest. Theoretically possible, treated as fatal data corruption, never
// silently ignored.
type ErrHashCollision struct {
	Hash   hash.Hash
	Detail string
}

func (e *ErrHashCollision) Error() string {
	return fmt.Sprintf("store: suspected hash collision on %s: %s", e.Hash.Short(), e.Detail)
}

// ErrDanglingReference reports a record referencing a hash absent from its
// expected tier.
type ErrDanglingReference struct {
	Kind entity.Kind
	Hash hash.Hash
}

func (e *ErrDanglingReference) Error() string {
	return fmt.Sprintf("store: dangling reference to %s %s", e.Kind, e.Hash.Short())
}

// CellEntry is one row of a spatial range scan.
type CellEntry struct {
	Cell curve.Cell
	Kind entity.Kind
	Hash hash.Hash
}

// Counts reports per-tier row counts. Used by the idempotency property
// tests and by operators.
type Counts struct {
	Atoms        int64
	Compositions int64
	Relations    int64
	Edges        int64
	Observations int64
}

// RatingFunc computes the updated rating for an edge given its current
// rating and an observed strength in [0,1]. It runs inside the store's
// atomic section so concurrent observations serialize.
type RatingFunc func(current float64, strength float64) float64

// Store is the substrate's storage boundary.
//
// All Put operations are insert-if-absent: the bool result reports whether
// the row already existed. Implementations must make this atomic so
// concurrent ingestion of identical content yields exactly one row.
type Store interface {
	// PutAtom inserts an atom if absent. The position must satisfy the
	// unit-norm invariant.
	PutAtom(ctx context.Context, a *entity.Atom) (existed bool, err error)
	GetAtom(ctx context.Context, h hash.Hash) (*entity.Atom, error)

	// PutComposition inserts a composition if absent. Every child must
	// already exist in the atom tier.
	PutComposition(ctx context.Context, c *entity.Composition) (existed bool, err error)
	GetComposition(ctx context.Context, h hash.Hash) (*entity.Composition, error)

	// PutRelation inserts a relation if absent. Children are checked per
	// kind against their tier (discriminated foreign key).
	PutRelation(ctx context.Context, r *entity.Relation) (existed bool, err error)
	GetRelation(ctx context.Context, h hash.Hash) (*entity.Relation, error)

	// ParentsOf lists relation hashes whose child rows reference h.
	ParentsOf(ctx context.Context, child hash.Hash) ([]hash.Hash, error)

	// ScanCells returns entries of one tier whose cell lies in [lo, hi],
	// ordered by cell. limit <= 0 means no limit.
	ScanCells(ctx context.Context, kind entity.Kind, lo, hi curve.Cell, limit int) ([]CellEntry, error)

	// UpsertEdge records an observation. Duplicate provenance for the
	// same edge is a no-op (applied=false, current edge returned).
	// Source and target must exist in some tier.
	UpsertEdge(ctx context.Context, obs entity.Observation, update RatingFunc) (edge *entity.Edge, applied bool, err error)
	GetEdge(ctx context.Context, source, target hash.Hash, edgeType string) (*entity.Edge, error)

	// EdgesFrom lists outgoing edges of source ordered by rating
	// descending. edgeType "" matches all types.
	EdgesFrom(ctx context.Context, source hash.Hash, edgeType string) ([]*entity.Edge, error)

	// Trajectory cache. PutTrajectory overwrites; the cache is derived
	// data, not a tier.
	PutTrajectory(ctx context.Context, t *entity.Trajectory) error
	GetTrajectory(ctx context.Context, relation hash.Hash) (*entity.Trajectory, error)

	Counts(ctx context.Context) (Counts, error)
	Close() error
}

// validateAtom enforces the write-time invariants shared by all
// implementations.
func validateAtom(a *entity.Atom) error {
	if a.Hash.IsZero() {
		return fmt.Errorf("store: atom with zero hash")
	}
	return geometry.ValidateUnit(a.Position)
}

// checkAtomConsistent compares a new atom against the stored row with the
// same hash. Any divergence is a suspected collision.
func checkAtomConsistent(existing, incoming *entity.Atom) error {
	if existing.Origin != incoming.Origin || existing.Category != incoming.Category {
		return &ErrHashCollision{
			Hash:   incoming.Hash,
			Detail: fmt.Sprintf("atom origin %d/%s vs %d/%s", existing.Origin, existing.Category, incoming.Origin, incoming.Category),
		}
	}
	return nil
}

// checkCompositionConsistent compares child sequences of two compositions
// sharing a hash.
func checkCompositionConsistent(existing, incoming *entity.Composition) error {
	if len(existing.Children) != len(incoming.Children) {
		return &ErrHashCollision{
			Hash:   incoming.Hash,
			Detail: fmt.Sprintf("composition length %d vs %d", len(existing.Children), len(incoming.Children)),
		}
	}
	for i := range existing.Children {
		if existing.Children[i].Hash != incoming.Children[i].Hash {
			return &ErrHashCollision{
				Hash:   incoming.Hash,
				Detail: fmt.Sprintf("composition child %d differs", i),
			}
		}
	}
	return nil
}

// checkRelationConsistent compares child sequences of two relations
// sharing a hash.
func checkRelationConsistent(existing, incoming *entity.Relation) error {
	if existing.Level != incoming.Level || len(existing.Children) != len(incoming.Children) {
		return &ErrHashCollision{
			Hash:   incoming.Hash,
			Detail: fmt.Sprintf("relation level/arity %d/%d vs %d/%d", existing.Level, len(existing.Children), incoming.Level, len(incoming.Children)),
		}
	}
	for i := range existing.Children {
		if existing.Children[i].Hash != incoming.Children[i].Hash || existing.Children[i].Kind != incoming.Children[i].Kind {
			return &ErrHashCollision{
				Hash:   incoming.Hash,
				Detail: fmt.Sprintf("relation child %d differs", i),
			}
		}
	}
	return nil
}

// validateObservation enforces the strength domain.
func validateObservation(obs entity.Observation) error {
	if obs.Strength < 0 || obs.Strength > 1 {
		return fmt.Errorf("store: observation strength %g outside [0,1]", obs.Strength)
	}
	if obs.Type == "" {
		return fmt.Errorf("store: observation with empty edge type")
	}
	return nil
}
