// Package hierarchy assembles the three content tiers: atoms from origin
// values, compositions from ordered atoms, relations from ordered
// compositions or lower relations. All derived geometry (centroid,
// bounds, path length, curve cell) is computed here, once, at build time.
package hierarchy

import (
	"context"
	"fmt"
	"math"

	"github.com/semsphere/semsphere/cache"
	"github.com/semsphere/semsphere/curve"
	"github.com/semsphere/semsphere/entity"
	"github.com/semsphere/semsphere/geometry"
	"github.com/semsphere/semsphere/hash"
	"github.com/semsphere/semsphere/projection"
	"github.com/semsphere/semsphere/store"
)

// ErrInvalidLevel reports a relation whose children violate the level
// rule: a level-k relation may only reference compositions (k=1) or
// relations of strictly lower level.
type ErrInvalidLevel struct {
	Level int
	Child entity.ChildRef
	Got   int
}

func (e *ErrInvalidLevel) Error() string {
	return fmt.Sprintf("hierarchy: level-%d relation cannot reference %s %s (level %d)",
		e.Level, e.Child.Kind, e.Child.Hash.Short(), e.Got)
}

// Builder writes tiered entities through a store, memoizing hot atom and
// composition lookups.
type Builder struct {
	store store.Store

	atoms        *cache.LRU[*entity.Atom]
	compositions *cache.LRU[*entity.Composition]
}

// NewBuilder creates a Builder over a store. cacheSize bounds the two
// internal lookup caches; zero disables them.
func NewBuilder(s store.Store, cacheSize int) *Builder {
	return &Builder{
		store:        s,
		atoms:        cache.NewLRU[*entity.Atom](cacheSize),
		compositions: cache.NewLRU[*entity.Composition](cacheSize),
	}
}

// BuildAtom creates (or finds) the atom for an origin value. The position
// comes from the deterministic projector, so the same (category, ordinal)
// always lands on the same point.
func (b *Builder) BuildAtom(ctx context.Context, category string, ordinal int64) (*entity.Atom, bool, error) {
	h := hash.Origin(category, ordinal)
	if a, ok := b.atoms.Get(h); ok {
		return a, true, nil
	}

	p := projection.Deterministic(category, ordinal)
	a := &entity.Atom{
		Hash:     h,
		Origin:   ordinal,
		Category: category,
		Position: p,
		Cell:     curve.Encode(p, entity.KindAtom.Tag()),
	}
	existed, err := b.store.PutAtom(ctx, a)
	if err != nil {
		return nil, false, err
	}
	b.atoms.Set(h, a)
	return a, existed, nil
}

// getAtom resolves an atom through the lookup cache.
func (b *Builder) getAtom(ctx context.Context, h hash.Hash) (*entity.Atom, error) {
	if a, ok := b.atoms.Get(h); ok {
		return a, nil
	}
	a, err := b.store.GetAtom(ctx, h)
	if err != nil {
		return nil, err
	}
	b.atoms.Set(h, a)
	return a, nil
}

// getComposition resolves a composition through the lookup cache.
func (b *Builder) getComposition(ctx context.Context, h hash.Hash) (*entity.Composition, error) {
	if c, ok := b.compositions.Get(h); ok {
		return c, nil
	}
	c, err := b.store.GetComposition(ctx, h)
	if err != nil {
		return nil, err
	}
	b.compositions.Set(h, c)
	return c, nil
}

// BuildComposition creates (or finds) the composition over an ordered
// atom sequence. Identical sequences hash identically, so the same token
// ingested from two documents resolves to one row.
//
// point, when non-nil, overrides the indexed coordinate (embedding
// ingestion stores the spectral projection there); otherwise the
// composition is indexed under its centroid.
func (b *Builder) BuildComposition(ctx context.Context, atomHashes []hash.Hash, displayText string, point *geometry.Vector4) (*entity.Composition, bool, error) {
	if len(atomHashes) == 0 {
		return nil, false, fmt.Errorf("hierarchy: composition needs at least one atom")
	}

	h := hash.Sequence(atomHashes...)
	if c, ok := b.compositions.Get(h); ok && point == nil {
		return c, true, nil
	}

	children := make([]entity.ChildPoint, len(atomHashes))
	points := make([]geometry.Vector4, len(atomHashes))
	for i, ah := range atomHashes {
		a, err := b.getAtom(ctx, ah)
		if err != nil {
			return nil, false, err
		}
		children[i] = entity.ChildPoint{Hash: ah, Position: i, Point: a.Position}
		points[i] = a.Position
	}

	centroid := geometry.Centroid(points)
	indexed := centroid
	if point != nil {
		indexed = *point
	}

	c := &entity.Composition{
		Hash:        h,
		Children:    children,
		Length:      len(children),
		Centroid:    centroid,
		Bounds:      geometry.BoundingBox(points),
		PathLength:  geometry.PathLength(points),
		DisplayText: displayText,
		Point:       indexed,
		Cell:        curve.Encode(indexed, entity.KindComposition.Tag()),
	}
	existed, err := b.store.PutComposition(ctx, c)
	if err != nil {
		return nil, false, err
	}
	if existed {
		// The stored row wins; re-read so callers see it.
		stored, err := b.getComposition(ctx, h)
		if err != nil {
			return nil, true, err
		}
		return stored, true, nil
	}
	b.compositions.Set(h, c)
	return c, false, nil
}

// childGeometry resolves the representative point of a relation child.
func (b *Builder) childGeometry(ctx context.Context, ref entity.ChildRef) (geometry.Vector4, error) {
	switch ref.Kind {
	case entity.KindComposition:
		c, err := b.getComposition(ctx, ref.Hash)
		if err != nil {
			return geometry.Vector4{}, err
		}
		return c.Point, nil
	case entity.KindRelation:
		r, err := b.store.GetRelation(ctx, ref.Hash)
		if err != nil {
			return geometry.Vector4{}, err
		}
		return r.Centroid, nil
	default:
		return geometry.Vector4{}, &store.ErrDanglingReference{Kind: ref.Kind, Hash: ref.Hash}
	}
}

// BuildRelation creates (or finds) a level-k relation over ordered
// children. Level 1 accepts only compositions; level k > 1 accepts
// compositions and relations of level strictly below k, which keeps the
// structure acyclic by construction. Positions are assigned from the
// argument order.
func (b *Builder) BuildRelation(ctx context.Context, level int, children []entity.ChildRef, metadata map[string]string) (*entity.Relation, bool, error) {
	if level < 1 {
		return nil, false, fmt.Errorf("hierarchy: relation level %d, want >= 1", level)
	}
	if len(children) == 0 {
		return nil, false, fmt.Errorf("hierarchy: relation needs at least one child")
	}

	hashes := make([]hash.Hash, len(children))
	points := make([]geometry.Vector4, len(children))
	refs := make([]entity.ChildRef, len(children))
	for i, ref := range children {
		switch ref.Kind {
		case entity.KindComposition:
			// Always legal below any level.
		case entity.KindRelation:
			if level == 1 {
				return nil, false, &ErrInvalidLevel{Level: level, Child: ref, Got: -1}
			}
			child, err := b.store.GetRelation(ctx, ref.Hash)
			if err != nil {
				return nil, false, err
			}
			if child.Level >= level {
				return nil, false, &ErrInvalidLevel{Level: level, Child: ref, Got: child.Level}
			}
		default:
			return nil, false, &store.ErrDanglingReference{Kind: ref.Kind, Hash: ref.Hash}
		}

		p, err := b.childGeometry(ctx, ref)
		if err != nil {
			return nil, false, err
		}
		hashes[i] = ref.Hash
		points[i] = p
		refs[i] = entity.ChildRef{Kind: ref.Kind, Hash: ref.Hash, Position: i}
	}

	centroid := geometry.Centroid(points)
	r := &entity.Relation{
		Hash:       hash.Sequence(hashes...),
		Level:      level,
		Children:   refs,
		Centroid:   centroid,
		Bounds:     geometry.BoundingBox(points),
		PathLength: geometry.PathLength(points),
		Metadata:   metadata,
		Cell:       curve.Encode(centroid, entity.KindRelation.Tag()),
	}
	existed, err := b.store.PutRelation(ctx, r)
	if err != nil {
		return nil, false, err
	}
	return r, existed, nil
}

// DeriveTrajectory computes (and caches in the store) the geometric walk
// summary of a relation: total path length, straight-line distance from
// first to last child, their ratio, and the dominant direction of travel.
func (b *Builder) DeriveTrajectory(ctx context.Context, relation hash.Hash) (*entity.Trajectory, error) {
	if t, err := b.store.GetTrajectory(ctx, relation); err == nil {
		return t, nil
	}

	r, err := b.store.GetRelation(ctx, relation)
	if err != nil {
		return nil, err
	}

	points := make([]geometry.Vector4, len(r.Children))
	for i, ref := range r.Children {
		p, err := b.childGeometry(ctx, ref)
		if err != nil {
			return nil, err
		}
		points[i] = p
	}

	t := &entity.Trajectory{
		Relation:        relation,
		TotalPathLength: geometry.PathLength(points),
	}
	if len(points) > 1 {
		t.StraightLine = geometry.Geodesic(points[0], points[len(points)-1])
	}
	switch {
	case t.TotalPathLength < 1e-12:
		t.Tortuosity = 1
	case t.StraightLine < 1e-12:
		t.Tortuosity = math.Inf(1)
	default:
		t.Tortuosity = t.TotalPathLength / t.StraightLine
	}

	t.DominantDirection = geometry.DefaultPoint
	if len(points) > 1 {
		if dir, ok := geometry.Normalize(geometry.Sub(points[len(points)-1], points[0])); ok {
			t.DominantDirection = dir
		}
	}

	if err := b.store.PutTrajectory(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}
