package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/semsphere/semsphere/curve"
	"github.com/semsphere/semsphere/entity"
	"github.com/semsphere/semsphere/hash"
)

// Memory is an in-memory Store. It is safe for concurrent use; the single
// mutex is the atomicity that insert-if-absent relies on.
type Memory struct {
	mu sync.RWMutex

	atoms        map[hash.Hash]*entity.Atom
	compositions map[hash.Hash]*entity.Composition
	relations    map[hash.Hash]*entity.Relation

	// cells holds one sorted slice per tier for range scans.
	cells map[entity.Kind][]CellEntry

	// parents indexes relation membership: child hash -> parent relation
	// hashes in insertion order.
	parents map[hash.Hash][]hash.Hash

	edges        map[edgeKey]*entity.Edge
	observations map[observationKey]struct{}
	trajectories map[hash.Hash]*entity.Trajectory
}

type edgeKey struct {
	source hash.Hash
	target hash.Hash
	typ    string
}

type observationKey struct {
	edgeKey
	provenance string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		atoms:        make(map[hash.Hash]*entity.Atom),
		compositions: make(map[hash.Hash]*entity.Composition),
		relations:    make(map[hash.Hash]*entity.Relation),
		cells:        make(map[entity.Kind][]CellEntry),
		parents:      make(map[hash.Hash][]hash.Hash),
		edges:        make(map[edgeKey]*entity.Edge),
		observations: make(map[observationKey]struct{}),
		trajectories: make(map[hash.Hash]*entity.Trajectory),
	}
}

var _ Store = (*Memory)(nil)

// insertCell keeps the per-tier cell slice sorted on insert.
func (m *Memory) insertCell(kind entity.Kind, cell curve.Cell, h hash.Hash) {
	s := m.cells[kind]
	i := sort.Search(len(s), func(i int) bool { return s[i].Cell >= cell })
	s = append(s, CellEntry{})
	copy(s[i+1:], s[i:])
	s[i] = CellEntry{Cell: cell, Kind: kind, Hash: h}
	m.cells[kind] = s
}

// PutAtom implements Store.
func (m *Memory) PutAtom(_ context.Context, a *entity.Atom) (bool, error) {
	if err := validateAtom(a); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.atoms[a.Hash]; ok {
		return true, checkAtomConsistent(existing, a)
	}

	cp := *a
	m.atoms[a.Hash] = &cp
	m.insertCell(entity.KindAtom, a.Cell, a.Hash)
	return false, nil
}

// GetAtom implements Store.
func (m *Memory) GetAtom(_ context.Context, h hash.Hash) (*entity.Atom, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.atoms[h]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// PutComposition implements Store.
func (m *Memory) PutComposition(_ context.Context, c *entity.Composition) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.compositions[c.Hash]; ok {
		return true, checkCompositionConsistent(existing, c)
	}

	for _, child := range c.Children {
		if _, ok := m.atoms[child.Hash]; !ok {
			return false, &ErrDanglingReference{Kind: entity.KindAtom, Hash: child.Hash}
		}
	}

	cp := *c
	cp.Children = append([]entity.ChildPoint(nil), c.Children...)
	m.compositions[c.Hash] = &cp
	m.insertCell(entity.KindComposition, c.Cell, c.Hash)
	return false, nil
}

// GetComposition implements Store.
func (m *Memory) GetComposition(_ context.Context, h hash.Hash) (*entity.Composition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.compositions[h]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	cp.Children = append([]entity.ChildPoint(nil), c.Children...)
	return &cp, nil
}

// PutRelation implements Store.
func (m *Memory) PutRelation(_ context.Context, r *entity.Relation) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.relations[r.Hash]; ok {
		return true, checkRelationConsistent(existing, r)
	}

	for _, child := range r.Children {
		switch child.Kind {
		case entity.KindComposition:
			if _, ok := m.compositions[child.Hash]; !ok {
				return false, &ErrDanglingReference{Kind: child.Kind, Hash: child.Hash}
			}
		case entity.KindRelation:
			if _, ok := m.relations[child.Hash]; !ok {
				return false, &ErrDanglingReference{Kind: child.Kind, Hash: child.Hash}
			}
		default:
			return false, &ErrDanglingReference{Kind: child.Kind, Hash: child.Hash}
		}
	}

	cp := *r
	cp.Children = append([]entity.ChildRef(nil), r.Children...)
	m.relations[r.Hash] = &cp
	m.insertCell(entity.KindRelation, r.Cell, r.Hash)
	for _, child := range r.Children {
		m.parents[child.Hash] = append(m.parents[child.Hash], r.Hash)
	}
	return false, nil
}

// GetRelation implements Store.
func (m *Memory) GetRelation(_ context.Context, h hash.Hash) (*entity.Relation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.relations[h]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	cp.Children = append([]entity.ChildRef(nil), r.Children...)
	return &cp, nil
}

// ParentsOf implements Store.
func (m *Memory) ParentsOf(_ context.Context, child hash.Hash) ([]hash.Hash, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]hash.Hash(nil), m.parents[child]...), nil
}

// ScanCells implements Store.
func (m *Memory) ScanCells(_ context.Context, kind entity.Kind, lo, hi curve.Cell, limit int) ([]CellEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.cells[kind]
	start := sort.Search(len(s), func(i int) bool { return s[i].Cell >= lo })

	var out []CellEntry
	for i := start; i < len(s) && s[i].Cell <= hi; i++ {
		out = append(out, s[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) entityExists(h hash.Hash) bool {
	if _, ok := m.atoms[h]; ok {
		return true
	}
	if _, ok := m.compositions[h]; ok {
		return true
	}
	_, ok := m.relations[h]
	return ok
}

// UpsertEdge implements Store.
func (m *Memory) UpsertEdge(_ context.Context, obs entity.Observation, update RatingFunc) (*entity.Edge, bool, error) {
	if err := validateObservation(obs); err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.entityExists(obs.Source) {
		return nil, false, &ErrDanglingReference{Kind: entity.KindUnknown, Hash: obs.Source}
	}
	if !m.entityExists(obs.Target) {
		return nil, false, &ErrDanglingReference{Kind: entity.KindUnknown, Hash: obs.Target}
	}

	ek := edgeKey{source: obs.Source, target: obs.Target, typ: obs.Type}
	ok := observationKey{edgeKey: ek, provenance: obs.Provenance}

	if _, seen := m.observations[ok]; seen {
		// Duplicate provenance: evidence already counted.
		if e, exists := m.edges[ek]; exists {
			cp := *e
			return &cp, false, nil
		}
		return nil, false, ErrNotFound
	}
	m.observations[ok] = struct{}{}

	e, exists := m.edges[ek]
	if !exists {
		e = &entity.Edge{
			Source: obs.Source,
			Target: obs.Target,
			Type:   obs.Type,
			Rating: entity.DefaultRating,
		}
		m.edges[ek] = e
	}
	e.Rating = update(e.Rating, obs.Strength)
	e.EvidenceCount++
	e.LastUpdated = time.Now().UTC()

	cp := *e
	return &cp, true, nil
}

// GetEdge implements Store.
func (m *Memory) GetEdge(_ context.Context, source, target hash.Hash, edgeType string) (*entity.Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.edges[edgeKey{source: source, target: target, typ: edgeType}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

// EdgesFrom implements Store.
func (m *Memory) EdgesFrom(_ context.Context, source hash.Hash, edgeType string) ([]*entity.Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*entity.Edge
	for k, e := range m.edges {
		if k.source != source {
			continue
		}
		if edgeType != "" && k.typ != edgeType {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		// Deterministic order among equal ratings.
		return out[i].Target.String() < out[j].Target.String()
	})
	return out, nil
}

// PutTrajectory implements Store.
func (m *Memory) PutTrajectory(_ context.Context, t *entity.Trajectory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.trajectories[t.Relation] = &cp
	return nil
}

// GetTrajectory implements Store.
func (m *Memory) GetTrajectory(_ context.Context, relation hash.Hash) (*entity.Trajectory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.trajectories[relation]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// Counts implements Store.
func (m *Memory) Counts(_ context.Context) (Counts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Counts{
		Atoms:        int64(len(m.atoms)),
		Compositions: int64(len(m.compositions)),
		Relations:    int64(len(m.relations)),
		Edges:        int64(len(m.edges)),
		Observations: int64(len(m.observations)),
	}, nil
}

// Close implements Store.
func (m *Memory) Close() error {
	return nil
}

// Export returns a deep snapshot of all tiers for serialization. The
// snapshot package persists it through a BlobStore.
func (m *Memory) Export() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := &Snapshot{
		Trajectories: make([]*entity.Trajectory, 0, len(m.trajectories)),
	}
	for _, a := range m.atoms {
		cp := *a
		snap.Atoms = append(snap.Atoms, &cp)
	}
	for _, c := range m.compositions {
		cp := *c
		cp.Children = append([]entity.ChildPoint(nil), c.Children...)
		snap.Compositions = append(snap.Compositions, &cp)
	}
	for _, r := range m.relations {
		cp := *r
		cp.Children = append([]entity.ChildRef(nil), r.Children...)
		snap.Relations = append(snap.Relations, &cp)
	}
	for _, e := range m.edges {
		cp := *e
		snap.Edges = append(snap.Edges, &cp)
	}
	for k := range m.observations {
		snap.Observations = append(snap.Observations, SnapshotObservation{
			Source:     k.source,
			Target:     k.target,
			Type:       k.typ,
			Provenance: k.provenance,
		})
	}
	for _, t := range m.trajectories {
		cp := *t
		snap.Trajectories = append(snap.Trajectories, &cp)
	}

	// Deterministic section ordering makes snapshots byte-comparable.
	sort.Slice(snap.Atoms, func(i, j int) bool { return snap.Atoms[i].Cell < snap.Atoms[j].Cell })
	sort.Slice(snap.Compositions, func(i, j int) bool { return snap.Compositions[i].Cell < snap.Compositions[j].Cell })
	sort.Slice(snap.Relations, func(i, j int) bool { return snap.Relations[i].Cell < snap.Relations[j].Cell })
	return snap
}

// Import replaces the store contents with a snapshot. Tiers are loaded
// leaves first so the write-time reference checks hold.
func (m *Memory) Import(ctx context.Context, snap *Snapshot) error {
	for _, a := range snap.Atoms {
		if _, err := m.PutAtom(ctx, a); err != nil {
			return err
		}
	}
	for _, c := range snap.Compositions {
		if _, err := m.PutComposition(ctx, c); err != nil {
			return err
		}
	}
	// Relations may nest; retry until a full pass makes no progress.
	pending := append([]*entity.Relation(nil), snap.Relations...)
	for len(pending) > 0 {
		var next []*entity.Relation
		var progress bool
		for _, r := range pending {
			if _, err := m.PutRelation(ctx, r); err != nil {
				var dangling *ErrDanglingReference
				if errors.As(err, &dangling) {
					next = append(next, r)
					continue
				}
				return err
			}
			progress = true
		}
		if !progress {
			return &ErrDanglingReference{Kind: entity.KindRelation, Hash: next[0].Hash}
		}
		pending = next
	}

	m.mu.Lock()
	for _, e := range snap.Edges {
		cp := *e
		m.edges[edgeKey{source: e.Source, target: e.Target, typ: e.Type}] = &cp
	}
	for _, o := range snap.Observations {
		m.observations[observationKey{
			edgeKey:    edgeKey{source: o.Source, target: o.Target, typ: o.Type},
			provenance: o.Provenance,
		}] = struct{}{}
	}
	for _, t := range snap.Trajectories {
		cp := *t
		m.trajectories[t.Relation] = &cp
	}
	m.mu.Unlock()
	return nil
}

// Snapshot is a serializable copy of a Memory store.
type Snapshot struct {
	Atoms        []*entity.Atom        `json:"atoms"`
	Compositions []*entity.Composition `json:"compositions"`
	Relations    []*entity.Relation    `json:"relations"`
	Edges        []*entity.Edge        `json:"edges"`
	Observations []SnapshotObservation `json:"observations"`
	Trajectories []*entity.Trajectory  `json:"trajectories"`
}

// SnapshotObservation records one provenance attribution.
type SnapshotObservation struct {
	Source     hash.Hash `json:"source"`
	Target     hash.Hash `json:"target"`
	Type       string    `json:"type"`
	Provenance string    `json:"provenance"`
}
