// Package entity defines the hash-keyed records of the substrate's three
// tiers and the semantic edge overlay. Records are immutable once written;
// the content hash is the only cross-tier reference.
package entity

import (
	"fmt"
	"time"

	"github.com/semsphere/semsphere/curve"
	"github.com/semsphere/semsphere/geometry"
	"github.com/semsphere/semsphere/hash"
)

// Kind discriminates the tier of a record.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindAtom
	KindComposition
	KindRelation
)

// String returns the tier name.
func (k Kind) String() string {
	switch k {
	case KindAtom:
		return "atom"
	case KindComposition:
		return "composition"
	case KindRelation:
		return "relation"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Tag returns the spatial-curve tag for the kind. Each tier owns its own
// contiguous cell range.
func (k Kind) Tag() uint8 {
	return uint8(k)
}

// Atom is an indivisible content unit: one Unicode code point, one scalar
// weight. One row per distinct origin value; never deleted.
type Atom struct {
	Hash     hash.Hash        `json:"hash"`
	Origin   int64            `json:"origin"`   // code point or scalar ordinal
	Category string           `json:"category"` // e.g. Unicode general category
	Position geometry.Vector4 `json:"position"` // unit vector on S³
	Cell     curve.Cell       `json:"cell"`
}

// ChildPoint is an ordered child of a composition: the atom's hash, its
// explicit position within the parent, and a copy of its point so derived
// geometry never needs a second lookup.
type ChildPoint struct {
	Hash     hash.Hash        `json:"hash"`
	Position int              `json:"position"`
	Point    geometry.Vector4 `json:"point"`
}

// Composition is an ordered, content-hashed sequence of atoms.
// Hash = hash.Sequence(child hashes); identical child sequences always
// produce the identical hash, which is the dedup guarantee.
type Composition struct {
	Hash        hash.Hash        `json:"hash"`
	Children    []ChildPoint     `json:"children"`
	Length      int              `json:"length"`
	Centroid    geometry.Vector4 `json:"centroid"` // mean of child points, not renormalized
	Bounds      geometry.Bounds  `json:"bounds"`
	PathLength  float64          `json:"path_length"`
	DisplayText string           `json:"display_text"`

	// Point is the coordinate the composition is indexed under. It
	// defaults to the centroid; embedding-ingested compositions carry
	// their spectral projection here instead.
	Point geometry.Vector4 `json:"point"`
	Cell  curve.Cell       `json:"cell"`
}

// ChildRef is an ordered child of a relation. Kind tags whether the hash
// resolves in the composition or the relation tier; the storage layer
// checks existence per kind (discriminated foreign key, application
// enforced).
type ChildRef struct {
	Kind     Kind      `json:"kind"`
	Hash     hash.Hash `json:"hash"`
	Position int       `json:"position"`
}

// Relation is an ordered, content-hashed sequence of compositions or
// lower relations. A level-k relation may only reference compositions
// (k=1) or relations of level < k, which keeps the structure a DAG by
// construction.
type Relation struct {
	Hash       hash.Hash         `json:"hash"`
	Level      int               `json:"level"`
	Children   []ChildRef        `json:"children"`
	Centroid   geometry.Vector4  `json:"centroid"`
	Bounds     geometry.Bounds   `json:"bounds"`
	PathLength float64           `json:"path_length"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Cell       curve.Cell        `json:"cell"`
}

// DefaultRating is the rating a fresh edge starts from.
const DefaultRating = 1500.0

// Edge is a directed, typed, confidence-rated relationship between two
// entity hashes. (Source, Target, Type) is unique; the rating is a running
// aggregate over all observations, not a per-source value.
type Edge struct {
	Source        hash.Hash `json:"source"`
	Target        hash.Hash `json:"target"`
	Type          string    `json:"type"`
	Rating        float64   `json:"rating"`
	EvidenceCount int64     `json:"evidence_count"`
	LastUpdated   time.Time `json:"last_updated"`
}

// Observation is one piece of evidence for an edge, attributed to a
// provenance (a model, a document, an ingestion run). The same provenance
// observing the same edge twice is a no-op.
type Observation struct {
	Source     hash.Hash `json:"source"`
	Target     hash.Hash `json:"target"`
	Type       string    `json:"type"`
	Strength   float64   `json:"strength"` // in [0,1]
	Provenance string    `json:"provenance"`
}

// Trajectory summarizes the geometric walk of a relation's children. It is
// a pure query accelerator, re-derivable from the relation at any time.
type Trajectory struct {
	Relation          hash.Hash        `json:"relation"`
	TotalPathLength   float64          `json:"total_path_length"`
	StraightLine      float64          `json:"straight_line"`
	Tortuosity        float64          `json:"tortuosity"` // path/straight, >= 1
	DominantDirection geometry.Vector4 `json:"dominant_direction"`
}
