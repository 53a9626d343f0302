// Package graph maintains the semantic edge overlay: directed, typed
// relationships between entity hashes whose confidence is a competitive
// rating updated by observed evidence.
//
// Ratings follow the chess convention. A fresh edge starts at 1500; each
// observation compares its strength against the logistic expectation of
// the current rating and moves the rating by a bounded step. Repeated
// strong evidence converges the rating upward, repeated weak evidence
// pulls it down, and a duplicate observation from the same provenance
// never counts twice.
package graph

import (
	"context"
	"math"

	"github.com/semsphere/semsphere/entity"
	"github.com/semsphere/semsphere/hash"
	"github.com/semsphere/semsphere/store"
)

// RatingParams tunes the rating update rule.
type RatingParams struct {
	// Step is the maximum rating movement per observation (the K-factor).
	Step float64

	// Floor and Ceiling clamp the rating range.
	Floor   float64
	Ceiling float64

	// Pivot is the rating at which the expectation is one half, and
	// Spread the rating difference that moves the expectation by roughly
	// one logistic decade.
	Pivot  float64
	Spread float64
}

// DefaultRatingParams match the conventional chess parameters.
var DefaultRatingParams = RatingParams{
	Step:    32,
	Floor:   0,
	Ceiling: 3000,
	Pivot:   entity.DefaultRating,
	Spread:  400,
}

// Update computes the new rating after observing evidence of the given
// strength in [0,1]. The expectation is the logistic score the current
// rating predicts; the rating moves proportionally to the surprise.
func (p RatingParams) Update(current, strength float64) float64 {
	expected := p.expectation(current)
	next := current + p.Step*(strength-expected)
	if next < p.Floor {
		next = p.Floor
	}
	if next > p.Ceiling {
		next = p.Ceiling
	}
	return next
}

// expectation returns the logistic prediction in (0,1) for a rating.
func (p RatingParams) expectation(rating float64) float64 {
	return 1 / (1 + math.Pow(10, (p.Pivot-rating)/p.Spread))
}

// Graph wraps a store with the rating policy.
type Graph struct {
	store  store.Store
	params RatingParams
}

// New builds a Graph over a store.
func New(s store.Store, optFns ...func(p *RatingParams)) *Graph {
	params := DefaultRatingParams
	for _, fn := range optFns {
		fn(&params)
	}
	return &Graph{store: s, params: params}
}

// Params returns the active rating parameters.
func (g *Graph) Params() RatingParams {
	return g.params
}

// Observe records one piece of evidence for an edge. Both endpoints must
// already exist; a duplicate (edge, provenance) pair is a no-op and
// returns the current edge with applied=false.
func (g *Graph) Observe(ctx context.Context, obs entity.Observation) (*entity.Edge, bool, error) {
	return g.store.UpsertEdge(ctx, obs, g.params.Update)
}

// Edge fetches a single edge.
func (g *Graph) Edge(ctx context.Context, source, target hash.Hash, edgeType string) (*entity.Edge, error) {
	return g.store.GetEdge(ctx, source, target, edgeType)
}

// Neighbors lists outgoing edges of source, strongest rating first.
// edgeType "" matches every type.
func (g *Graph) Neighbors(ctx context.Context, source hash.Hash, edgeType string) ([]*entity.Edge, error) {
	return g.store.EdgesFrom(ctx, source, edgeType)
}
