package query

import (
	"context"
	"fmt"
	"math"

	"github.com/semsphere/semsphere/entity"
	"github.com/semsphere/semsphere/geometry"
	"github.com/semsphere/semsphere/hash"
)

// Mode selects the strategy a Request runs.
type Mode string

const (
	ModeProximity    Mode = "proximity"
	ModeRelationship Mode = "relationship"
	ModeMultiHop     Mode = "multihop"
	ModeCombined     Mode = "combined"
)

// Request is the generic query envelope. Anchor and Point are
// alternatives for the geometric modes: when Point is nil the anchor's
// own indexed coordinate is used.
type Request struct {
	Mode Mode

	// Kind is the tier geometric modes search (proximity, combined).
	Kind entity.Kind

	// Anchor is the reference entity (relationship source, path source,
	// or stand-in for Point).
	Anchor hash.Hash

	// Point is the query coordinate; nil means "resolve from Anchor".
	Point *geometry.Vector4

	// Target is the multi-hop destination.
	Target hash.Hash

	EdgeType string
	K        int
	MaxHops  int
}

// Result is one row of a generic query response. DisplayText is filled
// for compositions and left empty for other tiers.
type Result struct {
	Hash        hash.Hash
	DisplayText string
	Score       float64
}

// Response carries ordered results plus whether a budget truncated the
// search.
type Response struct {
	Results []Result
	Partial bool
}

// Query dispatches a Request to the matching typed entry point and
// normalizes the answer into a Response.
func (e *Engine) Query(ctx context.Context, req Request) (*Response, error) {
	switch req.Mode {
	case ModeProximity:
		return e.queryProximity(ctx, req)
	case ModeRelationship:
		return e.queryRelationship(ctx, req)
	case ModeMultiHop:
		return e.queryMultiHop(ctx, req)
	case ModeCombined:
		return e.queryCombined(ctx, req)
	default:
		return nil, fmt.Errorf("query: unknown mode %q", req.Mode)
	}
}

// queryPoint resolves the coordinate a geometric request searches from.
func (e *Engine) queryPoint(ctx context.Context, req Request) (geometry.Vector4, error) {
	if req.Point != nil {
		return *req.Point, nil
	}
	if req.Anchor.IsZero() {
		return geometry.Vector4{}, fmt.Errorf("query: request needs a point or an anchor")
	}
	return e.anyPointOf(ctx, req.Anchor)
}

func (e *Engine) queryProximity(ctx context.Context, req Request) (*Response, error) {
	point, err := e.queryPoint(ctx, req)
	if err != nil {
		return nil, err
	}
	matches, err := e.Proximity(ctx, req.Kind, point, req.K)
	if err != nil {
		return nil, err
	}

	resp := &Response{}
	for _, m := range matches {
		resp.Results = append(resp.Results, Result{
			Hash:        m.Hash,
			DisplayText: e.displayTextOf(ctx, m.Hash),
			Score:       geoScore(m.Distance),
		})
	}
	return resp, nil
}

func (e *Engine) queryRelationship(ctx context.Context, req Request) (*Response, error) {
	edges, err := e.Relationship(ctx, req.Anchor, req.EdgeType, req.K)
	if err != nil {
		return nil, err
	}

	ceiling := e.graph.Params().Ceiling
	resp := &Response{}
	for _, edge := range edges {
		resp.Results = append(resp.Results, Result{
			Hash:        edge.Target,
			DisplayText: e.displayTextOf(ctx, edge.Target),
			Score:       edge.Rating / ceiling,
		})
	}
	return resp, nil
}

func (e *Engine) queryMultiHop(ctx context.Context, req Request) (*Response, error) {
	path, err := e.MultiHop(ctx, req.Anchor, req.Target, req.EdgeType, req.MaxHops)
	if err != nil {
		if path != nil {
			return &Response{Partial: path.Partial}, err
		}
		return nil, err
	}

	ceiling := e.graph.Params().Ceiling
	resp := &Response{Partial: path.Partial}
	for _, edge := range path.Edges {
		resp.Results = append(resp.Results, Result{
			Hash:        edge.Target,
			DisplayText: e.displayTextOf(ctx, edge.Target),
			Score:       edge.Rating / ceiling,
		})
	}
	return resp, nil
}

func (e *Engine) queryCombined(ctx context.Context, req Request) (*Response, error) {
	point, err := e.queryPoint(ctx, req)
	if err != nil {
		return nil, err
	}
	ranked, err := e.Combined(ctx, req.Kind, point, req.Anchor, req.EdgeType, req.K)
	if err != nil {
		return nil, err
	}

	resp := &Response{}
	for _, r := range ranked {
		resp.Results = append(resp.Results, Result{
			Hash:        r.Hash,
			DisplayText: e.displayTextOf(ctx, r.Hash),
			Score:       r.Score,
		})
	}
	return resp, nil
}

// displayTextOf is best-effort: only compositions carry display text.
func (e *Engine) displayTextOf(ctx context.Context, h hash.Hash) string {
	c, err := e.store.GetComposition(ctx, h)
	if err != nil {
		return ""
	}
	return c.DisplayText
}

func geoScore(distance float64) float64 {
	s := 1 - distance/math.Pi
	if s < 0 {
		return 0
	}
	return s
}
