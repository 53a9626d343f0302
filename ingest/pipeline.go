// Package ingest turns raw content into substrate entities: text into
// rune atoms, token compositions and a sequence relation, embedding
// batches into spectrally placed compositions, and evidence lists into
// rated edges.
//
// Ingestion is idempotent end to end. Every write is content-addressed
// insert-if-absent, co-occurrence observations carry a provenance derived
// from the document and position, so re-ingesting the same document is a
// pure no-op.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/semsphere/semsphere/entity"
	"github.com/semsphere/semsphere/graph"
	"github.com/semsphere/semsphere/hash"
	"github.com/semsphere/semsphere/hierarchy"
	"github.com/semsphere/semsphere/projection"
)

// EdgeTypeFollows is the co-occurrence edge type text ingestion records
// between consecutive tokens.
const EdgeTypeFollows = "follows"

// Options tunes the pipeline.
type Options struct {
	// RateLimit bounds token ingestion per second; rate.Inf disables it.
	RateLimit rate.Limit
	Burst     int

	// Workers sizes the pool used by batch ingestion.
	Workers int

	// CooccurrenceStrength is the evidence strength recorded for each
	// consecutive-token observation.
	CooccurrenceStrength float64

	// Spectral configures embedding projection.
	Spectral func(o *projection.SpectralOptions)
}

// DefaultOptions keep ingestion unthrottled.
var DefaultOptions = Options{
	RateLimit:            rate.Inf,
	Burst:                1,
	Workers:              0, // GOMAXPROCS
	CooccurrenceStrength: 0.75,
}

// Pipeline writes documents through a hierarchy builder and the edge
// overlay.
type Pipeline struct {
	builder *hierarchy.Builder
	graph   *graph.Graph
	limiter *rate.Limiter
	opts    Options
}

// New creates a Pipeline.
func New(b *hierarchy.Builder, g *graph.Graph, optFns ...func(o *Options)) *Pipeline {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	return &Pipeline{
		builder: b,
		graph:   g,
		limiter: rate.NewLimiter(opts.RateLimit, opts.Burst),
		opts:    opts,
	}
}

// Result summarizes one ingested document.
type Result struct {
	BatchID  string
	Document string

	// Relation is the level-1 sequence relation over the tokens.
	Relation hash.Hash

	Tokens          int
	NewAtoms        int
	NewCompositions int
	RelationExisted bool

	// EdgesApplied counts co-occurrence observations that changed a
	// rating (duplicates from earlier runs do not).
	EdgesApplied int
}

// generalCategories is the fixed lookup order for rune classification.
// The Unicode general categories partition the code space, so at most one
// matches.
var generalCategories = []string{
	"Lu", "Ll", "Lt", "Lm", "Lo",
	"Nd", "Nl", "No",
	"Pc", "Pd", "Ps", "Pe", "Pi", "Pf", "Po",
	"Sm", "Sc", "Sk", "So",
	"Mn", "Mc", "Me",
	"Zs", "Zl", "Zp",
	"Cc", "Cf", "Co", "Cs",
}

// runeCategory returns the Unicode general category name of r, or "Cn"
// for unassigned code points.
func runeCategory(r rune) string {
	for _, name := range generalCategories {
		if unicode.Is(unicode.Categories[name], r) {
			return name
		}
	}
	return "Cn"
}

// buildToken creates the composition for one token, counting fresh rows.
func (p *Pipeline) buildToken(ctx context.Context, token string, res *Result) (*entity.Composition, error) {
	var atoms []hash.Hash
	for _, r := range token {
		a, existed, err := p.builder.BuildAtom(ctx, runeCategory(r), int64(r))
		if err != nil {
			return nil, err
		}
		if !existed {
			res.NewAtoms++
		}
		atoms = append(atoms, a.Hash)
	}

	c, existed, err := p.builder.BuildComposition(ctx, atoms, token, nil)
	if err != nil {
		return nil, err
	}
	if !existed {
		res.NewCompositions++
	}
	return c, nil
}

// IngestSequence ingests an ordered token sequence as one document:
// atoms and compositions first, then the sequence relation and the
// co-occurrence edges over the now-committed compositions.
func (p *Pipeline) IngestSequence(ctx context.Context, document string, tokens []string) (*Result, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("ingest: document %q has no tokens", document)
	}

	res := &Result{
		BatchID:  uuid.NewString(),
		Document: document,
		Tokens:   len(tokens),
	}

	// Phase one: leaves. Nothing below may reference anything above.
	comps := make([]*entity.Composition, len(tokens))
	for i, token := range tokens {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		c, err := p.buildToken(ctx, token, res)
		if err != nil {
			return nil, err
		}
		comps[i] = c
	}

	// Phase two: the relation and the edges, over committed rows only.
	refs := make([]entity.ChildRef, len(comps))
	for i, c := range comps {
		refs[i] = entity.ChildRef{Kind: entity.KindComposition, Hash: c.Hash}
	}
	rel, existed, err := p.builder.BuildRelation(ctx, 1, refs, map[string]string{"document": document})
	if err != nil {
		return nil, err
	}
	res.Relation = rel.Hash
	res.RelationExisted = existed

	for i := 0; i+1 < len(comps); i++ {
		if comps[i].Hash == comps[i+1].Hash {
			continue // self edges carry no signal
		}
		_, applied, err := p.graph.Observe(ctx, entity.Observation{
			Source:     comps[i].Hash,
			Target:     comps[i+1].Hash,
			Type:       EdgeTypeFollows,
			Strength:   p.opts.CooccurrenceStrength,
			Provenance: fmt.Sprintf("%s#%d", document, i),
		})
		if err != nil {
			return nil, err
		}
		if applied {
			res.EdgesApplied++
		}
	}
	return res, nil
}

// IngestText splits text on whitespace and ingests the tokens.
func (p *Pipeline) IngestText(ctx context.Context, document, text string) (*Result, error) {
	return p.IngestSequence(ctx, document, strings.Fields(text))
}

// Document is one unit of batch ingestion.
type Document struct {
	ID     string
	Tokens []string
}

// IngestBatch ingests documents concurrently on a worker pool. Results
// are returned in input order; the first error cancels the batch.
func (p *Pipeline) IngestBatch(ctx context.Context, docs []Document) ([]*Result, error) {
	pool := NewWorkerPool(p.opts.Workers)
	defer pool.Close()

	g, ctx := errgroup.WithContext(ctx)
	results := make([]*Result, len(docs))
	var mu sync.Mutex

	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			done := make(chan error, 1)
			if err := pool.Submit(ctx, func() {
				res, err := p.IngestSequence(ctx, doc.ID, doc.Tokens)
				if err == nil {
					mu.Lock()
					results[i] = res
					mu.Unlock()
				}
				done <- err
			}); err != nil {
				return err
			}
			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Embedding is one labelled vector for spectral ingestion.
type Embedding struct {
	Label  string
	Vector []float32
}

// IngestEmbeddings projects a batch of vectors onto the sphere and stores
// each as a composition over its label's rune atoms, indexed under the
// spectral point rather than the centroid. Labels already ingested from
// text resolve to the same composition row.
func (p *Pipeline) IngestEmbeddings(ctx context.Context, document string, items []Embedding) ([]*entity.Composition, error) {
	if len(items) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(items))
	for i, it := range items {
		if it.Label == "" {
			return nil, fmt.Errorf("ingest: embedding %d of %q has no label", i, document)
		}
		vectors[i] = it.Vector
	}

	var optFns []func(o *projection.SpectralOptions)
	if p.opts.Spectral != nil {
		optFns = append(optFns, p.opts.Spectral)
	}
	points, err := projection.Spectral(ctx, vectors, optFns...)
	if err != nil {
		return nil, err
	}

	out := make([]*entity.Composition, len(items))
	for i, it := range items {
		var atoms []hash.Hash
		for _, r := range it.Label {
			a, _, err := p.builder.BuildAtom(ctx, runeCategory(r), int64(r))
			if err != nil {
				return nil, err
			}
			atoms = append(atoms, a.Hash)
		}
		point := points[i]
		c, _, err := p.builder.BuildComposition(ctx, atoms, it.Label, &point)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// IngestEdges records a list of observations, returning how many changed
// a rating.
func (p *Pipeline) IngestEdges(ctx context.Context, observations []entity.Observation) (int, error) {
	applied := 0
	for _, obs := range observations {
		_, ok, err := p.graph.Observe(ctx, obs)
		if err != nil {
			return applied, err
		}
		if ok {
			applied++
		}
	}
	return applied, nil
}
