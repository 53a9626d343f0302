package projection

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/semsphere/semsphere/geometry"
	"github.com/semsphere/semsphere/knn"
)

// ErrProjectionFailed reports an eigendecomposition that did not
// converge. The batch is rejected; nothing is half-placed.
var ErrProjectionFailed = errors.New("projection: eigendecomposition failed to converge")

// SpectralOptions configures the Laplacian eigenmap projector.
type SpectralOptions struct {
	// Neighbours is the k of the kNN similarity graph.
	Neighbours int

	// MaxBatchSize bounds the dense eigenproblem. Larger inputs are
	// partitioned and projected per partition.
	MaxBatchSize int
}

// DefaultSpectralOptions bounds the dense solve to a size where the
// O(n^3) eigendecomposition stays in interactive territory.
var DefaultSpectralOptions = SpectralOptions{
	Neighbours:   10,
	MaxBatchSize: 2048,
}

// Spectral maps a batch of embedding vectors onto S³ via Laplacian
// eigenmaps: build a kNN graph, weight it with a Gaussian kernel, take
// the eigenvectors of the normalized Laplacian belonging to the four
// smallest non-trivial eigenvalues, and renormalize each row to the
// sphere. Rows whose spectral coordinates collapse to zero are placed at
// the default point rather than dropped.
//
// The result preserves neighbourhood structure within the batch, not
// across batches. Inputs above MaxBatchSize are split into contiguous
// partitions.
func Spectral(ctx context.Context, vectors [][]float32, optFns ...func(o *SpectralOptions)) ([]geometry.Vector4, error) {
	opts := DefaultSpectralOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Neighbours < 1 {
		opts.Neighbours = 1
	}
	if opts.MaxBatchSize < 8 {
		opts.MaxBatchSize = 8
	}

	out := make([]geometry.Vector4, 0, len(vectors))
	for start := 0; start < len(vectors); start += opts.MaxBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + opts.MaxBatchSize
		if end > len(vectors) {
			end = len(vectors)
		}
		part, err := spectralBatch(vectors[start:end], opts)
		if err != nil {
			return nil, err
		}
		out = append(out, part...)
	}
	return out, nil
}

func spectralBatch(vectors [][]float32, opts SpectralOptions) ([]geometry.Vector4, error) {
	n := len(vectors)
	if n == 0 {
		return nil, nil
	}
	dim := len(vectors[0])

	// Tiny batches carry no usable spectrum; everything lands on the
	// default point.
	if n < 6 {
		out := make([]geometry.Vector4, n)
		for i := range out {
			out[i] = geometry.DefaultPoint
		}
		return out, nil
	}

	k := opts.Neighbours
	if k >= n {
		k = n - 1
	}

	ix := knn.New(dim)
	for _, v := range vectors {
		if _, err := ix.Insert(v); err != nil {
			return nil, err
		}
	}

	// kNN distances, symmetrized. sigma is the median neighbour distance
	// so the kernel bandwidth adapts to the batch scale.
	type neighbour struct {
		j int
		d float64
	}
	adj := make([][]neighbour, n)
	var allDists []float64
	for i, v := range vectors {
		results, err := ix.Search(v, k+1)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			j := int(r.ID)
			if j == i {
				continue
			}
			d := math.Sqrt(float64(r.Distance))
			adj[i] = append(adj[i], neighbour{j: j, d: d})
			allDists = append(allDists, d)
		}
	}

	sigma := median(allDists)
	if sigma <= 0 {
		// All points coincide: no geometry to recover.
		out := make([]geometry.Vector4, n)
		for i := range out {
			out[i] = geometry.DefaultPoint
		}
		return out, nil
	}

	// W symmetric Gaussian affinity, D its degree.
	w := mat.NewSymDense(n, nil)
	for i, ns := range adj {
		for _, nb := range ns {
			a := math.Exp(-(nb.d * nb.d) / (2 * sigma * sigma))
			if a > w.At(i, nb.j) {
				w.SetSym(i, nb.j, a)
			}
		}
	}

	deg := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for j := 0; j < n; j++ {
			sum += w.At(i, j)
		}
		deg[i] = sum
	}

	// Normalized Laplacian L = I - D^{-1/2} W D^{-1/2}.
	lap := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		lap.SetSym(i, i, 1)
		for j := i + 1; j < n; j++ {
			wij := w.At(i, j)
			if wij == 0 || deg[i] <= 0 || deg[j] <= 0 {
				continue
			}
			lap.SetSym(i, j, -wij/math.Sqrt(deg[i]*deg[j]))
		}
	}

	var es mat.EigenSym
	if !es.Factorize(lap, true) {
		return nil, fmt.Errorf("%w: batch of %d", ErrProjectionFailed, n)
	}

	var vecs mat.Dense
	es.VectorsTo(&vecs)

	// Eigenvalues come ascending. Column 0 is the trivial constant mode;
	// columns 1..4 carry the embedding. EigenSym columns are already
	// orthonormal.
	out := make([]geometry.Vector4, n)
	for i := 0; i < n; i++ {
		var p geometry.Vector4
		for c := 0; c < 4; c++ {
			p[c] = vecs.At(i, c+1)
		}
		unit, ok := geometry.Normalize(p)
		if !ok {
			unit = geometry.DefaultPoint
		}
		out[i] = unit
	}
	return out, nil
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	return s[len(s)/2]
}
