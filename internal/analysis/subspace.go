package analysis

import (
	"fmt"
	"math"

	"github.com/san-kum/fimlab/internal/maxent"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Block is the eigen-decomposition of one diagonal block, values in
// decreasing order.
type Block struct {
	Values  []float64
	Vectors *mat.Dense
}

// SubspaceEigen decomposes each size x size diagonal block of h. The blocks
// are symmetrized before factorization and every eigenvector is oriented to
// a non-negative sum.
func SubspaceEigen(h mat.Matrix, size int) ([]Block, error) {
	r, c := h.Dims()
	if r != c || size <= 0 || r%size != 0 {
		return nil, fmt.Errorf("%w: %dx%d into blocks of %d", ErrShape, r, c, size)
	}

	blocks := make([]Block, r/size)
	for b := range blocks {
		off := b * size
		sym := mat.NewSymDense(size, nil)
		for i := 0; i < size; i++ {
			for j := i; j < size; j++ {
				sym.SetSym(i, j, (h.At(off+i, off+j)+h.At(off+j, off+i))/2)
			}
		}

		var es mat.EigenSym
		if !es.Factorize(sym, true) {
			return nil, fmt.Errorf("%w: block %d", ErrFactorize, b)
		}
		asc := es.Values(nil)
		var vecs mat.Dense
		es.VectorsTo(&vecs)

		// EigenSym returns ascending values
		blk := Block{Values: make([]float64, size), Vectors: mat.NewDense(size, size, nil)}
		for j := 0; j < size; j++ {
			src := size - 1 - j
			blk.Values[j] = asc[src]
			col := mat.Col(nil, src, &vecs)
			orient(col, floats.Sum(col))
			blk.Vectors.SetCol(j, col)
		}
		blocks[b] = blk
	}
	return blocks, nil
}

// MajorityLogRates returns, for every spin, the rate of change of log2 p(k)
// when the parameters move along the principal eigenvector of that spin's
// block of h. Rows of dJ are grouped by spin in blocks of N-1. Rates are
// ordered from the largest majority down.
func MajorityLogRates(m maxent.Model, dJ, h mat.Matrix, eps float64) ([][]float64, error) {
	n := m.N()
	size := n - 1
	rows, cols := dJ.Dims()
	if rows != n*size || cols != m.ParamCount() {
		return nil, fmt.Errorf("%w: dJ is %dx%d, want %dx%d", ErrShape, rows, cols, n*size, m.ParamCount())
	}
	blocks, err := SubspaceEigen(h, size)
	if err != nil {
		return nil, err
	}

	params := m.Params()
	lw := m.LogWeights(params)
	classes, nclass := m.Ensemble().Coarse()

	out := make([][]float64, n)
	for b, blk := range blocks {
		dir := make([]float64, cols)
		for r := 0; r < size; r++ {
			floats.AddScaled(dir, blk.Vectors.At(r, 0)/float64(size), mat.Row(nil, b*size+r, dJ))
		}
		dE := m.Energies(dir)
		floats.Scale(eps, dE)

		plus := make([]float64, len(lw))
		minus := make([]float64, len(lw))
		floats.SubTo(plus, lw, dE)
		floats.AddTo(minus, lw, dE)
		pkPlus := classMass(maxent.Normalize(plus), classes, nclass)
		pkMinus := classMass(maxent.Normalize(minus), classes, nclass)

		rates := make([]float64, nclass)
		for c := range rates {
			// classes are numbered by increasing majority
			src := nclass - 1 - c
			rates[c] = (math.Log2(pkPlus[src]) - math.Log2(pkMinus[src])) / (2 * eps)
		}
		out[b] = rates
	}
	return out, nil
}

func classMass(p []float64, classes []int, nclass int) []float64 {
	out := make([]float64, nclass)
	for s, v := range p {
		out[classes[s]] += v
	}
	return out
}
