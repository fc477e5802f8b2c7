package analysis

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrFactorize indicates the eigen-decomposition did not converge.
	ErrFactorize = errors.New("analysis: eigen-decomposition failed")

	// ErrShape indicates a matrix that does not split as requested.
	ErrShape = errors.New("analysis: matrix shape mismatch")
)

type Options struct {
	// Reference orients eigenvectors before sorting. Defaults to e0.
	Reference []float64
	// ImagThreshold bounds the norm of discarded imaginary parts before a
	// warning is raised.
	ImagThreshold float64
	Logger        *zap.Logger
}

// Report collects the warnings raised while cleaning a decomposition.
type Report struct {
	ImagNorm float64
	Negative int
	Warnings []string
}

type Spectrum struct {
	// Values are sorted in decreasing order.
	Values []float64
	// Vectors holds one eigenvector per column.
	Vectors *mat.Dense
	Report  Report
}

// Eigen decomposes h, keeps real parts, sorts by decreasing eigenvalue and
// orients each eigenvector so the mean of its first n entries is
// non-negative.
func Eigen(h mat.Matrix, n int, opts Options) (*Spectrum, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ImagThreshold <= 0 {
		opts.ImagThreshold = 1e-10
	}
	r, c := h.Dims()
	if r != c {
		return nil, fmt.Errorf("%w: %dx%d is not square", ErrShape, r, c)
	}

	var eig mat.Eigen
	if !eig.Factorize(h, mat.EigenRight) {
		return nil, ErrFactorize
	}
	vals := eig.Values(nil)
	var cvecs mat.CDense
	eig.VectorsTo(&cvecs)

	var report Report
	imagSq := 0.0
	for _, v := range vals {
		imagSq += imag(v) * imag(v)
	}
	vecImag := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < min(c, 10); j++ {
			vecImag = math.Max(vecImag, math.Abs(imag(cvecs.At(i, j))))
		}
	}
	report.ImagNorm = math.Sqrt(imagSq)
	if report.ImagNorm > opts.ImagThreshold || vecImag > opts.ImagThreshold {
		report.Warnings = append(report.Warnings, "imaginary components are significant")
		logger.Warn("imaginary components are significant",
			zap.Float64("value_norm", report.ImagNorm),
			zap.Float64("vector_max", vecImag))
	}

	ref := opts.Reference
	if ref == nil {
		ref = make([]float64, r)
		ref[0] = 1
	}
	if len(ref) != r {
		return nil, fmt.Errorf("%w: reference of length %d for %d rows", ErrShape, len(ref), r)
	}

	vectors := mat.NewDense(r, c, nil)
	for j := 0; j < c; j++ {
		col := make([]float64, r)
		for i := range col {
			col[i] = real(cvecs.At(i, j))
		}
		orient(col, floats.Dot(col, ref))
		vectors.SetCol(j, col)
	}

	order := make([]int, c)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return real(vals[order[a]]) > real(vals[order[b]])
	})

	out := &Spectrum{Values: make([]float64, c), Vectors: mat.NewDense(r, c, nil)}
	head := min(n, r)
	for j, src := range order {
		out.Values[j] = real(vals[src])
		col := mat.Col(nil, src, vectors)
		mean := 0.0
		for _, v := range col[:head] {
			mean += v
		}
		orient(col, mean)
		out.Vectors.SetCol(j, col)
		if out.Values[j] < 0 {
			report.Negative++
		}
	}
	if report.Negative > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%d negative eigenvalues", report.Negative))
		logger.Warn("there are negative eigenvalues", zap.Int("count", report.Negative))
	}
	out.Report = report
	return out, nil
}

// ProjectToParameters returns dJᵀV: column j is eigenvector j expressed as a
// parameter change.
func ProjectToParameters(dJ, vectors mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Mul(dJ.T(), vectors)
	return &out
}

// orient flips col when sign is negative. A zero sign leaves it unchanged.
func orient(col []float64, sign float64) {
	if sign >= 0 {
		return
	}
	for i := range col {
		col[i] = -col[i]
	}
}
