// Package hessian estimates the curvature of the Kullback-Leibler divergence
// along the rows of a linear response matrix dJ by finite differences.
//
// Entries are computed independently on a worker pool. Each estimate at a
// step eps is checked against a second estimate at eps/2, and Curvature
// shrinks the step until the two agree to a relative tolerance or stop
// improving.
package hessian

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/san-kum/fimlab/internal/maxent"
	"github.com/san-kum/fimlab/internal/metrics"
	"github.com/san-kum/fimlab/internal/workpool"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

type Estimator struct {
	model   maxent.Model
	logger  *zap.Logger
	metrics *metrics.Recorder
}

// New returns an estimator for m. logger and rec may be nil.
func New(m maxent.Model, logger *zap.Logger, rec *metrics.Recorder) *Estimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Estimator{model: m, logger: logger, metrics: rec}
}

type progress struct {
	done  atomic.Int64
	total int
	fn    func(done, total int)
}

func (p *progress) reset(total int) {
	p.done.Store(0)
	p.total = total
}

func (p *progress) step() {
	if p.fn == nil {
		return
	}
	p.fn(int(p.done.Add(1)), p.total)
}

type run struct {
	scheme scheme
	pool   *workpool.Pool
	prog   *progress
	opts   Options
	size   int
}

func (e *Estimator) prepare(dJ *mat.Dense, opts Options) (*run, error) {
	opts = opts.withDefaults()
	rows, cols := dJ.Dims()
	if cols != e.model.ParamCount() {
		return nil, fmt.Errorf("%w: %d columns for %d parameters", ErrShape, cols, e.model.ParamCount())
	}
	if rows == 0 {
		return nil, fmt.Errorf("%w: empty dJ", ErrShape)
	}
	vecs := make([][]float64, rows)
	for i := range vecs {
		vecs[i] = mat.Row(nil, i, dJ)
	}
	sch, err := newScheme(e.model, vecs, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %s with precision %d", err, opts.Mode, opts.Precision)
	}
	return &run{
		scheme: sch,
		prog:   &progress{fn: opts.OnProgress},
		opts:   opts,
		size:   rows,
	}, nil
}

// Evaluate returns the Hessian at a single step without a stability check.
func (e *Estimator) Evaluate(dJ *mat.Dense, eps float64, opts Options) (*mat.Dense, error) {
	r, err := e.prepare(dJ, opts)
	if err != nil {
		return nil, err
	}
	r.pool = workpool.New(r.opts.Workers)
	defer r.pool.Close()

	r.prog.reset(r.entries())
	return r.fill(eps)
}

// EvaluateOnce returns the Hessian at eps, its convergence flag against the
// estimate at eps/2 and the Frobenius norm of the difference.
func (e *Estimator) EvaluateOnce(dJ *mat.Dense, eps float64, opts Options) (*mat.Dense, Flag, float64, error) {
	r, err := e.prepare(dJ, opts)
	if err != nil {
		return nil, NotConverged, 0, err
	}
	r.pool = workpool.New(r.opts.Workers)
	defer r.pool.Close()
	return e.checked(r, eps)
}

// Curvature runs EvaluateOnce from opts.Eps, dividing the step by
// opts.DecreaseFactor while the estimate is flagged and its residual keeps
// shrinking. It returns the best estimate seen.
func (e *Estimator) Curvature(ctx context.Context, dJ *mat.Dense, opts Options) (*mat.Dense, Flag, float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, NotConverged, 0, err
	}
	r, err := e.prepare(dJ, opts)
	if err != nil {
		return nil, NotConverged, 0, err
	}
	r.pool = workpool.New(r.opts.Workers)
	defer r.pool.Close()

	mode := r.opts.Mode.String()
	eps := r.opts.Eps
	best, flag, residual, err := e.checked(r, eps)
	if err != nil {
		return nil, NotConverged, 0, err
	}
	bestEps := eps

	for iter := 1; flag == NotConverged && iter < r.opts.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, NotConverged, residual, err
		}
		eps /= r.opts.DecreaseFactor
		h, f, res, err := e.checked(r, eps)
		if err != nil {
			e.logger.Warn("curvature step failed, keeping previous estimate",
				zap.String("mode", mode),
				zap.Float64("eps", eps),
				zap.Error(err))
			break
		}
		if f == Converged {
			best, flag, residual, bestEps = h, f, res, eps
			break
		}
		if res >= residual {
			break
		}
		best, residual, bestEps = h, res, eps
	}

	e.metrics.ObserveCurvature(mode, int(flag), bestEps, residual)
	if flag == NotConverged {
		e.logger.Warn("finite difference estimate has not converged",
			zap.String("mode", mode),
			zap.Float64("rtol", r.opts.RTol),
			zap.Float64("eps", bestEps),
			zap.Float64("residual", residual))
	} else {
		e.logger.Info("finite difference estimate converged",
			zap.String("mode", mode),
			zap.Float64("rtol", r.opts.RTol),
			zap.Float64("eps", bestEps))
	}
	return best, flag, residual, nil
}

func (e *Estimator) checked(r *run, eps float64) (*mat.Dense, Flag, float64, error) {
	r.prog.reset(2 * r.entries())
	h, err := r.fill(eps)
	if err != nil {
		return nil, NotConverged, 0, err
	}
	half, err := r.fill(eps / 2)
	if err != nil {
		return nil, NotConverged, 0, err
	}

	var diff mat.Dense
	diff.Sub(h, half)
	diff.Scale(r.scheme.factor(), &diff)

	flag := Converged
	if !withinTolerance(&diff, h, r.opts.RTol) {
		flag = NotConverged
	}
	residual := mat.Norm(&diff, 2)

	e.metrics.ObserveIteration(r.opts.Mode.String())
	e.logger.Debug("hessian evaluated",
		zap.String("mode", r.opts.Mode.String()),
		zap.Float64("eps", eps),
		zap.Stringer("flag", flag),
		zap.Float64("residual", residual))
	return h, flag, residual, nil
}

// withinTolerance reports whether every |diff/h| is at most rtol. Entries
// that did not move at all pass, including exact zeros of h; a change on a
// zero entry fails.
func withinTolerance(diff, h mat.Matrix, rtol float64) bool {
	rows, cols := h.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			d := diff.At(i, j)
			if d == 0 {
				continue
			}
			if ratio := math.Abs(d / h.At(i, j)); math.IsNaN(ratio) || ratio > rtol {
				return false
			}
		}
	}
	return true
}

func (r *run) entries() int { return r.size * (r.size + 1) / 2 }

// fill computes the upper triangle in parallel, removes the linear terms
// and mirrors it.
func (r *run) fill(eps float64) (*mat.Dense, error) {
	m := r.size
	type pair struct{ i, j int }
	jobs := make([]pair, 0, r.entries())
	for i := 0; i < m; i++ {
		for j := i; j < m; j++ {
			jobs = append(jobs, pair{i, j})
		}
	}

	h := mat.NewDense(m, m, nil)
	r.pool.Map(len(jobs), func(x int) {
		p := jobs[x]
		if p.i == p.j {
			h.Set(p.i, p.i, r.scheme.diag(p.i, eps))
		} else {
			h.Set(p.i, p.j, r.scheme.off(p.i, p.j, eps))
		}
		r.prog.step()
	})

	if r.scheme.subtract() {
		for i := 0; i < m; i++ {
			for j := i + 1; j < m; j++ {
				h.Set(i, j, h.At(i, j)-h.At(i, i)/2-h.At(j, j)/2)
			}
		}
	}
	var t mat.Dense
	t.CloneFrom(h.T())
	h.Add(h, &t)
	for i := 0; i < m; i++ {
		h.Set(i, i, h.At(i, i)/2)
	}

	// bad[i] is the first non-finite column of row i, or -1.
	bad := make([]int, m)
	r.pool.For(m, 8, func(start, end int) {
		for i := start; i < end; i++ {
			bad[i] = -1
			for j := 0; j < m; j++ {
				if v := h.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
					bad[i] = j
					break
				}
			}
		}
	})
	for i, j := range bad {
		if j >= 0 {
			return nil, &EntryError{I: i, J: j, Eps: eps, Value: h.At(i, j), Wrapped: ErrNonFinite}
		}
	}
	return h, nil
}
