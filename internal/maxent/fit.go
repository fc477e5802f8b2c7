package maxent

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// FitOptions tunes the Newton iteration of Fit.
type FitOptions struct {
	MaxIter int
	Tol     float64
	MaxStep float64
}

// DefaultFitOptions matches moments to near machine precision.
func DefaultFitOptions() FitOptions {
	return FitOptions{MaxIter: 200, Tol: 1e-13, MaxStep: 1}
}

// Fit finds parameters whose moments under m's ensemble equal target,
// starting from init. It is a damped Newton iteration on the convex dual
// and is only practical for small ensembles. Potts reference-state fields
// stay at zero.
func Fit(m Model, target, init []float64, opts FitOptions) ([]float64, error) {
	ens := m.Ensemble()
	size := m.ParamCount()
	if len(target) != size || len(init) != size {
		return nil, fmt.Errorf("%w: target %d, init %d, model %d", ErrShape, len(target), len(init), size)
	}
	if opts.MaxIter <= 0 {
		opts = DefaultFitOptions()
	}

	free := make([]int, 0, size)
	for i := 0; i < size; i++ {
		if !Fixed(m.Kind(), m.N(), i) {
			free = append(free, i)
		}
	}

	features := mat.NewDense(ens.Len(), size, nil)
	f := make([]float64, size)
	for s := 0; s < ens.Len(); s++ {
		Features(ens.Kind, ens.K, ens.Row(s), f)
		features.SetRow(s, f)
	}

	params := append([]float64(nil), init...)
	resid := make([]float64, size)
	for iter := 0; iter < opts.MaxIter; iter++ {
		p := m.Probabilities(params)
		mean := Moments(ens, p)
		floats.SubTo(resid, target, mean)
		if floats.Norm(resid, math.Inf(1)) < opts.Tol {
			return params, nil
		}

		cov := mat.NewSymDense(len(free), nil)
		for s, ps := range p {
			if ps == 0 {
				continue
			}
			for a, fa := range free {
				da := features.At(s, fa) - mean[fa]
				if da == 0 {
					continue
				}
				for b := a; b < len(free); b++ {
					db := features.At(s, free[b]) - mean[free[b]]
					cov.SetSym(a, b, cov.At(a, b)+ps*da*db)
				}
			}
		}
		rhs := mat.NewVecDense(len(free), nil)
		for a, fa := range free {
			rhs.SetVec(a, resid[fa])
		}

		var svd mat.SVD
		if !svd.Factorize(cov, mat.SVDThin) {
			return nil, fmt.Errorf("%w: covariance factorization failed", ErrNotConverged)
		}
		var step mat.VecDense
		svd.SolveVecTo(&step, rhs, svd.Rank(1e-12))

		scale := 1.0
		if mx := floats.Norm(step.RawVector().Data, math.Inf(1)); mx > opts.MaxStep {
			scale = opts.MaxStep / mx
		}
		for a, fa := range free {
			params[fa] += scale * step.AtVec(a)
		}
	}
	return params, fmt.Errorf("%w after %d iterations", ErrNotConverged, opts.MaxIter)
}
