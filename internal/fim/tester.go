package fim

import (
	"github.com/san-kum/fimlab/internal/maxent"
)

// Tester computes the same rows as Solver by refitting the model to the
// perturbed moments instead of linearizing. It needs an exactly enumerable
// model and is meant for checking the solver.
type Tester struct {
	variant Variant
	opts    maxent.FitOptions
}

func NewTester(v Variant, opts maxent.FitOptions) *Tester {
	return &Tester{variant: v, opts: opts}
}

// Solve returns (refit - params)/eps with the variant's sign convention.
func (t *Tester) Solve(target Target, eps float64) ([]float64, error) {
	m := t.variant.Model()
	C, dir := t.variant.Perturb(target, eps)
	params := m.Params()

	fitted, err := maxent.Fit(m, C, params, t.opts)
	if err != nil {
		return nil, &SolveError{Variant: t.variant.Name(), Target: target, Eps: eps, Wrapped: err}
	}
	out := make([]float64, len(params))
	for i := range out {
		out[i] = dir.Sign() * (fitted[i] - params[i]) / eps
	}
	return out, nil
}
