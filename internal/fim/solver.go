package fim

import (
	"errors"
	"math"

	"github.com/san-kum/fimlab/internal/metrics"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Flag reports the numerical quality of a linear response row.
type Flag int

const (
	FlagOK Flag = iota
	// FlagIllConditioned marks a singular or badly conditioned constraint
	// matrix. It takes precedence over FlagUnstable.
	FlagIllConditioned
	// FlagUnstable marks a row that changed noticeably when eps was halved.
	FlagUnstable
)

func (f Flag) String() string {
	switch f {
	case FlagOK:
		return "ok"
	case FlagIllConditioned:
		return "ill-conditioned"
	case FlagUnstable:
		return "unstable"
	default:
		return "unknown"
	}
}

type SolverOptions struct {
	// CondLimit is the 2-norm condition number above which a row is flagged
	// ill-conditioned.
	CondLimit float64 `yaml:"cond_limit" json:"cond_limit"`
	// Threshold is the largest acceptable log10 relative change under step
	// halving.
	Threshold float64 `yaml:"threshold" json:"threshold"`
	// NoiseFloor drops entries smaller than NoiseFloor*max|dJ| from the
	// stability check.
	NoiseFloor     float64 `yaml:"noise_floor" json:"noise_floor"`
	MaxSearchSteps int     `yaml:"max_search_steps" json:"max_search_steps"`
	Factor         float64 `yaml:"factor" json:"factor"`
	MaxEps         float64 `yaml:"max_eps" json:"max_eps"`
	// Adaptive searches for a step size per row instead of solving once.
	Adaptive bool `yaml:"adaptive" json:"adaptive"`
}

func DefaultSolverOptions() SolverOptions {
	return SolverOptions{
		CondLimit:      1e15,
		Threshold:      -3,
		NoiseFloor:     1e-6,
		MaxSearchSteps: 6,
		Factor:         10,
		MaxEps:         0.1,
		Adaptive:       true,
	}
}

// WithDefaults fills every unset numeric option. Adaptive is left as is.
func (o SolverOptions) WithDefaults() SolverOptions {
	d := DefaultSolverOptions()
	if o.CondLimit <= 0 {
		o.CondLimit = d.CondLimit
	}
	if o.Threshold == 0 {
		o.Threshold = d.Threshold
	}
	if o.NoiseFloor <= 0 {
		o.NoiseFloor = d.NoiseFloor
	}
	if o.MaxSearchSteps <= 0 {
		o.MaxSearchSteps = d.MaxSearchSteps
	}
	if o.Factor <= 1 {
		o.Factor = d.Factor
	}
	if o.MaxEps <= 0 {
		o.MaxEps = d.MaxEps
	}
	return o
}

// Result is one solved row of the linear response matrix.
type Result struct {
	Target Target
	DJ     []float64
	Flag   Flag
	Eps    float64
	Cond   float64
	// RelErr holds log10 |dJ(eps) - dJ(eps/2)| / |dJ(eps)| per entry, NaN
	// where the entry was skipped.
	RelErr    []float64
	MaxRelErr float64
	A         *mat.Dense
	C         []float64
}

type Solver struct {
	variant Variant
	opts    SolverOptions
	logger  *zap.Logger
	metrics *metrics.Recorder
}

func NewSolver(v Variant, opts SolverOptions, logger *zap.Logger, rec *metrics.Recorder) *Solver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Solver{variant: v, opts: opts.WithDefaults(), logger: logger, metrics: rec}
}

func (s *Solver) Options() SolverOptions { return s.opts }

// Solve linearizes the moment constraints around the perturbed moments of t
// and returns the parameter change per unit eps, checked against a solve at
// eps/2.
func (s *Solver) Solve(t Target, eps float64) Result {
	res := s.solve(t, eps)
	res.Cond = mat.Cond(res.A, 2)
	res.MaxRelErr = math.Inf(1)

	if !hasNaN(res.DJ) {
		half := s.solve(t, eps/2)
		res.RelErr, res.MaxRelErr = relativeChange(res.DJ, half.DJ, s.opts.NoiseFloor)
		if res.MaxRelErr > s.opts.Threshold {
			res.Flag = FlagUnstable
			s.logger.Debug("unstable linear response",
				zap.String("variant", s.variant.Name()),
				zap.Stringer("target", t),
				zap.Float64("eps", eps),
				zap.Float64("relerr", math.Pow(10, res.MaxRelErr)))
		}
	}
	if res.Cond > s.opts.CondLimit || res.Flag == FlagIllConditioned {
		res.Flag = FlagIllConditioned
		s.logger.Debug("badly conditioned constraint matrix",
			zap.String("variant", s.variant.Name()),
			zap.Stringer("target", t),
			zap.Float64("cond", res.Cond))
	}

	s.metrics.ObserveSolve(s.variant.Name(), int(res.Flag), res.Cond, res.MaxRelErr)
	return res
}

func (s *Solver) solve(t Target, eps float64) Result {
	C, dir := s.variant.Perturb(t, eps)
	a := s.variant.ConstraintMatrix(C)
	obs := s.variant.Moments()

	rows, cols := a.Dims()
	rhs := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		rhs.SetVec(i, C[i]-obs[i])
	}

	res := Result{Target: t, Eps: eps, A: a, C: C}
	x := mat.NewVecDense(cols, nil)
	if rows == cols {
		// LU reports an exactly singular A as an infinite Condition and
		// leaves x zero.
		var cond mat.Condition
		if err := x.SolveVec(a, rhs); errors.Is(err, mat.ErrSingular) ||
			(errors.As(err, &cond) && math.IsInf(float64(cond), 1)) {
			res.DJ = nanVector(len(obs))
			res.Flag = FlagIllConditioned
			return res
		}
	} else {
		var svd mat.SVD
		if !svd.Factorize(a, mat.SVDThin) {
			res.DJ = nanVector(len(obs))
			res.Flag = FlagIllConditioned
			return res
		}
		rcond := 2.2e-16 * float64(max(rows, cols))
		svd.SolveVecTo(x, rhs, svd.Rank(rcond))
	}

	dj := s.variant.Lift(x.RawVector().Data)
	floats.Scale(dir.Sign()/eps, dj)
	res.DJ = dj
	return res
}

// Search looks for a step size at which the row is stable. It compares
// eps0 with its neighbours a factor apart, then walks in the better
// direction while the row stays flagged and keeps improving.
func (s *Solver) Search(t Target, eps0 float64) Result {
	f := s.opts.Factor
	base := s.Solve(t, eps0)
	up := s.Solve(t, eps0*f)
	down := s.Solve(t, eps0/f)
	evals := 3
	defer func() { s.metrics.ObserveSearch(evals) }()

	if base.MaxRelErr < up.MaxRelErr && base.MaxRelErr < down.MaxRelErr {
		return base
	}

	best, step := down, 1/f
	if up.MaxRelErr < down.MaxRelErr {
		best, step = up, f
	}

	eps := best.Eps
	for i := 0; i < s.opts.MaxSearchSteps && best.Flag != FlagOK; i++ {
		eps *= step
		if eps >= s.opts.MaxEps {
			break
		}
		next := s.Solve(t, eps)
		evals++
		if next.Flag == FlagOK {
			return next
		}
		if next.MaxRelErr >= best.MaxRelErr {
			break
		}
		best = next
	}
	return best
}

func relativeChange(dj, half []float64, floor float64) ([]float64, float64) {
	scale := 0.0
	for _, v := range dj {
		if !math.IsNaN(v) {
			scale = math.Max(scale, math.Abs(v))
		}
	}
	rel := nanVector(len(dj))
	worst := math.Inf(-1)
	for i, v := range dj {
		if math.IsNaN(v) || math.IsNaN(half[i]) || math.Abs(v) < floor*scale {
			continue
		}
		rel[i] = math.Log10(math.Abs(v-half[i])) - math.Log10(math.Abs(v))
		if rel[i] > worst {
			worst = rel[i]
		}
	}
	return rel, worst
}

func hasNaN(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}

func nanVector(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
