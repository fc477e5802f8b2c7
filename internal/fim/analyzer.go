package fim

import (
	"context"
	"fmt"
	"sync"

	"github.com/san-kum/fimlab/internal/analysis"
	"github.com/san-kum/fimlab/internal/hessian"
	"github.com/san-kum/fimlab/internal/maxent"
	"github.com/san-kum/fimlab/internal/metrics"
	"github.com/san-kum/fimlab/internal/perturb"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

type Options struct {
	// Eps is the perturbation strength of every row.
	Eps     float64
	Workers int
	// Direction overrides the variant's default sign where it has one.
	Direction perturb.Direction
	Solver    SolverOptions
	Logger    *zap.Logger
	Metrics   *metrics.Recorder
	// Lazy defers the linear responses to the first call that needs them.
	Lazy bool
}

func DefaultOptions() Options {
	return Options{Eps: 1e-7, Solver: DefaultSolverOptions()}
}

// Analyzer ties a model, a perturbation variant and its linear responses
// together. It is safe for concurrent use.
type Analyzer struct {
	model   maxent.Model
	variant Variant
	solver  *Solver
	opts    Options
	logger  *zap.Logger

	mu    sync.Mutex
	dJ    *mat.Dense
	flags []Flag
}

// New builds the named variant over m. Unless opts.Lazy is set the linear
// responses are computed before New returns.
func New(ctx context.Context, m maxent.Model, variant string, opts Options) (*Analyzer, error) {
	a, err := newAnalyzer(m, variant, opts)
	if err != nil {
		return nil, err
	}
	if !opts.Lazy {
		if _, _, err := a.LinearResponses(ctx); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func newAnalyzer(m maxent.Model, variant string, opts Options) (*Analyzer, error) {
	if opts.Eps <= 0 {
		opts.Eps = DefaultOptions().Eps
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	v, err := NewVariant(variant, m, VariantOptions{Direction: opts.Direction})
	if err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("variant", v.Name()), zap.Stringer("kind", m.Kind()), zap.Int("n", m.N()))
	return &Analyzer{
		model:   m,
		variant: v,
		solver:  NewSolver(v, opts.Solver, logger, opts.Metrics),
		opts:    opts,
		logger:  logger,
	}, nil
}

func (a *Analyzer) Model() maxent.Model { return a.model }
func (a *Analyzer) Variant() Variant    { return a.variant }
func (a *Analyzer) Solver() *Solver     { return a.solver }

// LinearResponses returns dJ and the per-row flags, computing them on first
// use.
func (a *Analyzer) LinearResponses(ctx context.Context) (*mat.Dense, []Flag, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dJ == nil {
		dJ, flags, err := a.solver.LinearResponses(ctx, a.opts.Eps, a.opts.Workers)
		if err != nil {
			return nil, nil, err
		}
		a.dJ, a.flags = dJ, flags
	}
	return mat.DenseCopyOf(a.dJ), append([]Flag(nil), a.flags...), nil
}

// Curvature estimates the Hessian of the divergence along the rows of dJ.
func (a *Analyzer) Curvature(ctx context.Context, opts hessian.Options) (*mat.Dense, hessian.Flag, float64, error) {
	dJ, _, err := a.LinearResponses(ctx)
	if err != nil {
		return nil, hessian.NotConverged, 0, err
	}
	if opts.Workers == 0 {
		opts.Workers = a.opts.Workers
	}
	est := hessian.New(a.model, a.logger, a.opts.Metrics)
	return est.Curvature(ctx, dJ, opts)
}

// Eigen decomposes a Hessian computed by Curvature.
func (a *Analyzer) Eigen(h mat.Matrix) (*analysis.Spectrum, error) {
	return analysis.Eigen(h, a.model.N(), analysis.Options{Logger: a.logger})
}

// Snapshot captures everything needed to rebuild the analyzer without
// recomputing dJ.
func (a *Analyzer) Snapshot() (Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dJ == nil {
		return Snapshot{}, ErrNoResponses
	}
	rows, _ := a.dJ.Dims()
	s := Snapshot{
		Variant:   a.variant.Name(),
		Direction: a.variant.Direction(),
		Model:     maxent.SpecOf(a.model),
		Eps:       a.opts.Eps,
		DJ:        make([]Row, rows),
		Flags:     append([]Flag(nil), a.flags...),
	}
	for r := range s.DJ {
		s.DJ[r] = mat.Row(nil, r, a.dJ)
	}
	return s, nil
}

// Restore rebuilds an analyzer from a snapshot. opts supplies everything the
// snapshot does not record; its Eps and Direction are ignored.
func Restore(s Snapshot, opts Options) (*Analyzer, error) {
	m, err := maxent.Build(s.Model)
	if err != nil {
		return nil, fmt.Errorf("restore model: %w", err)
	}
	opts.Eps = s.Eps
	opts.Direction = s.Direction
	a, err := newAnalyzer(m, s.Variant, opts)
	if err != nil {
		return nil, err
	}

	want := len(a.variant.Targets())
	if len(s.DJ) != want {
		return nil, fmt.Errorf("%w: snapshot has %d rows, %s needs %d", ErrDimensionMismatch, len(s.DJ), s.Variant, want)
	}
	cols := m.ParamCount()
	dJ := mat.NewDense(want, cols, nil)
	for r, row := range s.DJ {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: row %d has %d entries, model has %d parameters", ErrDimensionMismatch, r, len(row), cols)
		}
		dJ.SetRow(r, row)
	}
	flags := s.Flags
	if len(flags) != want {
		flags = make([]Flag, want)
	}
	a.dJ, a.flags = dJ, append([]Flag(nil), flags...)
	return a, nil
}
