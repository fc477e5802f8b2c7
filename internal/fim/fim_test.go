package fim

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/san-kum/fimlab/internal/hessian"
	"github.com/san-kum/fimlab/internal/maxent"
	"github.com/san-kum/fimlab/internal/perturb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var independentFields = []float64{0.1, -0.2, 0.3, 0.05, -0.15}

func independentModel(t *testing.T) *maxent.Exact {
	t.Helper()
	m, err := maxent.NewIsing(independentFields, make([]float64, 10))
	require.NoError(t, err)
	return m
}

func genericModel(t *testing.T) *maxent.Exact {
	t.Helper()
	m, err := maxent.NewIsing([]float64{0.2, -0.1, 0.3}, []float64{0.4, -0.3, 0.5})
	require.NoError(t, err)
	return m
}

func pottsModel(t *testing.T) *maxent.Exact {
	t.Helper()
	h := []float64{
		0, 0, 0,
		0.2, -0.1, 0.3,
		-0.2, 0.1, 0.15,
	}
	m, err := maxent.NewPotts(3, h, []float64{0.3, -0.2, 0.25})
	require.NoError(t, err)
	return m
}

func solverFor(t *testing.T, m maxent.Model, name string, opts VariantOptions) *Solver {
	t.Helper()
	v, err := NewVariant(name, m, opts)
	require.NoError(t, err)
	return NewSolver(v, SolverOptions{}, nil, nil)
}

// rigged wraps a real variant and replaces its constraint matrix or makes
// its perturbation nonlinear in eps.
type rigged struct {
	Variant
	matrix func(v Variant, C []float64) *mat.Dense
	// curve adds curve*eps^2 to the first perturbed moment.
	curve float64
}

func (r rigged) ConstraintMatrix(C []float64) *mat.Dense {
	if r.matrix != nil {
		return r.matrix(r.Variant, C)
	}
	return r.Variant.ConstraintMatrix(C)
}

func (r rigged) Perturb(t Target, eps float64) ([]float64, perturb.Direction) {
	C, dir := r.Variant.Perturb(t, eps)
	C[0] += r.curve * eps * eps
	return C, dir
}

func riggedSolver(t *testing.T, r rigged, opts SolverOptions) *Solver {
	t.Helper()
	v, err := NewVariant("magnetization", genericModel(t), VariantOptions{})
	require.NoError(t, err)
	r.Variant = v
	return NewSolver(r, opts, nil, nil)
}

func TestIndependentSpinsMatchAnalyticResponse(t *testing.T) {
	m := independentModel(t)
	s := solverFor(t, m, "magnetization", VariantOptions{})

	for i, h := range independentFields {
		res := s.Solve(Target{I: i, A: -1, State: -1}, 1e-7)
		require.Equal(t, FlagOK, res.Flag, "spin %d", i)

		want := make([]float64, m.ParamCount())
		want[i] = 1 / (1 - math.Tanh(h))
		for p := range want {
			assert.InDelta(t, want[p], res.DJ[p], 1e-6*(1+math.Abs(want[p])), "spin %d param %d", i, p)
		}
	}
}

func TestSolverMatchesRefit(t *testing.T) {
	tests := []struct {
		name    string
		model   func(*testing.T) *maxent.Exact
		variant string
		target  Target
	}{
		{"independent field", independentModel, "magnetization", Target{I: 2, A: -1, State: -1}},
		{"coupled field", genericModel, "magnetization", Target{I: 0, A: -1, State: -1}},
		{"coupled mean", genericModel, "magnetization_constant", Target{I: 1, A: -1, State: -1}},
		{"coupled mimic", genericModel, "coupling", Target{I: 1, A: 2, State: -1}},
		{"potts state", pottsModel, "potts_state", Target{I: 1, A: -1, State: 2}},
		{"potts mimic", pottsModel, "potts_coupling", Target{I: 0, A: 2, State: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.model(t)
			v, err := NewVariant(tt.variant, m, VariantOptions{})
			require.NoError(t, err)

			res := NewSolver(v, SolverOptions{}, nil, nil).Solve(tt.target, 1e-7)
			refit, err := NewTester(v, maxent.DefaultFitOptions()).Solve(tt.target, 1e-5)
			require.NoError(t, err)

			require.Len(t, res.DJ, m.ParamCount())
			for p := range refit {
				assert.InDelta(t, refit[p], res.DJ[p], 1e-3*(1+math.Abs(refit[p])), "param %d", p)
			}
		})
	}
}

func TestGenericPointIsWellConditioned(t *testing.T) {
	s := solverFor(t, genericModel(t), "magnetization", VariantOptions{})
	res := s.Solve(Target{I: 0, A: -1, State: -1}, 1e-7)
	assert.Equal(t, FlagOK, res.Flag)
	assert.Less(t, res.Cond, 1e15)
}

func TestStrongFerromagnetIsIllConditioned(t *testing.T) {
	J := make([]float64, 10)
	for i := range J {
		J[i] = 10
	}
	m, err := maxent.NewIsing(make([]float64, 5), J)
	require.NoError(t, err)

	s := solverFor(t, m, "magnetization", VariantOptions{})
	res := s.Solve(Target{I: 0, A: -1, State: -1}, 1e-7)
	assert.Equal(t, FlagIllConditioned, res.Flag)
}

func TestSingularSystemGivesNaNRow(t *testing.T) {
	zeroFirstColumn := func(v Variant, C []float64) *mat.Dense {
		a := mat.DenseCopyOf(v.ConstraintMatrix(C))
		rows, _ := a.Dims()
		for i := 0; i < rows; i++ {
			a.Set(i, 0, 0)
		}
		return a
	}
	s := riggedSolver(t, rigged{matrix: zeroFirstColumn}, SolverOptions{})

	res := s.Solve(Target{I: 0, A: -1, State: -1}, 1e-7)
	assert.Equal(t, FlagIllConditioned, res.Flag)
	require.Len(t, res.DJ, 6)
	for p, v := range res.DJ {
		assert.True(t, math.IsNaN(v), "param %d = %v", p, v)
	}
	assert.True(t, math.IsInf(res.MaxRelErr, 1))
}

func TestNonlinearPerturbationIsUnstable(t *testing.T) {
	s := riggedSolver(t, rigged{curve: 1}, SolverOptions{})
	target := Target{I: 0, A: -1, State: -1}

	res := s.Solve(target, 0.1)
	assert.Equal(t, FlagUnstable, res.Flag)
	assert.Greater(t, res.MaxRelErr, -3.0)
	assert.False(t, hasNaN(res.DJ))

	assert.Equal(t, FlagOK, s.Solve(target, 1e-7).Flag)
}

func TestIllConditionedTakesPrecedence(t *testing.T) {
	s := riggedSolver(t, rigged{curve: 1}, SolverOptions{CondLimit: 1})
	res := s.Solve(Target{I: 0, A: -1, State: -1}, 0.1)
	assert.Greater(t, res.MaxRelErr, -3.0)
	assert.Greater(t, res.Cond, 1.0)
	assert.Equal(t, FlagIllConditioned, res.Flag)
}

func TestResponsesConvergeAsEpsHalves(t *testing.T) {
	s := solverFor(t, genericModel(t), "coupling", VariantOptions{})
	target := Target{I: 0, A: 1, State: -1}

	d1 := s.Solve(target, 1e-3).DJ
	d2 := s.Solve(target, 5e-4).DJ
	d3 := s.Solve(target, 2.5e-4).DJ

	first := floats.Distance(d1, d2, 2)
	second := floats.Distance(d2, d3, 2)
	assert.Greater(t, first, 0.0)
	assert.Less(t, second, 0.75*first)
}

func TestSearchReturnsStableResult(t *testing.T) {
	s := solverFor(t, genericModel(t), "coupling", VariantOptions{})
	res := s.Search(Target{I: 1, A: 0, State: -1}, 1e-7)
	assert.Equal(t, FlagOK, res.Flag)
	assert.Less(t, res.Eps, 0.1)
}

func TestTargets(t *testing.T) {
	tests := []struct {
		variant string
		model   func(*testing.T) *maxent.Exact
		want    int
	}{
		{"magnetization", independentModel, 5},
		{"magnetization_constant", independentModel, 5},
		{"coupling", independentModel, 20},
		{"combined", independentModel, 25},
		{"potts_state", pottsModel, 9},
		{"potts_coupling", pottsModel, 6},
	}
	for _, tt := range tests {
		v, err := NewVariant(tt.variant, tt.model(t), VariantOptions{})
		require.NoError(t, err, tt.variant)
		assert.Len(t, v.Targets(), tt.want, tt.variant)
		assert.Equal(t, tt.variant, v.Name())
	}
}

func TestRegistryErrors(t *testing.T) {
	_, err := NewVariant("bogus", genericModel(t), VariantOptions{})
	assert.ErrorIs(t, err, ErrUnknownVariant)

	_, err = NewVariant("potts_state", genericModel(t), VariantOptions{})
	assert.ErrorIs(t, err, ErrWrongKind)

	_, err = NewVariant("coupling", pottsModel(t), VariantOptions{})
	assert.ErrorIs(t, err, ErrWrongKind)

	assert.Equal(t, []string{"potts_coupling", "potts_state"}, Variants(maxent.KindPotts))
}

func TestLinearResponsesShapeAndCancel(t *testing.T) {
	s := solverFor(t, genericModel(t), "coupling", VariantOptions{})
	dJ, flags, err := s.LinearResponses(context.Background(), 1e-7, 3)
	require.NoError(t, err)
	r, c := dJ.Dims()
	assert.Equal(t, 6, r)
	assert.Equal(t, 6, c)
	assert.Len(t, flags, 6)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = s.LinearResponses(ctx, 1e-7, 3)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSnapshotRoundTripReproducesHessian(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, genericModel(t), "coupling", Options{Eps: 1e-7, Workers: 2})
	require.NoError(t, err)

	hopts := hessian.Options{Mode: hessian.ModeMajority}
	want, _, _, err := a.Curvature(ctx, hopts)
	require.NoError(t, err)

	snap, err := a.Snapshot()
	require.NoError(t, err)
	data, err := json.Marshal(snap)
	require.NoError(t, err)

	var back Snapshot
	require.NoError(t, json.Unmarshal(data, &back))
	restored, err := Restore(back, Options{Workers: 2})
	require.NoError(t, err)

	got, _, _, err := restored.Curvature(ctx, hopts)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got))
}

func TestRestoreRejectsWrongShape(t *testing.T) {
	a, err := New(context.Background(), genericModel(t), "magnetization", Options{})
	require.NoError(t, err)
	snap, err := a.Snapshot()
	require.NoError(t, err)

	snap.DJ = snap.DJ[:1]
	_, err = Restore(snap, Options{})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestLazyAnalyzerHasNoSnapshot(t *testing.T) {
	a, err := New(context.Background(), genericModel(t), "magnetization", Options{Lazy: true})
	require.NoError(t, err)
	_, err = a.Snapshot()
	assert.ErrorIs(t, err, ErrNoResponses)
}

func TestRowEncodesNaNAsNull(t *testing.T) {
	data, err := json.Marshal(Row{1.5, math.NaN(), -2})
	require.NoError(t, err)
	assert.JSONEq(t, `[1.5, null, -2]`, string(data))

	var back Row
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, 1.5, back[0])
	assert.True(t, math.IsNaN(back[1]))
	assert.Equal(t, -2.0, back[2])
}

func TestEigenOfCurvature(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, independentModel(t), "magnetization", Options{Solver: DefaultSolverOptions()})
	require.NoError(t, err)
	h, _, _, err := a.Curvature(ctx, hessian.Options{Mode: hessian.ModeFull, MaxIterations: 2})
	require.NoError(t, err)

	spec, err := a.Eigen(h)
	require.NoError(t, err)
	require.Len(t, spec.Values, 5)
	for i := 1; i < len(spec.Values); i++ {
		assert.GreaterOrEqual(t, spec.Values[i-1], spec.Values[i])
	}
	assert.Zero(t, spec.Report.Negative)
}
