package hessian

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/san-kum/fimlab/internal/maxent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/mat"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fields = []float64{0.2, -0.3, 0.5}

// independent returns a model of uncoupled spins with the field response
// rows dJ_i = e_i / (1 - tanh h_i).
func independent(t *testing.T) (*maxent.Exact, *mat.Dense) {
	t.Helper()
	m, err := maxent.NewIsing(fields, make([]float64, 3))
	require.NoError(t, err)

	dJ := mat.NewDense(3, m.ParamCount(), nil)
	for i, h := range fields {
		dJ.Set(i, i, 1/(1-math.Tanh(h)))
	}
	return m, dJ
}

func coupled(t *testing.T) (*maxent.Exact, *mat.Dense) {
	t.Helper()
	m, err := maxent.NewIsing([]float64{0.1, -0.2, 0.05, 0.3}, []float64{0.2, -0.1, 0.3, 0.15, -0.25, 0.1})
	require.NoError(t, err)
	dJ := mat.NewDense(3, m.ParamCount(), []float64{
		1, 0, 0, 0, 0.2, 0, 0, 0, 0, 0,
		0, 0.5, -0.3, 0, 0, 0, 0.1, 0, 0, 0,
		0, 0, 0, 0.7, 0, 0, 0, 0.4, -0.2, 0.3,
	})
	return m, dJ
}

func TestFullModeIndependentSpins(t *testing.T) {
	m, dJ := independent(t)
	est := New(m, nil, nil)

	h, _, _, err := est.Curvature(context.Background(), dJ, Options{Mode: ModeFull, Workers: 2, MaxIterations: 2})
	require.NoError(t, err)

	for i, hi := range fields {
		mi := math.Tanh(hi)
		want := (1 + mi) / ((1 - mi) * math.Ln2)
		assert.InEpsilon(t, want, h.At(i, i), 1e-3, "diagonal %d", i)
		for j := 0; j < 3; j++ {
			if j != i {
				assert.InDelta(t, 0, h.At(i, j), 1e-4, "off-diagonal (%d,%d)", i, j)
			}
		}
	}
}

func TestEveryModeIsSymmetric(t *testing.T) {
	// coarse and full curvature differ, but every mode must produce a
	// symmetric positive diagonal
	m, dJ := independent(t)
	est := New(m, nil, nil)

	for _, mode := range []Mode{ModeFull, ModeMajority, ModeMajorityCovariance} {
		t.Run(mode.String(), func(t *testing.T) {
			h, _, _, err := est.Curvature(context.Background(), dJ, Options{Mode: mode})
			require.NoError(t, err)
			r, c := h.Dims()
			require.Equal(t, 3, r)
			require.Equal(t, 3, c)
			for i := 0; i < r; i++ {
				assert.Greater(t, h.At(i, i), 0.0)
				for j := 0; j < c; j++ {
					assert.Equal(t, h.At(i, j), h.At(j, i))
				}
			}
		})
	}
}

func TestMajorityMatchesCovariance(t *testing.T) {
	m, dJ := coupled(t)
	est := New(m, nil, nil)

	maj, err := est.Evaluate(dJ, 1e-4, Options{Mode: ModeMajority})
	require.NoError(t, err)
	cov, err := est.Evaluate(dJ, 1e-4, Options{Mode: ModeMajorityCovariance})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.InDelta(t, cov.At(i, j), maj.At(i, j), 1e-4*(1+math.Abs(cov.At(i, j))), "(%d,%d)", i, j)
		}
	}
}

func TestWorkerCountDoesNotChangeResult(t *testing.T) {
	m, dJ := coupled(t)
	est := New(m, nil, nil)

	for _, mode := range []Mode{ModeFull, ModeMajority} {
		serial, err := est.Evaluate(dJ, 1e-4, Options{Mode: mode, Workers: 1})
		require.NoError(t, err)
		parallel, err := est.Evaluate(dJ, 1e-4, Options{Mode: mode, Workers: 4})
		require.NoError(t, err)
		assert.True(t, mat.Equal(serial, parallel), "mode %s", mode)
	}
}

func TestBigPrecisionMatchesFloat64(t *testing.T) {
	m, dJ := coupled(t)
	est := New(m, nil, nil)

	f64, err := est.Evaluate(dJ, 1e-4, Options{Mode: ModeMajority})
	require.NoError(t, err)
	big, err := est.Evaluate(dJ, 1e-4, Options{Mode: ModeMajority, Precision: PrecisionBig, Bits: 160})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.InDelta(t, f64.At(i, j), big.At(i, j), 1e-4*(1+math.Abs(f64.At(i, j))))
		}
	}
}

func TestBigPrecisionRequiresMajority(t *testing.T) {
	m, dJ := coupled(t)
	_, err := New(m, nil, nil).Evaluate(dJ, 1e-4, Options{Mode: ModeFull, Precision: PrecisionBig})
	assert.True(t, errors.Is(err, ErrUnsupported))
}

func TestShapeMismatch(t *testing.T) {
	m, _ := coupled(t)
	_, _, _, err := New(m, nil, nil).Curvature(context.Background(), mat.NewDense(2, 3, nil), Options{})
	assert.True(t, errors.Is(err, ErrShape))
}

func TestZeroRowGivesZeroCurvature(t *testing.T) {
	m, dJ := coupled(t)
	dJ.SetRow(1, make([]float64, m.ParamCount()))

	h, err := New(m, nil, nil).Evaluate(dJ, 1e-4, Options{Mode: ModeMajority})
	require.NoError(t, err)
	assert.Equal(t, 0.0, h.At(1, 1))
}

func TestWithinTolerance(t *testing.T) {
	h := mat.NewDense(2, 2, []float64{2, 0, 0, 4})
	tests := []struct {
		name string
		diff []float64
		want bool
	}{
		{"unchanged zeros", []float64{1e-4, 0, 0, 1e-4}, true},
		{"moved zero", []float64{0, 1e-12, 1e-12, 0}, false},
		{"large change", []float64{0.1, 0, 0, 0}, false},
		{"nan change", []float64{math.NaN(), 0, 0, 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, withinTolerance(mat.NewDense(2, 2, tt.diff), h, 1e-3))
		})
	}
}

func TestZeroRowConverges(t *testing.T) {
	m, _ := coupled(t)
	dJ := mat.NewDense(3, m.ParamCount(), nil)

	_, flag, residual, err := New(m, nil, nil).EvaluateOnce(dJ, 1e-4, Options{Mode: ModeMajority})
	require.NoError(t, err)
	assert.Equal(t, Converged, flag)
	assert.Zero(t, residual)
}

func TestProgressCountsEveryEntry(t *testing.T) {
	m, dJ := coupled(t)
	var calls, last atomic.Int64
	opts := Options{
		Mode:    ModeFull,
		Workers: 3,
		OnProgress: func(done, total int) {
			calls.Add(1)
			assert.LessOrEqual(t, done, total)
			last.Store(int64(total))
		},
	}
	_, _, _, err := New(m, nil, nil).EvaluateOnce(dJ, 1e-4, opts)
	require.NoError(t, err)
	assert.Equal(t, int64(12), calls.Load())
	assert.Equal(t, int64(12), last.Load())
}

func TestCurvatureHonoursCanceledContext(t *testing.T) {
	m, dJ := coupled(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, _, err := New(m, nil, nil).Curvature(ctx, dJ, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"full", ModeFull},
		{"majority", ModeMajority},
		{"cov", ModeMajorityCovariance},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
	_, err := ParseMode("bogus")
	assert.Error(t, err)
}
