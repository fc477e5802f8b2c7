package analysis

import (
	"math"
	"testing"

	"github.com/san-kum/fimlab/internal/maxent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestEigenSortsAndOrients(t *testing.T) {
	h := mat.NewDense(3, 3, []float64{
		2, 1, 0,
		1, 3, 0,
		0, 0, 0.5,
	})
	spec, err := Eigen(h, 2, Options{})
	require.NoError(t, err)

	want := []float64{(5 + math.Sqrt(5)) / 2, (5 - math.Sqrt(5)) / 2, 0.5}
	for i, w := range want {
		assert.InDelta(t, w, spec.Values[i], 1e-12)
	}
	for j := 0; j < 3; j++ {
		col := mat.Col(nil, j, spec.Vectors)
		assert.GreaterOrEqual(t, col[0]+col[1], -1e-12, "column %d", j)

		var hv, lv mat.VecDense
		v := mat.NewVecDense(3, col)
		hv.MulVec(h, v)
		lv.ScaleVec(spec.Values[j], v)
		assert.True(t, mat.EqualApprox(&hv, &lv, 1e-10), "column %d is not an eigenvector", j)
	}
	assert.Empty(t, spec.Report.Warnings)
}

func TestEigenWarnsOnNegativeValues(t *testing.T) {
	h := mat.NewDense(2, 2, []float64{1, 0, 0, -1})
	spec, err := Eigen(h, 2, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, spec.Report.Negative)
	assert.NotEmpty(t, spec.Report.Warnings)
}

func TestEigenRejectsBadReference(t *testing.T) {
	_, err := Eigen(mat.NewDense(2, 2, []float64{1, 0, 0, 1}), 2, Options{Reference: []float64{1}})
	assert.ErrorIs(t, err, ErrShape)
}

func TestProjectToParameters(t *testing.T) {
	dJ := mat.NewDense(2, 3, []float64{
		1, 0, 2,
		0, 1, -1,
	})
	v := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	got := ProjectToParameters(dJ, v)
	r, c := got.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 2.0, got.At(2, 0))
	assert.Equal(t, -1.0, got.At(2, 1))
}

func TestSubspaceEigenBlocks(t *testing.T) {
	h := mat.NewDense(4, 4, []float64{
		2, 0, 9, 9,
		0, 1, 9, 9,
		9, 9, 1, 1,
		9, 9, 1, 1,
	})
	blocks, err := SubspaceEigen(h, 2)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.InDelta(t, 2, blocks[0].Values[0], 1e-12)
	assert.InDelta(t, 1, blocks[0].Values[1], 1e-12)
	assert.InDelta(t, 2, blocks[1].Values[0], 1e-12)
	assert.InDelta(t, 0, blocks[1].Values[1], 1e-12)
	assert.InDelta(t, math.Sqrt2/2, blocks[1].Vectors.At(0, 0), 1e-12)

	_, err = SubspaceEigen(h, 3)
	assert.ErrorIs(t, err, ErrShape)
}

func TestMajorityLogRatesShape(t *testing.T) {
	m, err := maxent.NewIsing([]float64{0.1, 0.2, -0.1}, []float64{0.3, 0.1, 0.2})
	require.NoError(t, err)

	// one coupling direction per ordered pair, two per spin
	dJ := mat.NewDense(6, m.ParamCount(), nil)
	for r := 0; r < 6; r++ {
		dJ.Set(r, 3+r%3, 1)
	}
	h := mat.NewDense(6, 6, nil)
	for i := 0; i < 6; i++ {
		h.Set(i, i, float64(6-i))
	}

	rates, err := MajorityLogRates(m, dJ, h, 1e-5)
	require.NoError(t, err)
	require.Len(t, rates, 3)
	for _, r := range rates {
		require.Len(t, r, 2)
		// raising couplings favours unanimity
		assert.Greater(t, r[0], 0.0)
		assert.Less(t, r[1], 0.0)
	}

	_, err = MajorityLogRates(m, mat.NewDense(2, m.ParamCount(), nil), h, 1e-5)
	assert.ErrorIs(t, err, ErrShape)
}
