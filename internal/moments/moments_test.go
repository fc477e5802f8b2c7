package moments

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/fimlab/internal/maxent"
)

func TestBinaryCanonicalKeys(t *testing.T) {
	m, err := maxent.NewIsing([]float64{0.3, -0.1, 0.2, 0.05}, []float64{0.1, -0.2, 0, 0.3, 0.1, -0.1})
	require.NoError(t, err)
	c := NewBinary(m.Ensemble())
	p := m.Probabilities(m.Params())
	obs := m.Observables(m.Params())

	assert.Equal(t, c.Triplet(0, 1, 2), c.Triplet(2, 0, 1))
	assert.Equal(t, c.Quartet(0, 1, 2, 3), c.Quartet(3, 2, 1, 0))

	// s_i*s_i = 1 collapses a repeated index into a lower moment
	assert.InDelta(t, obs[3], c.ExpectTriplet(1, 1, 3, p), 1e-12)
	assert.InDelta(t, 1.0, c.ExpectQuartet(0, 2, 0, 2, p), 1e-12)

	ens := m.Ensemble()
	want := 0.0
	for s := 0; s < ens.Len(); s++ {
		row := ens.Row(s)
		want += p[s] * float64(row[0]*row[2]*row[3])
	}
	assert.InDelta(t, want, c.ExpectTriplet(3, 0, 2, p), 1e-12)
}

func TestBinaryMissingKeyPanics(t *testing.T) {
	m, err := maxent.NewIsing([]float64{0, 0, 0}, []float64{0, 0, 0})
	require.NoError(t, err)
	c := NewBinary(m.Ensemble())
	assert.Panics(t, func() { c.Triplet(0, 1, 5) })
}

func TestPottsMasks(t *testing.T) {
	h := []float64{0, 0, 0, 0.2, -0.3, 0.1, -0.1, 0.4, 0}
	J := []float64{0.5, -0.2, 0.3}
	m, err := maxent.NewPotts(3, h, J)
	require.NoError(t, err)
	c := NewPotts(m.Ensemble())
	p := m.Probabilities(m.Params())
	obs := m.Observables(m.Params())

	assert.InDelta(t, c.ExpectPair(1, 0, 2, 2, p), c.ExpectPair(2, 2, 1, 0, p), 1e-15)

	// summing the joint over the partner state gives the marginal
	for a := 0; a < 3; a++ {
		total := 0.0
		for b := 0; b < 3; b++ {
			total += c.ExpectPair(a, 0, b, 1, p)
		}
		assert.InDelta(t, obs[a*3+0], total, 1e-12)
	}

	// agreement of (0,1) is the diagonal of the joint
	agree := 0.0
	for g := 0; g < 3; g++ {
		agree += c.ExpectPair(g, 0, g, 1, p)
	}
	assert.InDelta(t, obs[9], agree, 1e-12)

	// summing the triplet over states of the singled-out spin gives agreement
	total := 0.0
	for g := 0; g < 3; g++ {
		total += c.ExpectTriplet(g, 2, 0, 1, p)
	}
	assert.InDelta(t, obs[9], total, 1e-12)

	assert.InDelta(t, c.ExpectQuartet(0, 1, 1, 2, p), c.ExpectQuartet(2, 1, 1, 0, p), 1e-15)
	assert.InDelta(t, obs[9], c.ExpectQuartet(0, 1, 1, 0, p), 1e-12)
}
