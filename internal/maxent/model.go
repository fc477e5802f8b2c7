package maxent

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Model is a pairwise maximum-entropy distribution over an explicit
// ensemble of configurations. Every method that takes params accepts any
// vector with the model's parameter layout; the model's own parameters are
// returned by Params.
type Model interface {
	Kind() Kind
	N() int
	K() int
	ParamCount() int
	Params() []float64
	Ensemble() *Ensemble

	// Energies is linear in params, so Energies(d) is the energy change
	// produced by the parameter step d.
	Energies(params []float64) []float64
	// LogWeights returns the unnormalized log probability of each
	// configuration.
	LogWeights(params []float64) []float64
	Probabilities(params []float64) []float64
	Observables(params []float64) []float64
}

// Exact enumerates every configuration.
type Exact struct {
	ens    *Ensemble
	params []float64
}

// NewIsing builds an exact Ising model from fields h and couplings J in
// upper-triangle order.
func NewIsing(h, J []float64) (*Exact, error) {
	n := len(h)
	if n < 2 || len(J) != n*(n-1)/2 {
		return nil, fmt.Errorf("%w: %d fields, %d couplings", ErrShape, len(h), len(J))
	}
	ens, err := Enumerate(KindIsing, n, 2)
	if err != nil {
		return nil, err
	}
	return &Exact{ens: ens, params: concat(h, J)}, nil
}

// NewPotts builds an exact k-state Potts model. h holds k*n fields ordered by
// state then spin; the first n (state 0) must be zero.
func NewPotts(k int, h, J []float64) (*Exact, error) {
	if k < 2 || len(h)%k != 0 {
		return nil, fmt.Errorf("%w: %d fields for %d states", ErrShape, len(h), k)
	}
	n := len(h) / k
	if n < 2 || len(J) != n*(n-1)/2 {
		return nil, fmt.Errorf("%w: %d spins, %d couplings", ErrShape, n, len(J))
	}
	for i := 0; i < n; i++ {
		if h[i] != 0 {
			return nil, ErrGauge
		}
	}
	ens, err := Enumerate(KindPotts, n, k)
	if err != nil {
		return nil, err
	}
	return &Exact{ens: ens, params: concat(h, J)}, nil
}

func (m *Exact) Kind() Kind          { return m.ens.Kind }
func (m *Exact) N() int              { return m.ens.N }
func (m *Exact) K() int              { return m.ens.K }
func (m *Exact) ParamCount() int     { return len(m.params) }
func (m *Exact) Params() []float64   { return append([]float64(nil), m.params...) }
func (m *Exact) Ensemble() *Ensemble { return m.ens }

func (m *Exact) Energies(params []float64) []float64 {
	return Energies(m.ens, params)
}

func (m *Exact) LogWeights(params []float64) []float64 {
	lw := Energies(m.ens, params)
	floats.Scale(-1, lw)
	return lw
}

func (m *Exact) Probabilities(params []float64) []float64 {
	return Normalize(m.LogWeights(params))
}

func (m *Exact) Observables(params []float64) []float64 {
	return Moments(m.ens, m.Probabilities(params))
}

// Energies evaluates the model energy of every configuration:
// E = -sum h_i s_i - sum J_ij s_i s_j for Ising, and
// E = -sum h[s_i*n+i] - sum J_ij [s_i == s_j] for Potts.
func Energies(ens *Ensemble, params []float64) []float64 {
	n := ens.N
	if len(params) != ParamCount(ens.Kind, n, ens.K) {
		panic(fmt.Sprintf("maxent: %d params for %s model with %d spins", len(params), ens.Kind, n))
	}
	out := make([]float64, ens.Len())
	for s := range out {
		out[s] = stateEnergy(ens.Kind, ens.K, ens.Row(s), params)
	}
	return out
}

func stateEnergy(kind Kind, k int, row []int8, params []float64) float64 {
	n := len(row)
	e := 0.0
	ix := FieldCount(kind, n, k)
	if kind == KindPotts {
		for i, s := range row {
			e -= params[int(s)*n+i]
		}
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if row[i] == row[j] {
					e -= params[ix]
				}
				ix++
			}
		}
		return e
	}
	for i, s := range row {
		e -= params[i] * float64(s)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			e -= params[ix] * float64(row[i]*row[j])
			ix++
		}
	}
	return e
}

// Normalize exponentiates log weights into a probability vector.
func Normalize(logw []float64) []float64 {
	logZ := floats.LogSumExp(logw)
	p := make([]float64, len(logw))
	for s, v := range logw {
		p[s] = math.Exp(v - logZ)
	}
	return p
}

// Moments averages the configuration features under p.
func Moments(ens *Ensemble, p []float64) []float64 {
	size := ParamCount(ens.Kind, ens.N, ens.K)
	out := make([]float64, size)
	f := make([]float64, size)
	for s, ps := range p {
		if ps == 0 {
			continue
		}
		Features(ens.Kind, ens.K, ens.Row(s), f)
		floats.AddScaled(out, ps, f)
	}
	return out
}

func concat(a, b []float64) []float64 {
	out := make([]float64, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
