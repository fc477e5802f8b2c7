package maxent

import (
	"fmt"
	"math"
	"math/rand"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// SampleConfig controls the Metropolis sampler.
type SampleConfig struct {
	Samples int   `yaml:"samples" json:"samples"`
	BurnIn  int   `yaml:"burn_in" json:"burn_in"`
	Thin    int   `yaml:"thin" json:"thin"`
	Seed    int64 `yaml:"seed" json:"seed"`
}

// DefaultSampleConfig is sized for models of a few dozen spins.
func DefaultSampleConfig() SampleConfig {
	return SampleConfig{Samples: 20000, BurnIn: 200, Thin: 2, Seed: 1}
}

// Sampled represents a model by the distinct configurations visited by a
// Metropolis chain. Probabilities at other parameters are obtained by
// importance reweighting the empirical distribution.
type Sampled struct {
	ens    *Ensemble
	params []float64
	logw0  []float64
	e0     []float64
	cfg    SampleConfig
}

// NewSampled draws cfg.Samples configurations from the model with the given
// parameters.
func NewSampled(kind Kind, n, k int, params []float64, cfg SampleConfig) (*Sampled, error) {
	if kind == KindIsing {
		k = 2
	}
	if n < 2 || len(params) != ParamCount(kind, n, k) {
		return nil, fmt.Errorf("%w: %d params for %d spins", ErrShape, len(params), n)
	}
	if kind == KindPotts {
		for i := 0; i < n; i++ {
			if params[i] != 0 {
				return nil, ErrGauge
			}
		}
	}
	if cfg.Samples <= 0 {
		cfg.Samples = DefaultSampleConfig().Samples
	}
	if cfg.Thin <= 0 {
		cfg.Thin = 1
	}

	states, counts := metropolis(kind, n, k, params, cfg)
	ens := NewEnsemble(kind, n, k, states)

	total := 0.0
	for _, c := range counts {
		total += float64(c)
	}
	logw0 := make([]float64, len(counts))
	for s, c := range counts {
		logw0[s] = math.Log(float64(c) / total)
	}

	return &Sampled{
		ens:    ens,
		params: append([]float64(nil), params...),
		logw0:  logw0,
		e0:     Energies(ens, params),
		cfg:    cfg,
	}, nil
}

func (m *Sampled) Kind() Kind          { return m.ens.Kind }
func (m *Sampled) N() int              { return m.ens.N }
func (m *Sampled) K() int              { return m.ens.K }
func (m *Sampled) ParamCount() int     { return len(m.params) }
func (m *Sampled) Params() []float64   { return append([]float64(nil), m.params...) }
func (m *Sampled) Ensemble() *Ensemble { return m.ens }

// Config returns the sampler settings the ensemble was drawn with.
func (m *Sampled) Config() SampleConfig { return m.cfg }

func (m *Sampled) Energies(params []float64) []float64 {
	return Energies(m.ens, params)
}

// LogWeights reweights the empirical distribution by exp(-(E - E0)).
func (m *Sampled) LogWeights(params []float64) []float64 {
	e := Energies(m.ens, params)
	out := make([]float64, len(e))
	floats.SubTo(out, m.e0, e)
	floats.Add(out, m.logw0)
	return out
}

func (m *Sampled) Probabilities(params []float64) []float64 {
	return Normalize(m.LogWeights(params))
}

func (m *Sampled) Observables(params []float64) []float64 {
	return Moments(m.ens, m.Probabilities(params))
}

// metropolis runs single-spin updates and returns the distinct visited
// configurations in a deterministic order with their visit counts.
func metropolis(kind Kind, n, k int, params []float64, cfg SampleConfig) ([]int8, []int) {
	rng := rand.New(rand.NewSource(cfg.Seed))
	row := make([]int8, n)
	for i := range row {
		if kind == KindIsing {
			row[i] = int8(2*rng.Intn(2) - 1)
		} else {
			row[i] = int8(rng.Intn(k))
		}
	}
	energy := stateEnergy(kind, k, row, params)

	sweep := func() {
		for step := 0; step < n; step++ {
			i := rng.Intn(n)
			old := row[i]
			if kind == KindIsing {
				row[i] = -old
			} else {
				row[i] = int8((int(old) + 1 + rng.Intn(k-1)) % k)
			}
			proposed := stateEnergy(kind, k, row, params)
			if d := proposed - energy; d <= 0 || rng.Float64() < math.Exp(-d) {
				energy = proposed
			} else {
				row[i] = old
			}
		}
	}

	for b := 0; b < cfg.BurnIn; b++ {
		sweep()
	}
	visits := make(map[string]int)
	for s := 0; s < cfg.Samples; s++ {
		for t := 0; t < cfg.Thin; t++ {
			sweep()
		}
		visits[encodeRow(row)]++
	}

	keys := make([]string, 0, len(visits))
	for key := range visits {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	states := make([]int8, 0, len(keys)*n)
	counts := make([]int, len(keys))
	for s, key := range keys {
		for _, b := range []byte(key) {
			states = append(states, int8(b))
		}
		counts[s] = visits[key]
	}
	return states, counts
}

func encodeRow(row []int8) string {
	b := make([]byte, len(row))
	for i, v := range row {
		b[i] = byte(v)
	}
	return string(b)
}
