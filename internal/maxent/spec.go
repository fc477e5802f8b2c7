package maxent

import "fmt"

// Spec describes a model in configuration files and snapshots.
type Spec struct {
	Kind   string        `yaml:"kind" json:"kind"`
	K      int           `yaml:"k,omitempty" json:"k,omitempty"`
	H      []float64     `yaml:"h" json:"h"`
	J      []float64     `yaml:"j" json:"j"`
	Sample *SampleConfig `yaml:"sample,omitempty" json:"sample,omitempty"`
}

// Build constructs the model a Spec describes. A non-nil Sample selects the
// Metropolis-backed representation.
func Build(s Spec) (Model, error) {
	kind, err := ParseKind(s.Kind)
	if err != nil {
		return nil, err
	}
	k := s.K
	if kind == KindIsing {
		k = 2
	} else if k < 2 {
		return nil, fmt.Errorf("%w: potts model with k=%d", ErrShape, k)
	}

	if s.Sample != nil {
		n := len(s.H) / FieldCount(kind, 1, k)
		return NewSampled(kind, n, k, concat(s.H, s.J), *s.Sample)
	}
	if kind == KindPotts {
		return NewPotts(k, s.H, s.J)
	}
	return NewIsing(s.H, s.J)
}

// SpecOf splits a model back into a Spec.
func SpecOf(m Model) Spec {
	params := m.Params()
	nf := FieldCount(m.Kind(), m.N(), m.K())
	s := Spec{
		Kind: m.Kind().String(),
		H:    params[:nf],
		J:    params[nf:],
	}
	if m.Kind() == KindPotts {
		s.K = m.K()
	}
	if sm, ok := m.(*Sampled); ok {
		cfg := sm.Config()
		s.Sample = &cfg
	}
	return s
}
