package fim

import (
	"fmt"

	"github.com/san-kum/fimlab/internal/combin"
	"github.com/san-kum/fimlab/internal/maxent"
	"github.com/san-kum/fimlab/internal/moments"
	"github.com/san-kum/fimlab/internal/perturb"
	"gonum.org/v1/gonum/mat"
)

// Target names one elementary perturbation: spin I, optionally copying
// spin A or pushed toward State. Unused fields are -1.
type Target struct {
	I     int `json:"i"`
	A     int `json:"a"`
	State int `json:"state"`
}

func (t Target) String() string {
	switch {
	case t.A >= 0:
		return fmt.Sprintf("spin %d<-%d", t.I, t.A)
	case t.State >= 0:
		return fmt.Sprintf("spin %d->%d", t.I, t.State)
	default:
		return fmt.Sprintf("spin %d", t.I)
	}
}

// Variant is one family of perturbations together with the linear system
// that maps a perturbed moment vector to a parameter change.
type Variant interface {
	Name() string
	Model() maxent.Model
	Direction() perturb.Direction
	Targets() []Target
	// Perturb returns the moments after applying t with strength eps and the
	// sign convention of the resulting parameter change.
	Perturb(t Target, eps float64) ([]float64, perturb.Direction)
	// ConstraintMatrix linearizes the moment constraints around the
	// perturbed moments C.
	ConstraintMatrix(C []float64) *mat.Dense
	// Lift maps solved unknowns onto the full parameter vector.
	Lift(x []float64) []float64
	// Moments returns the unperturbed moment vector.
	Moments() []float64
}

type base struct {
	model maxent.Model
	n, k  int
	obs   []float64
	p     []float64
}

func newBase(m maxent.Model) (base, error) {
	params := m.Params()
	obs := m.Observables(params)
	if len(obs) != m.ParamCount() {
		return base{}, fmt.Errorf("%w: %d moments for %d parameters", ErrDimensionMismatch, len(obs), m.ParamCount())
	}
	return base{
		model: m,
		n:     m.N(),
		k:     m.K(),
		obs:   obs,
		p:     m.Probabilities(params),
	}, nil
}

func (b *base) Model() maxent.Model { return b.model }
func (b *base) Moments() []float64  { return append([]float64(nil), b.obs...) }

// binarySystem is the square constraint system of an Ising model.
type binarySystem struct {
	base
	cache *moments.Binary
}

func newBinarySystem(m maxent.Model) (binarySystem, error) {
	if m.Kind() != maxent.KindIsing {
		return binarySystem{}, fmt.Errorf("%w: %s", ErrWrongKind, m.Kind())
	}
	b, err := newBase(m)
	if err != nil {
		return binarySystem{}, err
	}
	return binarySystem{base: b, cache: moments.NewBinary(m.Ensemble())}, nil
}

func (s *binarySystem) ConstraintMatrix(C []float64) *mat.Dense {
	n := s.n
	size := len(s.obs)
	if len(C) != size {
		panic(fmt.Sprintf("fim: %d perturbed moments for %d parameters", len(C), size))
	}
	si, sisj := s.obs[:n], s.obs[n:]
	pairs := combin.Pairs(n)
	a := mat.NewDense(size, size, nil)

	for i := 0; i < n; i++ {
		for k := 0; k < n; k++ {
			if k == i {
				a.Set(i, i, 1-C[i]*si[i])
				continue
			}
			a.Set(i, k, sisj[combin.Pair(i, k, n)]-C[i]*si[k])
		}
		for c, kl := range pairs {
			a.Set(i, n+c, s.cache.ExpectTriplet(i, kl[0], kl[1], s.p)-C[i]*sisj[c])
		}
	}

	for r, ij := range pairs {
		row := n + r
		for k := 0; k < n; k++ {
			a.Set(row, k, s.cache.ExpectTriplet(ij[0], ij[1], k, s.p)-C[row]*si[k])
		}
		for c, kl := range pairs {
			a.Set(row, n+c, s.cache.ExpectQuartet(ij[0], ij[1], kl[0], kl[1], s.p)-C[row]*sisj[c])
		}
	}
	return a
}

func (s *binarySystem) Lift(x []float64) []float64 { return x }

// pottsSystem is the rectangular constraint system of a Potts model. The
// state 0 fields are gauge-fixed, so their columns are dropped and Lift
// puts them back as zeros.
type pottsSystem struct {
	base
	cache *moments.Potts
}

func newPottsSystem(m maxent.Model) (pottsSystem, error) {
	if m.Kind() != maxent.KindPotts {
		return pottsSystem{}, fmt.Errorf("%w: %s", ErrWrongKind, m.Kind())
	}
	b, err := newBase(m)
	if err != nil {
		return pottsSystem{}, err
	}
	return pottsSystem{base: b, cache: moments.NewPotts(m.Ensemble())}, nil
}

func (s *pottsSystem) pair(a, i, b, j int) float64 {
	return s.cache.ExpectPair(a, i, b, j, s.p)
}

func (s *pottsSystem) ConstraintMatrix(C []float64) *mat.Dense {
	n, k := s.n, s.k
	nf := k * n
	if len(C) != len(s.obs) {
		panic(fmt.Sprintf("fim: %d perturbed moments for %d parameters", len(C), len(s.obs)))
	}
	si, sisj := s.obs[:nf], s.obs[nf:]
	pairs := combin.Pairs(n)
	free := (k - 1) * n
	a := mat.NewDense(nf+len(pairs), free+len(pairs), nil)

	for r := 0; r < nf; r++ {
		alpha, i := r/n, r%n
		for c := n; c < nf; c++ {
			beta, j := c/n, c%n
			var v float64
			switch {
			case c == r:
				v = si[r] - C[r]*si[c]
			case j == i:
				v = -C[r] * si[c]
			default:
				v = s.cache.ExpectPair(alpha, i, beta, j, s.p) - C[r]*si[c]
			}
			a.Set(r, c-n, v)
		}
		for c, kl := range pairs {
			a.Set(r, free+c, s.cache.ExpectTriplet(alpha, i, kl[0], kl[1], s.p)-C[r]*sisj[c])
		}
	}

	for q, ij := range pairs {
		row := nf + q
		for c := n; c < nf; c++ {
			beta, m := c/n, c%n
			a.Set(row, c-n, s.cache.ExpectTriplet(beta, m, ij[0], ij[1], s.p)-C[row]*si[c])
		}
		for c, kl := range pairs {
			a.Set(row, free+c, s.cache.ExpectQuartet(ij[0], ij[1], kl[0], kl[1], s.p)-C[row]*sisj[c])
		}
	}
	return a
}

func (s *pottsSystem) Lift(x []float64) []float64 {
	out := make([]float64, s.n+len(x))
	copy(out[s.n:], x)
	return out
}
