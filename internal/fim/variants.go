package fim

import (
	"github.com/san-kum/fimlab/internal/maxent"
	"github.com/san-kum/fimlab/internal/perturb"
)

// VariantOptions configures a variant at construction. A zero Direction
// selects the variant's default.
type VariantOptions struct {
	Direction perturb.Direction
}

func (o VariantOptions) direction(def perturb.Direction) perturb.Direction {
	if o.Direction == perturb.Up || o.Direction == perturb.Down {
		return o.Direction
	}
	return def
}

func spinTargets(n int) []Target {
	out := make([]Target, n)
	for i := range out {
		out[i] = Target{I: i, A: -1, State: -1}
	}
	return out
}

func mimicTargets(n int) []Target {
	out := make([]Target, 0, n*(n-1))
	for i := 0; i < n; i++ {
		for a := 0; a < n; a++ {
			if a != i {
				out = append(out, Target{I: i, A: a, State: -1})
			}
		}
	}
	return out
}

// Magnetization replaces one spin at a time by a spin pinned to -1 (or +1
// with Up).
type Magnetization struct {
	binarySystem
	dir perturb.Direction
}

func NewMagnetization(m maxent.Model, opts VariantOptions) (*Magnetization, error) {
	sys, err := newBinarySystem(m)
	if err != nil {
		return nil, err
	}
	return &Magnetization{binarySystem: sys, dir: opts.direction(perturb.Down)}, nil
}

func (v *Magnetization) Name() string                 { return "magnetization" }
func (v *Magnetization) Direction() perturb.Direction { return v.dir }
func (v *Magnetization) Targets() []Target            { return spinTargets(v.n) }

func (v *Magnetization) Perturb(t Target, eps float64) ([]float64, perturb.Direction) {
	return perturb.Field(v.obs, v.n, t.I, eps, v.dir), v.dir
}

// MagnetizationConstant shifts each mean by a fixed amount.
type MagnetizationConstant struct {
	binarySystem
}

func NewMagnetizationConstant(m maxent.Model, _ VariantOptions) (*MagnetizationConstant, error) {
	sys, err := newBinarySystem(m)
	if err != nil {
		return nil, err
	}
	return &MagnetizationConstant{binarySystem: sys}, nil
}

func (v *MagnetizationConstant) Name() string                 { return "magnetization_constant" }
func (v *MagnetizationConstant) Direction() perturb.Direction { return perturb.Up }
func (v *MagnetizationConstant) Targets() []Target            { return spinTargets(v.n) }

func (v *MagnetizationConstant) Perturb(t Target, eps float64) ([]float64, perturb.Direction) {
	return perturb.Mean(v.obs, v.n, t.I, eps, perturb.Up), perturb.Up
}

// Coupling makes spin i copy spin a, for every ordered pair.
type Coupling struct {
	binarySystem
	dir perturb.Direction
}

func NewCoupling(m maxent.Model, opts VariantOptions) (*Coupling, error) {
	sys, err := newBinarySystem(m)
	if err != nil {
		return nil, err
	}
	return &Coupling{binarySystem: sys, dir: opts.direction(perturb.Up)}, nil
}

func (v *Coupling) Name() string                 { return "coupling" }
func (v *Coupling) Direction() perturb.Direction { return v.dir }
func (v *Coupling) Targets() []Target            { return mimicTargets(v.n) }

func (v *Coupling) Perturb(t Target, eps float64) ([]float64, perturb.Direction) {
	return perturb.Mimic(v.obs, v.n, t.I, t.A, eps, v.dir), v.dir
}

// Combined stacks the field perturbations of every spin on top of the
// anti-copy perturbations of every ordered pair, all pointing down.
type Combined struct {
	binarySystem
}

func NewCombined(m maxent.Model, _ VariantOptions) (*Combined, error) {
	sys, err := newBinarySystem(m)
	if err != nil {
		return nil, err
	}
	return &Combined{binarySystem: sys}, nil
}

func (v *Combined) Name() string                 { return "combined" }
func (v *Combined) Direction() perturb.Direction { return perturb.Down }

func (v *Combined) Targets() []Target {
	return append(spinTargets(v.n), mimicTargets(v.n)...)
}

func (v *Combined) Perturb(t Target, eps float64) ([]float64, perturb.Direction) {
	if t.A < 0 {
		return perturb.Field(v.obs, v.n, t.I, eps, perturb.Down), perturb.Down
	}
	return perturb.Mimic(v.obs, v.n, t.I, t.A, eps, perturb.Down), perturb.Down
}

// PottsState moves one spin toward one state, for every state and spin.
// Targets are ordered by state, then spin.
type PottsState struct {
	pottsSystem
}

func NewPottsState(m maxent.Model, _ VariantOptions) (*PottsState, error) {
	sys, err := newPottsSystem(m)
	if err != nil {
		return nil, err
	}
	return &PottsState{pottsSystem: sys}, nil
}

func (v *PottsState) Name() string                 { return "potts_state" }
func (v *PottsState) Direction() perturb.Direction { return perturb.Up }

func (v *PottsState) Targets() []Target {
	out := make([]Target, 0, v.k*v.n)
	for g := 0; g < v.k; g++ {
		for i := 0; i < v.n; i++ {
			out = append(out, Target{I: i, A: -1, State: g})
		}
	}
	return out
}

func (v *PottsState) Perturb(t Target, eps float64) ([]float64, perturb.Direction) {
	return perturb.PottsState(v.obs, v.n, v.k, t.I, t.State, eps, v.pair), perturb.Up
}

// PottsCoupling makes spin i copy the state of spin a.
type PottsCoupling struct {
	pottsSystem
}

func NewPottsCoupling(m maxent.Model, _ VariantOptions) (*PottsCoupling, error) {
	sys, err := newPottsSystem(m)
	if err != nil {
		return nil, err
	}
	return &PottsCoupling{pottsSystem: sys}, nil
}

func (v *PottsCoupling) Name() string                 { return "potts_coupling" }
func (v *PottsCoupling) Direction() perturb.Direction { return perturb.Up }
func (v *PottsCoupling) Targets() []Target            { return mimicTargets(v.n) }

func (v *PottsCoupling) Perturb(t Target, eps float64) ([]float64, perturb.Direction) {
	return perturb.PottsMimic(v.obs, v.n, v.k, t.I, t.A, eps), perturb.Up
}
