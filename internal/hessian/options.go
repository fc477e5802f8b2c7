package hessian

import (
	"fmt"
	"strings"
)

// Mode selects the distribution whose divergence is differentiated.
type Mode int

const (
	// ModeFull uses the probability of every configuration.
	ModeFull Mode = iota
	// ModeMajority uses the distribution of the coarse majority statistic.
	ModeMajority
	// ModeMajorityCovariance computes the majority curvature from class
	// averaged energy changes, for sampled models too large to difference.
	ModeMajorityCovariance
)

func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeMajority:
		return "majority"
	case ModeMajorityCovariance:
		return "covariance"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "full", "":
		return ModeFull, nil
	case "majority", "maj":
		return ModeMajority, nil
	case "covariance", "cov":
		return ModeMajorityCovariance, nil
	}
	return 0, fmt.Errorf("%w: mode %q", ErrUnsupported, s)
}

// Precision selects the arithmetic of the majority scheme.
type Precision int

const (
	PrecisionFloat64 Precision = iota
	PrecisionBig
)

// Flag reports whether the step halving check passed.
type Flag int

const (
	Converged Flag = iota
	NotConverged
)

func (f Flag) String() string {
	if f == Converged {
		return "converged"
	}
	return "not converged"
}

type Options struct {
	Mode      Mode
	Precision Precision
	// Bits is the mantissa size for PrecisionBig.
	Bits uint
	// Eps is the initial finite difference step.
	Eps  float64
	RTol float64
	// PThreshold zeroes configuration probabilities below it in ModeFull.
	PThreshold     float64
	DecreaseFactor float64
	MaxIterations  int
	Workers        int
	// OnProgress is called from worker goroutines after every entry.
	OnProgress func(done, total int)
}

func DefaultOptions() Options {
	return Options{
		Mode:           ModeFull,
		Precision:      PrecisionFloat64,
		Bits:           128,
		Eps:            1e-4,
		RTol:           1e-3,
		PThreshold:     1e-15,
		DecreaseFactor: 10,
		MaxIterations:  8,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Bits == 0 {
		o.Bits = d.Bits
	}
	if o.Eps <= 0 {
		o.Eps = d.Eps
	}
	if o.RTol <= 0 {
		o.RTol = d.RTol
	}
	if o.PThreshold <= 0 {
		o.PThreshold = d.PThreshold
	}
	if o.DecreaseFactor <= 1 {
		o.DecreaseFactor = d.DecreaseFactor
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = d.MaxIterations
	}
	return o
}
