package fim

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch indicates a moment vector, dJ matrix or snapshot
	// whose shape does not fit the model.
	ErrDimensionMismatch = errors.New("fim: dimension mismatch between model and data")

	// ErrUnknownVariant indicates a perturbation family that is not registered.
	ErrUnknownVariant = errors.New("fim: unknown perturbation variant")

	// ErrWrongKind indicates a variant applied to a model family it does not
	// support, such as a Potts variant on an Ising model.
	ErrWrongKind = errors.New("fim: variant does not apply to this model kind")

	// ErrNoResponses indicates curvature was requested before dJ was computed.
	ErrNoResponses = errors.New("fim: linear responses not computed")
)

// SolveError wraps a failure of one row of the linear response matrix.
type SolveError struct {
	Variant string
	Target  Target
	Eps     float64
	Wrapped error
}

func (e *SolveError) Error() string {
	return fmt.Sprintf("fim: %s %s at eps=%g: %v", e.Variant, e.Target, e.Eps, e.Wrapped)
}

func (e *SolveError) Unwrap() error {
	return e.Wrapped
}
