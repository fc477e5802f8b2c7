package hessian

import (
	"errors"
	"fmt"
)

var (
	// ErrNonFinite indicates a Hessian entry that evaluated to NaN or Inf.
	ErrNonFinite = errors.New("hessian: non-finite entry")

	// ErrShape indicates a dJ matrix whose columns do not match the model.
	ErrShape = errors.New("hessian: dJ columns do not match model parameters")

	// ErrUnsupported indicates an option combination no scheme implements.
	ErrUnsupported = errors.New("hessian: unsupported options")
)

// EntryError locates a failed Hessian entry.
type EntryError struct {
	I, J    int
	Eps     float64
	Value   float64
	Wrapped error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("hessian: entry (%d,%d) = %g at eps=%g: %v", e.I, e.J, e.Value, e.Eps, e.Wrapped)
}

func (e *EntryError) Unwrap() error {
	return e.Wrapped
}
