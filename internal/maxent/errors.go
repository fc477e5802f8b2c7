package maxent

import "errors"

var (
	// ErrTooLarge indicates a state space that cannot be enumerated exactly.
	ErrTooLarge = errors.New("maxent: state space too large to enumerate")

	// ErrShape indicates parameters that do not match the model layout.
	ErrShape = errors.New("maxent: parameter length does not match model")

	// ErrGauge indicates nonzero Potts fields for the reference state.
	ErrGauge = errors.New("maxent: potts fields of state 0 must be zero")

	// ErrUnknownKind indicates an unsupported model family.
	ErrUnknownKind = errors.New("maxent: unknown model kind")

	// ErrNotConverged indicates the moment-matching fit hit its iteration cap.
	ErrNotConverged = errors.New("maxent: fit did not converge")
)
