package propagator

import "errors"

var (
	// ErrStepSizeTooSmall is returned when the tolerance cannot be met within the retry budget
	// or at the minimum step size.
	ErrStepSizeTooSmall = errors.New("propagator: step size too small to meet tolerance")

	// ErrNumericalInstability is returned when the equations of motion return a NaN or Inf.
	ErrNumericalInstability = errors.New("propagator: non-finite derivative")
)
