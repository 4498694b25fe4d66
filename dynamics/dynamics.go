package dynamics

import (
	"errors"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// ErrSingularSTM is returned when the previously stored STM cannot be inverted, which means the
// internal state of the dynamics is corrupted.
var ErrSingularSTM = errors.New("dynamics: previous STM is not invertible")

// EOM defines the equations of motion of a state of fixed dimension.
type EOM interface {
	Dimension() int
	Eom(t float64, x []float64) []float64
}

// Linearization provides the Jacobian of the equations of motion, i.e. the A matrix of the
// variational equations.
type Linearization interface {
	Gradient(t float64, x []float64) *mat.Dense
}

// FiniteDifference computes the gradient of any EOM with central finite differences.
type FiniteDifference struct {
	EOM
	Step float64 // zero uses the default step of the central formula
}

// Gradient implements the Linearization interface.
func (f FiniteDifference) Gradient(t float64, x []float64) *mat.Dense {
	n := f.Dimension()
	grad := mat.NewDense(n, n, nil)
	fd.Jacobian(grad, func(y, xi []float64) {
		copy(y, f.Eom(t, xi))
	}, x, &fd.JacobianSettings{Formula: fd.Central, Step: f.Step})
	return grad
}

// LinearizationOf returns the analytic linearization of eom if it has one, and a finite
// difference one otherwise.
func LinearizationOf(eom EOM) Linearization {
	if lin, ok := eom.(Linearization); ok {
		return lin
	}
	return FiniteDifference{EOM: eom}
}
