package nyx

import (
	"time"

	"gonum.org/v1/gonum/mat"
)

// Measurement is either a real observation, or one computed by a Device from the reference
// trajectory.
type Measurement struct {
	Epoch       time.Time
	Observation *mat.VecDense
	Visible     bool
	HTilde      *mat.Dense // Sensitivity of the observation to the state
}

// MeasurementInput is what a Device needs to compute an observation.
type MeasurementInput struct {
	Epoch time.Time
	State *mat.VecDense
}

// Device computes observations of a state.
type Device interface {
	Measure(in MeasurementInput) Measurement
}

// Estimable is implemented by the propagated dynamics of an OD process.
type Estimable interface {
	Epoch() time.Time
	Vector() *mat.VecDense
	STM() *mat.Dense // STM of the latest propagation only
	SetEstimatedState(x *mat.VecDense) error
}
