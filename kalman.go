// Package nyx is a sequential orbit determination library: a hybrid (classical or extended)
// Kalman filter driven by a propagated reference trajectory and its state transition matrix,
// an orchestrating OD process, and a fixed-interval smoother.
package nyx

import (
	"time"

	"gonum.org/v1/gonum/mat"
)

// KalmanFilter defines a Kalman filter linearized about a reference trajectory.
// Warning: the STM and the sensitivity matrix must both be supplied before each update, and are
// consumed by it.
type KalmanFilter interface {
	UpdateSTM(Φ *mat.Dense) error
	UpdateHTilde(Htilde *mat.Dense) error
	TimeUpdate(epoch time.Time, nominal *mat.VecDense) (*Estimate, error)
	MeasurementUpdate(epoch time.Time, realObs, computedObs *mat.VecDense) (*Estimate, *Residual, error)
	EKFEnabled() bool
	EnableEKF()
	DisableEKF()
	PrepareProcessNoise(Γ *mat.Dense) error
	ProcessNoiseApplied() bool
	SetNoise(n Noise)
	Previous() *Estimate
	String() string
}
