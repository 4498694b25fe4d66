package propagator

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// relThreshold is the state change above which errors are computed relative to that change.
const relThreshold = 0.1

// ErrorControl turns the embedded error estimate of a step into a scalar error which is then
// compared to the propagator tolerance.
type ErrorControl interface {
	Estimate(errEst, candidate, current []float64) float64
}

// LargestError returns the largest component-wise error, relative to the component change when
// that change is significant.
type LargestError struct{}

// Estimate implements the ErrorControl interface.
func (LargestError) Estimate(errEst, candidate, current []float64) float64 {
	maxErr := 0.0
	for i, e := range errEst {
		delta := math.Abs(candidate[i] - current[i])
		err := math.Abs(e)
		if delta > relThreshold {
			err /= delta
		}
		if err > maxErr {
			maxErr = err
		}
	}
	return maxErr
}

// RSSStep returns the root sum square of the error, relative to the magnitude of the step.
type RSSStep struct{}

// Estimate implements the ErrorControl interface.
func (RSSStep) Estimate(errEst, candidate, current []float64) float64 {
	magErr := floats.Norm(errEst, 2)
	magDelta := floats.Distance(candidate, current, 2)
	if magDelta > relThreshold {
		return magErr / magDelta
	}
	return magErr
}
