package nyx

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Estimate is returned from each filter update.
type Estimate struct {
	Epoch     time.Time
	Nominal   *mat.VecDense // Reference state, nil if unknown
	State     *mat.VecDense // Deviation from the nominal state
	Covar     *mat.SymDense
	STM       *mat.Dense // STM used to reach this estimate from the previous one
	Predicted bool       // true if no measurement was incorporated
}

// ZeroEstimate returns a predicted estimate whose state, covariance and STM are all zero.
func ZeroEstimate(n int, epoch time.Time) *Estimate {
	return &Estimate{
		Epoch:     epoch,
		State:     mat.NewVecDense(n, nil),
		Covar:     mat.NewSymDense(n, nil),
		STM:       mat.NewDense(n, n, nil),
		Predicted: true,
	}
}

// Dim returns the size of the estimated state.
func (e *Estimate) Dim() int {
	return e.State.Len()
}

// IsWithinNσ returns whether the estimation is within the N*σ bounds.
func (e *Estimate) IsWithinNσ(N float64) bool {
	for i := 0; i < e.State.Len(); i++ {
		nσ := N * math.Sqrt(e.Covar.At(i, i))
		if e.State.AtVec(i) > nσ || e.State.AtVec(i) < -nσ {
			return false
		}
	}
	return true
}

// Full returns the nominal state corrected by the deviation, or the deviation alone if the
// nominal state is unknown.
func (e *Estimate) Full() *mat.VecDense {
	full := mat.VecDenseCopyOf(e.State)
	if e.Nominal != nil {
		full.AddVec(full, e.Nominal)
	}
	return full
}

func (e *Estimate) String() string {
	state := mat.Formatted(e.State.T(), mat.Prefix("  "))
	covar := mat.Formatted(e.Covar, mat.Prefix("  "))
	return fmt.Sprintf("{\nt=%s predicted=%t\ns=%v\nP=%v\n}", e.Epoch.UTC(), e.Predicted, state, covar)
}

// Residual stores the prefit and postfit residuals of a measurement update.
type Residual struct {
	Epoch   time.Time
	Prefit  *mat.VecDense // real - computed
	Postfit *mat.VecDense // prefit - H̃·x̂
}

func (r *Residual) String() string {
	return fmt.Sprintf("{t=%s prefit=%v postfit=%v}", r.Epoch.UTC(), mat.Formatted(r.Prefit.T()), mat.Formatted(r.Postfit.T()))
}
