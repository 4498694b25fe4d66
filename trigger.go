package nyx

import "fmt"

// EKFTrigger decides when a hybrid KF should switch from a CKF to an EKF. It is queried once per
// accepted measurement, with the estimate of that measurement, and only while in CKF mode.
type EKFTrigger interface {
	EnableEKF(est *Estimate) bool
}

// CKFTrigger never switches to an EKF.
type CKFTrigger struct{}

// EnableEKF implements the EKFTrigger interface.
func (CKFTrigger) EnableEKF(*Estimate) bool {
	return false
}

// NumMsrEKFTrigger switches to an EKF once a given number of measurements were processed.
type NumMsrEKFTrigger struct {
	NumMsrs int
	cur     int
}

// NewNumMsrEKFTrigger returns a trigger which fires from the numMsrs-th measurement onward.
func NewNumMsrEKFTrigger(numMsrs int) *NumMsrEKFTrigger {
	return &NumMsrEKFTrigger{NumMsrs: numMsrs}
}

// EnableEKF implements the EKFTrigger interface.
func (t *NumMsrEKFTrigger) EnableEKF(*Estimate) bool {
	t.cur++
	return t.cur >= t.NumMsrs
}

func (t *NumMsrEKFTrigger) String() string {
	return fmt.Sprintf("NumMsrEKFTrigger [%d/%d]", t.cur, t.NumMsrs)
}

// TriggerFunc is an adapter to use a plain function as an EKFTrigger.
type TriggerFunc func(est *Estimate) bool

// EnableEKF implements the EKFTrigger interface.
func (f TriggerFunc) EnableEKF(est *Estimate) bool {
	return f(est)
}

// CovarTraceTrigger switches to an EKF once the trace of the position covariance (i.e. the first
// three diagonal components) drops below a threshold, in km².
type CovarTraceTrigger struct {
	Threshold float64
}

// EnableEKF implements the EKFTrigger interface.
func (t CovarTraceTrigger) EnableEKF(est *Estimate) bool {
	n := est.Dim()
	if n > 3 {
		n = 3
	}
	var trace float64
	for i := 0; i < n; i++ {
		trace += est.Covar.At(i, i)
	}
	return trace < t.Threshold
}
