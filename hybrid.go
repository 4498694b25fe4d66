package nyx

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"
)

// NewHybridKF returns a new hybrid Kalman filter, which starts as a classical (linearized) KF and
// may be switched to an extended KF.
// Warning: there is a failsafe preventing any update prior to updating the matrices.
// Usage:
//
//	kf.UpdateSTM(Φ)
//	kf.UpdateHTilde(Htilde)
//	estimate, residual, err := kf.MeasurementUpdate(epoch, realObs, computedObs)
//
// Parameters:
// - init: initial estimate, whose state is a deviation from the reference trajectory
// - noise: Noise, whose measurement matrix is R
func NewHybridKF(init *Estimate, noise Noise) (*HybridKF, error) {
	if init == nil || init.State == nil || init.Covar == nil {
		return nil, fmt.Errorf("initial estimate requires a state and a covariance")
	}
	// Let's check the dimensions of everything here to return an error ASAP.
	if err := checkMatDims(init.State, init.Covar, "x0", "Covar0", rows2cols); err != nil {
		return nil, err
	}
	if noise == nil {
		return nil, fmt.Errorf("noise must be specified")
	}
	return &HybridKF{noise: noise, prevEst: init}, nil
}

// HybridKF defines a hybrid CKF/EKF. Use NewHybridKF to initialize.
type HybridKF struct {
	Φ, Htilde  *mat.Dense
	Γ          *mat.Dense // Process noise mapping, consumed by the next update
	noise      Noise
	prevEst    *Estimate
	stmSet     bool
	htildeSet  bool
	ekfMode    bool
	pntApplied bool // Whether process noise was ever added
	step       int
}

func (kf *HybridKF) String() string {
	return fmt.Sprintf("HybridKF [k=%d, ekf=%t]\n%s", kf.step, kf.ekfMode, kf.noise)
}

// SetNoise updates the Noise.
func (kf *HybridKF) SetNoise(n Noise) {
	kf.noise = n
}

// GetNoise returns the Noise.
func (kf *HybridKF) GetNoise() Noise {
	return kf.noise
}

// Previous returns the latest estimate.
func (kf *HybridKF) Previous() *Estimate {
	return kf.prevEst
}

// EKFEnabled returns whether the KF is in EKF mode.
func (kf *HybridKF) EKFEnabled() bool {
	return kf.ekfMode
}

// EnableEKF switches this to an EKF.
func (kf *HybridKF) EnableEKF() {
	kf.ekfMode = true
}

// DisableEKF switches this back to a CKF.
func (kf *HybridKF) DisableEKF() {
	kf.ekfMode = false
}

// ProcessNoiseApplied returns whether any update used process noise.
func (kf *HybridKF) ProcessNoiseApplied() bool {
	return kf.pntApplied
}

// UpdateSTM sets the STM from the previous estimate to the next update.
func (kf *HybridKF) UpdateSTM(Φ *mat.Dense) error {
	if err := checkMatDims(Φ, kf.prevEst.Covar, "Φ", "P", rowsAndcols); err != nil {
		return err
	}
	kf.Φ = Φ
	kf.stmSet = true
	return nil
}

// UpdateHTilde sets the sensitivity matrix of the next measurement.
func (kf *HybridKF) UpdateHTilde(Htilde *mat.Dense) error {
	if err := checkMatDims(Htilde, kf.prevEst.Covar, "H̃", "P", cols2cols); err != nil {
		return err
	}
	kf.Htilde = Htilde
	kf.htildeSet = true
	return nil
}

// Prepare sets both the STM and the sensitivity matrix, ready for the next measurement update.
func (kf *HybridKF) Prepare(Φ, Htilde *mat.Dense) error {
	if err := kf.UpdateSTM(Φ); err != nil {
		return err
	}
	return kf.UpdateHTilde(Htilde)
}

// PrepareProcessNoise sets the Γ matrix used for state noise compensation in the next update.
// Γ maps the process noise Q into the state space.
func (kf *HybridKF) PrepareProcessNoise(Γ *mat.Dense) error {
	if err := checkMatDims(Γ, kf.prevEst.Covar, "Γ", "P", rows2rows); err != nil {
		return err
	}
	if err := checkMatDims(Γ, kf.noise.ProcessMatrix(), "Γ", "Q", cols2rows); err != nil {
		return err
	}
	kf.Γ = Γ
	return nil
}

// predict returns x̄ and P̄.
func (kf *HybridKF) predict() (*mat.VecDense, *mat.Dense) {
	n := kf.prevEst.Dim()
	xBar := mat.NewVecDense(n, nil)
	if !kf.ekfMode {
		// In EKF mode the previous deviation was already folded into the reference trajectory.
		xBar.MulVec(kf.Φ, kf.prevEst.State)
	}
	var PBar, ΦP mat.Dense
	ΦP.Mul(kf.Φ, kf.prevEst.Covar)
	PBar.Mul(&ΦP, kf.Φ.T())
	if kf.Γ != nil {
		var Q, ΓQ mat.Dense
		ΓQ.Mul(kf.Γ, kf.noise.ProcessMatrix())
		Q.Mul(&ΓQ, kf.Γ.T())
		PBar.Add(&PBar, &Q)
		kf.pntApplied = true
	}
	return xBar, &PBar
}

// TimeUpdate computes a predicted estimate at the provided epoch.
// It consumes the STM but not the sensitivity matrix.
func (kf *HybridKF) TimeUpdate(epoch time.Time, nominal *mat.VecDense) (*Estimate, error) {
	if !kf.stmSet {
		return nil, filterError("time update", epoch, ErrStateTransitionMatrixNotUpdated)
	}
	xBar, PBar := kf.predict()
	PBarSym, err := AsSymDense(PBar)
	if err != nil {
		return nil, err
	}
	est := &Estimate{Epoch: epoch, Nominal: nominal, State: xBar, Covar: PBarSym, STM: mat.DenseCopyOf(kf.Φ), Predicted: true}
	kf.prevEst = est
	kf.stmSet = false
	kf.Γ = nil
	kf.step++
	return est, nil
}

// MeasurementUpdate computes the estimate and the residuals of the provided observations.
// Will return an error if either the STM or H̃ was not updated since the previous update.
func (kf *HybridKF) MeasurementUpdate(epoch time.Time, realObs, computedObs *mat.VecDense) (*Estimate, *Residual, error) {
	if !kf.stmSet {
		return nil, nil, filterError("measurement update", epoch, ErrStateTransitionMatrixNotUpdated)
	}
	if !kf.htildeSet {
		return nil, nil, filterError("measurement update", epoch, ErrSensitivityNotUpdated)
	}
	if err := checkMatDims(realObs, computedObs, "real observation", "computed observation", rowsAndcols); err != nil {
		return nil, nil, err
	}
	if err := checkMatDims(kf.Htilde, realObs, "H̃", "real observation", rows2rows); err != nil {
		return nil, nil, err
	}
	R := kf.noise.MeasurementMatrix()
	if err := checkMatDims(R, realObs, "R", "real observation", rows2rows); err != nil {
		return nil, nil, err
	}

	// Prefit residual
	var y mat.VecDense
	y.SubVec(realObs, computedObs)

	// Prediction step.
	xBar, PBar := kf.predict()

	// Kalman gain
	var PHt, HPHt, SInv, Kkp1 mat.Dense
	PHt.Mul(PBar, kf.Htilde.T())
	HPHt.Mul(kf.Htilde, &PHt)
	HPHt.Add(&HPHt, R)
	if ierr := SInv.Inverse(&HPHt); ierr != nil {
		return nil, nil, filterError("measurement update", epoch, fmt.Errorf("%w (k=%d): %v", ErrGainSingular, kf.step, ierr))
	}
	Kkp1.Mul(&PHt, &SInv)

	// Measurement update
	var innov, Hx, xHat mat.VecDense
	Hx.MulVec(kf.Htilde, xBar)
	innov.SubVec(&y, &Hx)
	xHat.MulVec(&Kkp1, &innov)
	xHat.AddVec(xBar, &xHat)

	// Joseph form
	var P, Ptmp1, IKH, KR, KRKt mat.Dense
	IKH.Mul(&Kkp1, kf.Htilde)
	n, _ := IKH.Dims()
	IKH.Sub(Identity(n), &IKH)
	Ptmp1.Mul(&IKH, PBar)
	P.Mul(&Ptmp1, IKH.T())
	KR.Mul(&Kkp1, R)
	KRKt.Mul(&KR, Kkp1.T())
	P.Add(&P, &KRKt)
	PSym, err := AsSymDense(&P)
	if err != nil {
		return nil, nil, err
	}

	// Postfit residual
	var postfit mat.VecDense
	Hx.MulVec(kf.Htilde, &xHat)
	postfit.SubVec(&y, &Hx)

	est := &Estimate{Epoch: epoch, State: &xHat, Covar: PSym, STM: mat.DenseCopyOf(kf.Φ)}
	res := &Residual{Epoch: epoch, Prefit: &y, Postfit: &postfit}
	kf.prevEst = est
	kf.stmSet = false
	kf.htildeSet = false
	kf.Γ = nil
	kf.step++
	return est, res, nil
}
