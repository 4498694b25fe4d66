package nyx

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var testEpoch = time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)

func TestImplementsKalmanFilter(t *testing.T) {
	implements := func(KalmanFilter) {}
	implements(new(HybridKF))
}

func TestZeroEstimate(t *testing.T) {
	empty := ZeroEstimate(6, testEpoch)
	if !empty.Predicted {
		t.Fatal("expected predicted to be true")
	}
	if mat.Norm(empty.State, 2) != 0 {
		t.Fatal("expected state norm to be nil")
	}
	if mat.Norm(empty.Covar, 2) != 0 {
		t.Fatal("expected covar norm to be nil")
	}
	if mat.Norm(empty.STM, 2) != 0 {
		t.Fatal("expected STM norm to be nil")
	}
	if !empty.IsWithinNσ(3) {
		t.Fatal("a zero estimate is within its null bounds")
	}
}

func TestHybridFilterErrors(t *testing.T) {
	noise, err := NewNoiseless(mat.NewSymDense(3, nil), mat.NewSymDense(2, nil))
	require.NoError(t, err)
	ckf, err := NewHybridKF(ZeroEstimate(6, testEpoch), noise)
	require.NoError(t, err)
	realObs := mat.NewVecDense(2, nil)
	computedObs := mat.NewVecDense(2, nil)

	_, err = ckf.TimeUpdate(testEpoch, mat.NewVecDense(6, nil))
	require.ErrorIs(t, err, ErrStateTransitionMatrixNotUpdated)
	_, _, err = ckf.MeasurementUpdate(testEpoch, realObs, computedObs)
	require.ErrorIs(t, err, ErrStateTransitionMatrixNotUpdated)

	require.NoError(t, ckf.UpdateSTM(mat.NewDense(6, 6, nil)))
	_, _, err = ckf.MeasurementUpdate(testEpoch, realObs, computedObs)
	require.ErrorIs(t, err, ErrSensitivityNotUpdated)

	require.NoError(t, ckf.UpdateHTilde(mat.NewDense(2, 6, nil)))
	_, _, err = ckf.MeasurementUpdate(testEpoch, realObs, computedObs)
	require.ErrorIs(t, err, ErrGainSingular)
	var ferr *FilterError
	require.True(t, errors.As(err, &ferr))
	require.Equal(t, testEpoch, ferr.Epoch)

	// Bad dimensions are caught before any update.
	require.Error(t, ckf.UpdateSTM(mat.NewDense(3, 3, nil)))
	require.Error(t, ckf.UpdateHTilde(mat.NewDense(2, 3, nil)))
}

func newTestKF(t *testing.T) *HybridKF {
	init := &Estimate{
		Epoch: testEpoch,
		State: mat.NewVecDense(2, nil),
		Covar: mat.NewSymDense(2, []float64{4, 0, 0, 1}),
		STM:   DenseIdentity(2),
	}
	noise, err := NewNoiseless(mat.NewSymDense(1, []float64{0.25}), mat.NewSymDense(1, []float64{1}))
	require.NoError(t, err)
	kf, err := NewHybridKF(init, noise)
	require.NoError(t, err)
	return kf
}

func TestHybridMeasurementUpdate(t *testing.T) {
	kf := newTestKF(t)
	H := mat.NewDense(1, 2, []float64{1, 0})
	require.NoError(t, kf.Prepare(DenseIdentity(2), H))
	est, res, err := kf.MeasurementUpdate(testEpoch, mat.NewVecDense(1, []float64{1}), mat.NewVecDense(1, nil))
	require.NoError(t, err)
	require.False(t, est.Predicted)
	// K = [4/5 0]
	require.InDelta(t, 0.8, est.State.AtVec(0), 1e-15)
	require.Equal(t, 0.0, est.State.AtVec(1))
	require.InDelta(t, 0.8, est.Covar.At(0, 0), 1e-15)
	require.InDelta(t, 1, est.Covar.At(1, 1), 1e-15)
	require.InDelta(t, 1, res.Prefit.AtVec(0), 1e-15)
	require.InDelta(t, 0.2, res.Postfit.AtVec(0), 1e-15)
	require.Same(t, est, kf.Previous())

	// Both matrices were consumed.
	_, _, err = kf.MeasurementUpdate(testEpoch, mat.NewVecDense(1, []float64{1}), mat.NewVecDense(1, nil))
	require.ErrorIs(t, err, ErrStateTransitionMatrixNotUpdated)
	require.NoError(t, kf.UpdateSTM(DenseIdentity(2)))
	_, _, err = kf.MeasurementUpdate(testEpoch, mat.NewVecDense(1, []float64{1}), mat.NewVecDense(1, nil))
	require.ErrorIs(t, err, ErrSensitivityNotUpdated)

	// Mismatched observations.
	require.NoError(t, kf.UpdateHTilde(H))
	_, _, err = kf.MeasurementUpdate(testEpoch, mat.NewVecDense(2, nil), mat.NewVecDense(1, nil))
	require.Error(t, err)
}

func TestHybridEKFMode(t *testing.T) {
	H := mat.NewDense(1, 2, []float64{1, 0})
	zero := mat.NewVecDense(1, nil)
	for _, ekf := range []bool{false, true} {
		kf := newTestKF(t)
		require.NoError(t, kf.Prepare(DenseIdentity(2), H))
		_, _, err := kf.MeasurementUpdate(testEpoch, mat.NewVecDense(1, []float64{1}), zero)
		require.NoError(t, err)
		if ekf {
			kf.EnableEKF()
		}
		require.Equal(t, ekf, kf.EKFEnabled())
		require.NoError(t, kf.Prepare(mat.NewDense(2, 2, []float64{1, 1, 0, 1}), H))
		est, _, err := kf.MeasurementUpdate(testEpoch.Add(time.Second), zero, zero)
		require.NoError(t, err)
		if ekf {
			// The previous deviation was folded in the reference, so nothing changes.
			require.Equal(t, 0.0, mat.Norm(est.State, 2))
		} else {
			require.NotEqual(t, 0.0, mat.Norm(est.State, 2))
		}
	}
	kf := newTestKF(t)
	kf.EnableEKF()
	kf.DisableEKF()
	require.False(t, kf.EKFEnabled())
}

func TestHybridTimeUpdate(t *testing.T) {
	kf := newTestKF(t)
	Φ := mat.NewDense(2, 2, []float64{1, 2, 0, 1})
	require.NoError(t, kf.UpdateSTM(Φ))
	require.NoError(t, kf.PrepareProcessNoise(mat.NewDense(2, 1, []float64{0.5, 1})))
	nominal := mat.NewVecDense(2, []float64{10, 1})
	est, err := kf.TimeUpdate(testEpoch.Add(2*time.Second), nominal)
	require.NoError(t, err)
	require.True(t, est.Predicted)
	require.Same(t, nominal, est.Nominal)
	// ΦPΦᵀ + ΓQΓᵀ
	require.InDelta(t, 4+4+0.25*0.25, est.Covar.At(0, 0), 1e-15)
	require.InDelta(t, 2+0.25*0.5, est.Covar.At(0, 1), 1e-15)
	require.InDelta(t, 1+0.25, est.Covar.At(1, 1), 1e-15)
	require.True(t, kf.ProcessNoiseApplied())
	require.True(t, mat.Equal(Φ, est.STM))

	_, err = kf.TimeUpdate(testEpoch, nominal)
	require.ErrorIs(t, err, ErrStateTransitionMatrixNotUpdated)
	// Γ was consumed too.
	require.NoError(t, kf.UpdateSTM(DenseIdentity(2)))
	next, err := kf.TimeUpdate(testEpoch, nominal)
	require.NoError(t, err)
	require.True(t, mat.EqualApprox(est.Covar, next.Covar, 1e-15))
}

func TestNewHybridKFErrors(t *testing.T) {
	noise, _ := NewNoiseless(mat.NewSymDense(1, nil), mat.NewSymDense(1, nil))
	if _, err := NewHybridKF(nil, noise); err == nil {
		t.Fatal("nil estimate should fail")
	}
	bad := &Estimate{State: mat.NewVecDense(3, nil), Covar: mat.NewSymDense(2, nil)}
	if _, err := NewHybridKF(bad, noise); err == nil {
		t.Fatal("mismatched estimate should fail")
	}
	if _, err := NewHybridKF(ZeroEstimate(2, testEpoch), nil); err == nil {
		t.Fatal("nil noise should fail")
	}
}

func TestHybridProcessNoiseDims(t *testing.T) {
	kf := newTestKF(t)
	// Γ must have as many rows as P and as many columns as Q.
	require.Error(t, kf.PrepareProcessNoise(mat.NewDense(3, 1, nil)))
	require.Error(t, kf.PrepareProcessNoise(mat.NewDense(2, 2, nil)))
	require.False(t, kf.ProcessNoiseApplied())

	// Nothing was kept, so the prediction is ΦPΦᵀ only.
	require.NoError(t, kf.UpdateSTM(DenseIdentity(2)))
	est, err := kf.TimeUpdate(testEpoch, mat.NewVecDense(2, nil))
	require.NoError(t, err)
	require.Equal(t, 4.0, est.Covar.At(0, 0))
	require.False(t, kf.ProcessNoiseApplied())
}
