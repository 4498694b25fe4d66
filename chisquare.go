package nyx

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// NEES returns the normalized estimation error squared εᵀP⁻¹ε of an estimate, where ε is the
// difference between the estimated deviation and the true deviation from the nominal state.
// For a consistent filter, its mean over many estimates is the size of the state.
func NEES(est *Estimate, truth *mat.VecDense) (float64, error) {
	if err := checkMatDims(est.State, truth, "estimate", "truth", rowsAndcols); err != nil {
		return 0, err
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(est.Covar); !ok {
		return 0, errors.New("covariance is not positive definite")
	}
	var ε, PInvε mat.VecDense
	ε.SubVec(truth, est.State)
	if err := chol.SolveVecTo(&PInvε, &ε); err != nil {
		return 0, err
	}
	return mat.Dot(&ε, &PInvε), nil
}

// ResidualStats returns the mean and standard deviation of each component of the residuals,
// either prefit or postfit. Both are nil without residuals.
func ResidualStats(residuals []*Residual, postfit bool) (mean, std []float64) {
	samples := residualSamples(residuals, postfit)
	if samples == nil {
		return nil, nil
	}
	mean = make([]float64, len(samples))
	std = make([]float64, len(samples))
	for i, s := range samples {
		mean[i], std[i] = stat.MeanStdDev(s, nil)
	}
	return
}

// ResidualRMS returns the root mean square of each component of the residuals, either prefit
// or postfit. It is nil without residuals.
func ResidualRMS(residuals []*Residual, postfit bool) []float64 {
	samples := residualSamples(residuals, postfit)
	if samples == nil {
		return nil
	}
	rms := make([]float64, len(samples))
	for i, s := range samples {
		for j := range s {
			s[j] *= s[j]
		}
		rms[i] = math.Sqrt(stat.Mean(s, nil))
	}
	return rms
}

// residualSamples returns the residuals per component.
func residualSamples(residuals []*Residual, postfit bool) [][]float64 {
	if len(residuals) == 0 {
		return nil
	}
	samples := make([][]float64, residuals[0].Prefit.Len())
	for i := range samples {
		samples[i] = make([]float64, len(residuals))
	}
	for k, res := range residuals {
		r := res.Prefit
		if postfit {
			r = res.Postfit
		}
		for i := range samples {
			samples[i][k] = r.AtVec(i)
		}
	}
	return samples
}
