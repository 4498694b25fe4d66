package nyx

import (
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrStateTransitionMatrixNotUpdated is returned when an update is attempted without a fresh STM.
	ErrStateTransitionMatrixNotUpdated = errors.New("state transition matrix not updated")
	// ErrSensitivityNotUpdated is returned when a measurement update is attempted without a fresh H̃.
	ErrSensitivityNotUpdated = errors.New("sensitivity matrix not updated")
	// ErrGainSingular is returned when the innovation covariance H̃·P̄·H̃ᵀ+R cannot be inverted.
	ErrGainSingular = errors.New("innovation covariance is singular")
	// ErrStateTransitionMatrixSingular is returned when an STM cannot be inverted while smoothing.
	ErrStateTransitionMatrixSingular = errors.New("state transition matrix is singular")
	// ErrMeasurementsUnordered is returned when measurements are not in chronological order.
	ErrMeasurementsUnordered = errors.New("measurements are not in chronological order")
)

// FilterError is returned by the filter and the OD process. It wraps one of the sentinel errors
// of this package, or a propagation error.
type FilterError struct {
	Op    string
	Epoch time.Time
	Err   error
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("%s at %s: %s", e.Op, e.Epoch.UTC().Format(time.RFC3339Nano), e.Err)
}

// Unwrap allows errors.Is and errors.As to inspect the cause.
func (e *FilterError) Unwrap() error {
	return e.Err
}

func filterError(op string, epoch time.Time, err error) error {
	return &FilterError{Op: op, Epoch: epoch, Err: err}
}

// DimensionAgreement defines how two matrices' dimensions should agree.
type DimensionAgreement uint8

const (
	dimErrMsg                    = "dimensions must agree: "
	rows2cols DimensionAgreement = iota + 1
	cols2rows
	cols2cols
	rows2rows
	rowsAndcols
)

// checkMatDims checks the matrix dimensions match provided a DimensionAgreement. Returns an error if not.
func checkMatDims(m1, m2 mat.Matrix, name1, name2 string, method DimensionAgreement) error {
	r1, c1 := m1.Dims()
	r2, c2 := m2.Dims()
	switch method {
	case rows2cols:
		if r1 != c2 {
			return fmt.Errorf("%s%s(%dx...) %s(...x%d)", dimErrMsg, name1, r1, name2, c2)
		}
	case cols2rows:
		if c1 != r2 {
			return fmt.Errorf("%s%s(...x%d) %s(%dx...)", dimErrMsg, name1, c1, name2, r2)
		}
	case cols2cols:
		if c1 != c2 {
			return fmt.Errorf("%s%s(...x%d) %s(...x%d)", dimErrMsg, name1, c1, name2, c2)
		}
	case rows2rows:
		if r1 != r2 {
			return fmt.Errorf("%s%s(%dx...) %s(%dx...)", dimErrMsg, name1, r1, name2, r2)
		}
	case rowsAndcols:
		if c1 != c2 || r1 != r2 {
			return fmt.Errorf("%s%s(%dx%d) %s(%dx%d)", dimErrMsg, name1, r1, c1, name2, r2, c2)
		}
	}
	return nil
}
