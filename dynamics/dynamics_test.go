package dynamics

import (
	"math"
	"testing"
	"time"

	"github.com/guija/nyx/propagator"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var epoch = time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)

// leo returns an inclined, slightly eccentric low Earth orbit state.
func leo() []float64 {
	return []float64{-2436.45, -2436.45, 6891.037, 5.088611, -5.088611, 0}
}

// eomOnly hides the analytic Jacobian of the two body dynamics.
type eomOnly struct {
	tb *TwoBody
}

func (e eomOnly) Dimension() int                        { return e.tb.Dimension() }
func (e eomOnly) Eom(t float64, x []float64) []float64 { return e.tb.Eom(t, x) }

func TestVariationalIdentityAtEpoch(t *testing.T) {
	v, err := NewVariational(NewTwoBody(EarthJ2().Mu), epoch, leo())
	require.NoError(t, err)
	var diff mat.Dense
	diff.Sub(v.STM(), identity(6))
	require.Equal(t, 0.0, mat.Norm(&diff, 2))
	diff.Sub(v.Cumulative(), identity(6))
	require.Equal(t, 0.0, mat.Norm(&diff, 2))
	require.Equal(t, epoch, v.Epoch())
	require.Equal(t, 6+36, len(v.GetState()))

	_, err = NewVariational(NewTwoBody(EarthJ2().Mu), epoch, []float64{1, 2, 3})
	require.Error(t, err)
}

func TestTwoBodyGradient(t *testing.T) {
	x := leo()
	for _, tb := range []*TwoBody{NewTwoBody(EarthJ2().Mu), NewTwoBody(EarthJ2().Mu, EarthJ2())} {
		analytic := tb.Gradient(0, x)
		numeric := FiniteDifference{EOM: tb}.Gradient(0, x)
		for i := 0; i < 6; i++ {
			for j := 0; j < 6; j++ {
				require.InDelta(t, numeric.At(i, j), analytic.At(i, j), 1e-9, "%s A(%d,%d)", tb, i, j)
			}
		}
		// Only the top right and bottom left blocks are populated.
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				require.Equal(t, 0.0, analytic.At(i, j))
				require.Equal(t, 0.0, analytic.At(i+3, j+3))
			}
		}
	}
}

func TestTwoBodyGradientPointMass(t *testing.T) {
	tb := NewTwoBody(EarthJ2().Mu)
	x := []float64{7000, 0, 0, 0, 7.5, 0}
	A := tb.Gradient(0, x)
	r3 := math.Pow(7000, 3)
	require.InDelta(t, 2*tb.Mu/r3, A.At(3, 0), 1e-15)
	require.InDelta(t, -tb.Mu/r3, A.At(4, 1), 1e-15)
	require.InDelta(t, -tb.Mu/r3, A.At(5, 2), 1e-15)
	require.Equal(t, 1.0, A.At(0, 3))
	require.Equal(t, 0.0, A.At(3, 1))
}

func TestLinearizationFallback(t *testing.T) {
	tb := NewTwoBody(EarthJ2().Mu)
	require.Equal(t, tb, LinearizationOf(tb))
	lin := LinearizationOf(eomOnly{tb})
	require.IsType(t, FiniteDifference{}, lin)

	v, err := NewVariational(eomOnly{tb}, epoch, leo())
	require.NoError(t, err)
	expected := tb.Gradient(0, leo())
	A := v.Gradient(0, leo())
	require.True(t, mat.EqualApprox(expected, A, 1e-9))
}

func TestVariationalSTM(t *testing.T) {
	setup, err := propagator.NewSetup(propagator.FixedStepOptions(10))
	require.NoError(t, err)
	tb := NewTwoBody(EarthJ2().Mu, EarthJ2())

	nominal, err := NewVariational(tb, epoch, leo())
	require.NoError(t, err)
	prop := setup.With(nominal)
	require.NoError(t, prop.Propagate(600))
	Φ1 := nominal.Cumulative()
	// The first step STM is the cumulative one.
	require.True(t, mat.EqualApprox(Φ1, nominal.STM(), 1e-12))
	require.NoError(t, prop.Propagate(600))
	require.Equal(t, epoch.Add(20*time.Minute), nominal.Epoch())

	// Φ(t2, t0) = Φ(t2, t1)·Φ(t1, t0)
	var chained mat.Dense
	chained.Mul(nominal.STM(), Φ1)
	require.True(t, mat.EqualApprox(&chained, nominal.Cumulative(), 1e-9))

	// A small initial deviation is mapped by the cumulative STM.
	δ := []float64{1e-3, -2e-3, 1e-3, 1e-6, 0, -1e-6}
	x0 := leo()
	for i := range x0 {
		x0[i] += δ[i]
	}
	perturbed, err := NewVariational(tb, epoch, x0)
	require.NoError(t, err)
	require.NoError(t, setup.With(perturbed).Propagate(1200))

	var mapped mat.VecDense
	mapped.MulVec(nominal.Cumulative(), mat.NewVecDense(6, δ))
	var actual mat.VecDense
	actual.SubVec(perturbed.Vector(), nominal.Vector())
	for i := 0; i < 6; i++ {
		require.InDelta(t, actual.AtVec(i), mapped.AtVec(i), 1e-7, "component %d", i)
	}
}

func TestVariationalSingularSTM(t *testing.T) {
	v, err := NewVariational(NewTwoBody(EarthJ2().Mu), epoch, leo())
	require.NoError(t, err)
	corrupted := make([]float64, 6+36)
	copy(corrupted, leo())
	// Inverting the identity is fine, but the stored STM is now null.
	require.NoError(t, v.SetState(10, corrupted))
	err = v.SetState(20, corrupted)
	require.ErrorIs(t, err, ErrSingularSTM)
	require.Equal(t, 10.0, v.Time(), "failed update must not change the dynamics")
	require.Error(t, v.SetState(30, leo()))
}

func TestSetEstimatedState(t *testing.T) {
	v, err := NewVariational(NewTwoBody(EarthJ2().Mu), epoch, leo())
	require.NoError(t, err)
	require.Error(t, v.SetEstimatedState(mat.NewVecDense(3, nil)))
	corrected := mat.NewVecDense(6, []float64{7000, 0, 0, 0, 7.5, 0})
	require.NoError(t, v.SetEstimatedState(corrected))
	require.True(t, mat.Equal(corrected, v.Vector()))
	require.Equal(t, 7000.0, v.GetState()[0])
	// The STM is untouched.
	require.Equal(t, 1.0, v.GetState()[6])
}
