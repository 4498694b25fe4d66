package dynamics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// AccelModel is an acceleration added on top of the two body motion, along with its partials
// with respect to the position.
type AccelModel interface {
	Acceleration(t float64, x []float64) [3]float64
	Partials(t float64, x []float64) [3][3]float64
}

// TwoBody exposes the equations of motion for a two body propagation of a [r v] state,
// optionally perturbed by acceleration models.
type TwoBody struct {
	Mu     float64 // gravitational parameter, km^3/s^2
	Accels []AccelModel
}

// NewTwoBody returns new two body dynamics around a body of gravitational parameter μ.
func NewTwoBody(μ float64, accels ...AccelModel) *TwoBody {
	return &TwoBody{μ, accels}
}

func (tb *TwoBody) String() string {
	return fmt.Sprintf("TwoBody [μ=%f, %d perturbations]", tb.Mu, len(tb.Accels))
}

// Dimension implements the EOM interface.
func (tb *TwoBody) Dimension() int {
	return 6
}

// Eom implements the EOM interface.
func (tb *TwoBody) Eom(t float64, x []float64) []float64 {
	r := math.Sqrt(x[0]*x[0] + x[1]*x[1] + x[2]*x[2])
	bodyAcc := -tb.Mu / math.Pow(r, 3)
	xDot := []float64{x[3], x[4], x[5], bodyAcc * x[0], bodyAcc * x[1], bodyAcc * x[2]}
	for _, accel := range tb.Accels {
		a := accel.Acceleration(t, x)
		for i := 0; i < 3; i++ {
			xDot[i+3] += a[i]
		}
	}
	return xDot
}

// Gradient implements the Linearization interface.
func (tb *TwoBody) Gradient(t float64, x []float64) *mat.Dense {
	A := mat.NewDense(6, 6, nil)
	// Top right is Identity 3x3
	A.Set(0, 3, 1)
	A.Set(1, 4, 1)
	A.Set(2, 5, 1)
	// Bottom left is where the magic happens.
	r2 := x[0]*x[0] + x[1]*x[1] + x[2]*x[2]
	r232 := math.Pow(r2, 3/2.)
	r252 := math.Pow(r2, 5/2.)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			dAiDj := 3 * tb.Mu * x[i] * x[j] / r252
			if i == j {
				dAiDj -= tb.Mu / r232
			}
			A.Set(i+3, j, dAiDj)
		}
	}
	for _, accel := range tb.Accels {
		partials := accel.Partials(t, x)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				A.Set(i+3, j, A.At(i+3, j)+partials[i][j])
			}
		}
	}
	return A
}

// J2 is the acceleration from the oblateness of the central body.
type J2 struct {
	Mu     float64 // km^3/s^2
	J2     float64
	Radius float64 // equatorial radius, km
}

// EarthJ2 returns the J2 model of the Earth.
func EarthJ2() J2 {
	return J2{Mu: 398600.4415, J2: 1.0826269e-3, Radius: 6378.1363}
}

// Acceleration implements the AccelModel interface.
func (j J2) Acceleration(t float64, x []float64) [3]float64 {
	r2 := x[0]*x[0] + x[1]*x[1] + x[2]*x[2]
	z2 := x[2] * x[2]
	r5 := math.Pow(r2, 5/2.)
	fact := -3 / 2. * j.J2 * j.Radius * j.Radius * j.Mu / r5
	zr := 5 * z2 / r2
	return [3]float64{fact * x[0] * (1 - zr), fact * x[1] * (1 - zr), fact * x[2] * (3 - zr)}
}

// Partials implements the AccelModel interface.
func (j J2) Partials(t float64, x []float64) [3][3]float64 {
	X, Y, Z := x[0], x[1], x[2]
	x2, y2, z2 := X*X, Y*Y, Z*Z
	z3 := z2 * Z
	z4 := z2 * z2
	r2 := x2 + y2 + z2
	r252 := math.Pow(r2, 5/2.)
	r272 := math.Pow(r2, 7/2.)
	r292 := math.Pow(r2, 9/2.)
	// Adding those fractions to avoid forgetting the trailing period which makes them floats.
	f32 := 3 / 2.
	f152 := 15 / 2.
	fact := j.J2 * j.Radius * j.Radius * j.Mu

	var p [3][3]float64
	p[0][0] = -f32 * fact * (35*x2*z2/r292 - 5*x2/r272 - 5*z2/r272 + 1/r252)
	p[1][0] = -f152 * fact * (7*X*Y*z2/r292 - X*Y/r272)
	p[2][0] = -f152 * fact * (7*X*z3/r292 - 3*X*Z/r272)

	p[0][1] = p[1][0]
	p[1][1] = -f32 * fact * (35*y2*z2/r292 - 5*y2/r272 - 5*z2/r272 + 1/r252)
	p[2][1] = -f152 * fact * (7*Y*z3/r292 - 3*Y*Z/r272)

	p[0][2] = p[2][0]
	p[1][2] = p[2][1]
	p[2][2] = -f32 * fact * (35*z4/r292 - 30*z2/r272 + 3/r252)
	return p
}
