package propagator

// Tableau is the Butcher tableau of an embedded Runge-Kutta pair. Both weight sets share the
// same stage derivatives: B builds the accepted solution and BStar only serves the error estimate.
type Tableau struct {
	Name  string
	Order int         // order of the error estimator, drives the step size exponent
	A     [][]float64 // strictly lower triangular, row i holds the coefficients of stage i+1
	B     []float64
	BStar []float64
	C     []float64
}

// Stages returns the number of derivative evaluations per step.
func (t Tableau) Stages() int {
	return len(t.B)
}

// DormandPrince54 is the Dormand-Prince 5(4) pair.
var DormandPrince54 = Tableau{
	Name:  "Dormand-Prince 5(4)",
	Order: 4,
	A: [][]float64{
		{1.0 / 5.0},
		{3.0 / 40.0, 9.0 / 40.0},
		{44.0 / 45.0, -56.0 / 15.0, 32.0 / 9.0},
		{19372.0 / 6561.0, -25360.0 / 2187.0, 64448.0 / 6561.0, -212.0 / 729.0},
		{9017.0 / 3168.0, -355.0 / 33.0, 46732.0 / 5247.0, 49.0 / 176.0, -5103.0 / 18656.0},
		{35.0 / 384.0, 0, 500.0 / 1113.0, 125.0 / 192.0, -2187.0 / 6784.0, 11.0 / 84.0},
	},
	B:     []float64{35.0 / 384.0, 0, 500.0 / 1113.0, 125.0 / 192.0, -2187.0 / 6784.0, 11.0 / 84.0, 0},
	BStar: []float64{5179.0 / 57600.0, 0, 7571.0 / 16695.0, 393.0 / 640.0, -92097.0 / 339200.0, 187.0 / 2100.0, 1.0 / 40.0},
	C:     []float64{0, 1.0 / 5.0, 3.0 / 10.0, 4.0 / 5.0, 8.0 / 9.0, 1, 1},
}
