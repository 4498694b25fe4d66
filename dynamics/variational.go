package dynamics

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Variational augments the state of some equations of motion with its state transition matrix,
// so that both are integrated together via dΦ/dt = A(t, x)·Φ.
//
// The STM integrated in the augmented state is cumulative, i.e. Φ(t, t0). Each call to SetState
// also computes the STM covering only the time elapsed since the previous call.
type Variational struct {
	eom        EOM
	lin        Linearization
	n          int
	epoch      time.Time // reference epoch, t=0
	t          float64   // seconds since the reference epoch
	x          []float64
	cumulative *mat.Dense // Φ(t, t0)
	stm        *mat.Dense // Φ(t, t_prev)
}

// NewVariational returns new variational dynamics of eom starting at x0 at the provided epoch.
// If eom does not provide its own Linearization, finite differences are used.
func NewVariational(eom EOM, epoch time.Time, x0 []float64) (*Variational, error) {
	n := eom.Dimension()
	if len(x0) != n {
		return nil, fmt.Errorf("initial state has %d components, expected %d", len(x0), n)
	}
	return &Variational{
		eom:        eom,
		lin:        LinearizationOf(eom),
		n:          n,
		epoch:      epoch,
		x:          append([]float64(nil), x0...),
		cumulative: identity(n),
		stm:        identity(n),
	}, nil
}

func (v *Variational) String() string {
	return fmt.Sprintf("Variational [%s, t=%s]", v.eom, v.Epoch())
}

// Dimension returns the size of the physical state (not the augmented one).
func (v *Variational) Dimension() int {
	return v.n
}

// Time returns the number of seconds since the reference epoch.
func (v *Variational) Time() float64 {
	return v.t
}

// Epoch returns the current epoch of the dynamics.
func (v *Variational) Epoch() time.Time {
	return v.epoch.Add(time.Duration(v.t * float64(time.Second)))
}

// Vector returns a copy of the current physical state.
func (v *Variational) Vector() *mat.VecDense {
	return mat.NewVecDense(v.n, append([]float64(nil), v.x...))
}

// STM returns the STM from the previous state update to the current one.
func (v *Variational) STM() *mat.Dense {
	return mat.DenseCopyOf(v.stm)
}

// Cumulative returns the STM from the reference epoch to the current one.
func (v *Variational) Cumulative() *mat.Dense {
	return mat.DenseCopyOf(v.cumulative)
}

// Gradient returns the A matrix at (t, x).
func (v *Variational) Gradient(t float64, x []float64) *mat.Dense {
	return v.lin.Gradient(t, x)
}

// GetState returns the augmented state [x Φ] with Φ flattened row by row.
func (v *Variational) GetState() []float64 {
	s := make([]float64, v.n+v.n*v.n)
	copy(s, v.x)
	sIdx := v.n
	for i := 0; i < v.n; i++ {
		for j := 0; j < v.n; j++ {
			s[sIdx] = v.cumulative.At(i, j)
			sIdx++
		}
	}
	return s
}

// SetState sets the augmented state at time t.
func (v *Variational) SetState(t float64, s []float64) error {
	if len(s) != v.n+v.n*v.n {
		return fmt.Errorf("augmented state has %d components, expected %d", len(s), v.n+v.n*v.n)
	}
	Φk20 := mat.NewDense(v.n, v.n, append([]float64(nil), s[v.n:]...))
	// Compute the Φ for this transition
	var Φinv mat.Dense
	if err := Φinv.Inverse(v.cumulative); err != nil {
		return fmt.Errorf("%w at t=%f: %v", ErrSingularSTM, v.t, err)
	}
	var Φstep mat.Dense
	Φstep.Mul(Φk20, &Φinv)

	v.t = t
	v.x = append(v.x[:0], s[:v.n]...)
	v.cumulative = Φk20
	v.stm = &Φstep
	return nil
}

// SetEstimatedState overwrites the physical state, e.g. to fold an EKF correction into the
// reference trajectory. The STMs are kept.
func (v *Variational) SetEstimatedState(x *mat.VecDense) error {
	if x.Len() != v.n {
		return fmt.Errorf("estimated state has %d components, expected %d", x.Len(), v.n)
	}
	for i := 0; i < v.n; i++ {
		v.x[i] = x.AtVec(i)
	}
	return nil
}

// Func computes the derivative of the augmented state.
func (v *Variational) Func(t float64, s []float64) []float64 {
	x := s[:v.n]
	Φ := mat.NewDense(v.n, v.n, s[v.n:v.n+v.n*v.n])
	fDot := make([]float64, v.n+v.n*v.n)
	copy(fDot, v.eom.Eom(t, x))

	var ΦDot mat.Dense
	ΦDot.Mul(v.lin.Gradient(t, x), Φ)
	// Store ΦDot in fDot
	fIdx := v.n
	for i := 0; i < v.n; i++ {
		for j := 0; j < v.n; j++ {
			fDot[fIdx] = ΦDot.At(i, j)
			fIdx++
		}
	}
	return fDot
}

func identity(n int) *mat.Dense {
	I := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		I.Set(i, i, 1)
	}
	return I
}
