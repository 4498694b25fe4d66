package propagator

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

const safety = 0.9

// Integrable is anything which can be integrated: the propagator only handles flat vectors and
// never looks into what they hold.
type Integrable interface {
	Time() float64                         // current time of the dynamics, in seconds
	GetState() []float64                   // current state
	SetState(t float64, s []float64) error // commits the state at time t
	Func(t float64, s []float64) []float64 // derivative of s at time t
}

// Options configures a propagation. Step sizes are in seconds.
type Options struct {
	InitStep    float64
	MinStep     float64
	MaxStep     float64
	Tolerance   float64
	MaxAttempts int
	Fixed       bool
	ErrCtrl     ErrorControl
}

// DefaultOptions returns adaptive options with a 1e-12 tolerance.
func DefaultOptions() Options {
	return Options{
		InitStep:    60,
		MinStep:     1e-3,
		MaxStep:     2700,
		Tolerance:   1e-12,
		MaxAttempts: 50,
		ErrCtrl:     RSSStep{},
	}
}

// FixedStepOptions returns options which disable step adaptation entirely.
func FixedStepOptions(step float64) Options {
	opts := DefaultOptions()
	opts.InitStep = step
	opts.MinStep = step
	opts.MaxStep = step
	opts.Fixed = true
	return opts
}

func (o Options) validate() error {
	if o.InitStep <= 0 {
		return fmt.Errorf("initial step must be positive, got %f", o.InitStep)
	}
	if o.Fixed {
		return nil
	}
	if o.MinStep <= 0 || o.MaxStep < o.MinStep {
		return fmt.Errorf("invalid step bounds [%f, %f]", o.MinStep, o.MaxStep)
	}
	if o.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive, got %e", o.Tolerance)
	}
	if o.MaxAttempts < 1 {
		return fmt.Errorf("at least one attempt is required, got %d", o.MaxAttempts)
	}
	return nil
}

// Setup is the immutable configuration shared by all the propagators created from it.
type Setup struct {
	tableau Tableau
	opts    Options
}

// NewSetup returns a Dormand-Prince 5(4) setup with the provided options.
func NewSetup(opts Options) (*Setup, error) {
	if opts.ErrCtrl == nil {
		opts.ErrCtrl = RSSStep{}
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Setup{DormandPrince54, opts}, nil
}

// Options returns a copy of the options of this setup.
func (s *Setup) Options() Options {
	return s.opts
}

// With returns a new propagator of the provided dynamics.
func (s *Setup) With(dyn Integrable) *Propagator {
	return &Propagator{setup: s, dyn: dyn, step: s.opts.InitStep}
}

// Details stores the information about the latest accepted step.
type Details struct {
	Step     float64
	Error    float64
	Attempts int
}

// Propagator integrates one set of dynamics. Use Setup.With to initialize.
type Propagator struct {
	setup   *Setup
	dyn     Integrable
	step    float64 // next step size, carried between propagations
	details Details
}

func (p *Propagator) String() string {
	return fmt.Sprintf("Propagator [%s, h=%f]", p.setup.tableau.Name, p.step)
}

// Dynamics returns the dynamics this propagator integrates.
func (p *Propagator) Dynamics() Integrable {
	return p.dyn
}

// Latest returns the details of the latest accepted step.
func (p *Propagator) Latest() Details {
	return p.details
}

// Step computes one embedded step of size h from (t, x). It returns the higher order solution
// and the scalar error of that step.
func (p *Propagator) Step(t float64, x []float64, h float64) ([]float64, float64, error) {
	tab := p.setup.tableau
	n := len(x)
	k := make([][]float64, tab.Stages())
	xi := make([]float64, n)
	for s := range k {
		copy(xi, x)
		if s > 0 {
			for j, a := range tab.A[s-1] {
				if a == 0 {
					continue
				}
				for i := 0; i < n; i++ {
					xi[i] += h * a * k[j][i]
				}
			}
		}
		k[s] = p.dyn.Func(t+tab.C[s]*h, xi)
		for _, v := range k[s] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, 0, errors.Wrapf(ErrNumericalInstability, "stage %d at t=%f", s+1, t)
			}
		}
	}

	next := make([]float64, n)
	errEst := make([]float64, n)
	for i := 0; i < n; i++ {
		var high, low float64
		for s := range k {
			high += tab.B[s] * k[s][i]
			low += tab.BStar[s] * k[s][i]
		}
		next[i] = x[i] + h*high
		errEst[i] = h * (high - low)
	}
	return next, p.setup.opts.ErrCtrl.Estimate(errEst, next, x), nil
}

// Propagate integrates the dynamics for Δt seconds, which may be negative or zero.
// The dynamics are only updated once the whole propagation succeeded.
func (p *Propagator) Propagate(Δt float64) error {
	opts := p.setup.opts
	t0 := p.dyn.Time()
	tf := t0 + Δt
	t := t0
	x := append([]float64(nil), p.dyn.GetState()...)

	dir := 1.0
	if Δt < 0 {
		dir = -1
	}

	for dir*(tf-t) > 0 {
		remaining := math.Abs(tf - t)
		h := math.Min(p.step, remaining)
		last := h == remaining

		if opts.Fixed {
			next, stepErr, err := p.Step(t, x, dir*h)
			if err != nil {
				return err
			}
			x = next
			t = advance(t, dir*h, tf, last)
			p.details = Details{Step: h, Error: stepErr, Attempts: 1}
			continue
		}

		for attempts := 1; ; attempts++ {
			next, stepErr, err := p.Step(t, x, dir*h)
			if err != nil {
				return err
			}
			scaled := stepErr / opts.Tolerance
			if scaled <= 1 {
				x = next
				t = advance(t, dir*h, tf, last)
				p.details = Details{Step: h, Error: stepErr, Attempts: attempts}
				if !last || h >= p.step {
					// Only grow from a step which was not truncated by the end of the propagation.
					p.step = clamp(h*resize(scaled, p.setup.tableau.Order), opts.MinStep, opts.MaxStep)
				}
				break
			}
			if h <= opts.MinStep || attempts >= opts.MaxAttempts {
				return errors.Wrapf(ErrStepSizeTooSmall, "t=%f h=%e err=%e after %d attempts", t, h, scaled, attempts)
			}
			h = math.Min(clamp(h*resize(scaled, p.setup.tableau.Order), opts.MinStep, opts.MaxStep), remaining)
			last = h == remaining
		}
	}
	return p.dyn.SetState(tf, x)
}

// resize returns the step size multiplier for a scaled error.
func resize(scaled float64, order int) float64 {
	if scaled == 0 {
		return math.Inf(1)
	}
	return safety * math.Pow(1/scaled, 1/float64(order+1))
}

func clamp(h, lo, hi float64) float64 {
	if h < lo {
		return lo
	}
	if h > hi {
		return hi
	}
	return h
}

// advance avoids accumulating round-off error on the final step.
func advance(t, h, tf float64, last bool) float64 {
	if last {
		return tf
	}
	return t + h
}
