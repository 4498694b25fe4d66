package nyx

import (
	"slices"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/guija/nyx/propagator"
	"github.com/pkg/errors"
	gometrics "github.com/rcrowley/go-metrics"
	"gonum.org/v1/gonum/mat"
)

// ODProcess runs a sequential orbit determination: it propagates the reference trajectory to each
// measurement, filters the observations of its devices, and logs the estimates and residuals.
// Use NewODProcess to initialize.
type ODProcess struct {
	prop         *propagator.Propagator
	dyn          Estimable
	kf           KalmanFilter
	devices      []Device
	trigger      EKFTrigger
	simultaneous bool
	observer     Observer
	logger       log.Logger
	registry     gometrics.Registry
	expected     int
	prevEpoch    time.Time
	pendingΦ     *mat.Dense // Product of the STMs since the latest update
	estimates    []*Estimate
	residuals    []*Residual

	processed gometrics.Counter
	hidden    gometrics.Counter
	prefits   gometrics.Histogram
	propTime  gometrics.Timer
}

// Option configures an ODProcess.
type Option func(*ODProcess)

// WithSimultaneousMeasurements allows all the visible devices to be processed at a given epoch,
// instead of only the first one.
func WithSimultaneousMeasurements(simultaneous bool) Option {
	return func(p *ODProcess) {
		p.simultaneous = simultaneous
	}
}

// WithObserver sets the observer notified of each estimate.
func WithObserver(o Observer) Option {
	return func(p *ODProcess) {
		p.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(p *ODProcess) {
		p.logger = log.With(logger, "module", "od")
	}
}

// WithRegistry sets the metrics registry.
func WithRegistry(r gometrics.Registry) Option {
	return func(p *ODProcess) {
		p.registry = r
	}
}

// WithExpectedMeasurements preallocates the logs.
func WithExpectedMeasurements(n int) Option {
	return func(p *ODProcess) {
		p.expected = n
	}
}

// NewODProcess returns a new OD process. The dynamics of the propagator must implement Estimable,
// and be at the epoch of the initial estimate of the filter.
func NewODProcess(prop *propagator.Propagator, kf KalmanFilter, devices []Device, trigger EKFTrigger, opts ...Option) (*ODProcess, error) {
	dyn, ok := prop.Dynamics().(Estimable)
	if !ok {
		return nil, errors.Errorf("dynamics %T cannot be estimated", prop.Dynamics())
	}
	if len(devices) == 0 {
		return nil, errors.New("at least one device is required")
	}
	if trigger == nil {
		trigger = CKFTrigger{}
	}
	p := &ODProcess{
		prop:     prop,
		dyn:      dyn,
		kf:       kf,
		devices:  devices,
		trigger:  trigger,
		logger:   log.NewNopLogger(),
		registry: gometrics.NewRegistry(),
		expected: 10000,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.estimates = make([]*Estimate, 0, p.expected)
	p.residuals = make([]*Residual, 0, p.expected)
	p.processed = gometrics.GetOrRegisterCounter("od.measurements.processed", p.registry)
	p.hidden = gometrics.GetOrRegisterCounter("od.measurements.hidden", p.registry)
	p.prefits = gometrics.GetOrRegisterHistogram("od.residuals.prefit", p.registry, gometrics.NewUniformSample(p.expected))
	p.propTime = gometrics.GetOrRegisterTimer("od.propagation", p.registry)
	p.prevEpoch = dyn.Epoch()
	p.pendingΦ = DenseIdentity(dyn.Vector().Len())
	return p, nil
}

// NewCKFProcess returns a new OD process which never switches to an EKF.
func NewCKFProcess(prop *propagator.Propagator, kf KalmanFilter, devices []Device, opts ...Option) (*ODProcess, error) {
	return NewODProcess(prop, kf, devices, CKFTrigger{}, opts...)
}

// Estimates returns the estimates computed so far.
func (p *ODProcess) Estimates() []*Estimate {
	return p.estimates
}

// Residuals returns the residuals computed so far, one per estimate.
func (p *ODProcess) Residuals() []*Residual {
	return p.residuals
}

// Registry returns the metrics registry of this process.
func (p *ODProcess) Registry() gometrics.Registry {
	return p.registry
}

// ProcessMeasurements filters the provided real measurements, which must be in chronological
// order. Processing stops at the first error, but the estimates and residuals computed until
// then remain valid.
func (p *ODProcess) ProcessMeasurements(measurements []Measurement) error {
	level.Info(p.logger).Log("msg", "processing measurements", "count", len(measurements))
	n := p.dyn.Vector().Len()
	for _, msr := range measurements {
		if msr.Epoch.Before(p.prevEpoch) {
			return filterError("process measurements", msr.Epoch, ErrMeasurementsUnordered)
		}
		// Propagate the dynamics to the measurement, and then start the filter.
		Δt := msr.Epoch.Sub(p.prevEpoch).Seconds()
		start := time.Now()
		if err := p.prop.Propagate(Δt); err != nil {
			return filterError("propagation", msr.Epoch, errors.Wrapf(err, "Δt=%f s", Δt))
		}
		p.propTime.UpdateSince(start)
		p.prevEpoch = msr.Epoch

		var Φ mat.Dense
		Φ.Mul(p.dyn.STM(), p.pendingΦ)
		p.pendingΦ = &Φ

		in := MeasurementInput{Epoch: msr.Epoch, State: p.dyn.Vector()}
		for devNo, device := range p.devices {
			computed := device.Measure(in)
			if !computed.Visible {
				p.hidden.Inc(1)
				level.Debug(p.logger).Log("msg", "device not visible", "device", devNo, "epoch", msr.Epoch)
				continue
			}
			if err := p.kf.UpdateSTM(p.pendingΦ); err != nil {
				return filterError("process measurements", msr.Epoch, err)
			}
			if err := p.kf.UpdateHTilde(computed.HTilde); err != nil {
				return filterError("process measurements", msr.Epoch, err)
			}
			est, res, err := p.kf.MeasurementUpdate(msr.Epoch, msr.Observation, computed.Observation)
			if err != nil {
				var ferr *FilterError
				if errors.As(err, &ferr) {
					return err
				}
				return filterError("measurement update", msr.Epoch, err)
			}
			// Any other device at this epoch starts from this estimate.
			p.pendingΦ = DenseIdentity(n)
			est.Nominal = in.State
			p.processed.Inc(1)
			// Stored in micro units (i.e. mm for km).
			p.prefits.Update(int64(mat.Norm(res.Prefit, 2) * 1e6))

			// Switch to EKF if necessary, and update the reference trajectory.
			if !p.kf.EKFEnabled() && p.trigger.EnableEKF(est) {
				p.kf.EnableEKF()
				level.Info(p.logger).Log("msg", "EKF now enabled", "epoch", msr.Epoch, "measurement", len(p.estimates)+1)
			}
			if p.kf.EKFEnabled() {
				corrected := mat.VecDenseCopyOf(in.State)
				corrected.AddVec(corrected, est.State)
				if err := p.dyn.SetEstimatedState(corrected); err != nil {
					return filterError("EKF correction", msr.Epoch, err)
				}
				in.State = p.dyn.Vector()
			}

			p.estimates = append(p.estimates, est)
			p.residuals = append(p.residuals, res)
			p.notify(est)
			if !p.simultaneous {
				break
			}
		}
	}
	return nil
}

func (p *ODProcess) notify(est *Estimate) {
	if p.observer == nil {
		return
	}
	if err := p.observer.Notify(est); err != nil {
		level.Warn(p.logger).Log("msg", "could not notify observer", "epoch", est.Epoch, "err", err)
	}
}

// Smooth smoothes the estimates, from the last one to the first one, by mapping each of them
// through the inverse of its STM. Either all the estimates are smoothed, or none are.
// Note: the smoothed estimates are not meaningful if process noise was used.
func (p *ODProcess) Smooth() error {
	level.Debug(p.logger).Log("msg", "smoothing", "estimates", len(p.estimates))
	if p.kf.ProcessNoiseApplied() {
		level.Warn(p.logger).Log("msg", "smoothing estimates computed with process noise")
	}
	smoothed := make([]*Estimate, 0, len(p.estimates))
	for i := len(p.estimates) - 1; i >= 0; i-- {
		est := p.estimates[i]
		var ΦInv mat.Dense
		if err := ΦInv.Inverse(est.STM); err != nil {
			return filterError("smooth", est.Epoch, errors.Wrapf(ErrStateTransitionMatrixSingular, "%v", err))
		}
		var P, ΦInvP mat.Dense
		ΦInvP.Mul(&ΦInv, est.Covar)
		P.Mul(&ΦInvP, ΦInv.T())
		PSym, err := AsSymDense(&P)
		if err != nil {
			return filterError("smooth", est.Epoch, err)
		}
		var x mat.VecDense
		x.MulVec(&ΦInv, est.State)
		smoothed = append(smoothed, &Estimate{
			Epoch:     est.Epoch,
			Nominal:   est.Nominal,
			State:     &x,
			Covar:     PSym,
			STM:       est.STM,
			Predicted: est.Predicted,
		})
	}
	// And reverse to maintain order
	slices.Reverse(smoothed)
	p.estimates = smoothed
	return nil
}
