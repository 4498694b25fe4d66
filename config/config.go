// Package config loads orbit determination scenarios from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/guija/nyx"
	"github.com/guija/nyx/dynamics"
	"github.com/guija/nyx/propagator"
	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/unit"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// Defaults of the scenario.
const (
	DefaultEpoch    = 2457754.5 // 2017-01-01T00:00:00 UTC
	DefaultInterval = 60.0
	DefaultCount    = 120
	DefaultSeed     = 2017
)

// Config is an orbit determination scenario: the true initial state, the a priori knowledge of
// the filter, the tracking stations and the outputs.
type Config struct {
	Epoch        float64            `yaml:"epoch_jd"`
	State        []float64          `yaml:"state"`
	Perturbation []float64          `yaml:"perturbation"`
	Covariance   []float64          `yaml:"covariance"`
	J2           bool               `yaml:"j2"`
	Propagator   PropagatorConfig   `yaml:"propagator"`
	Measurements MeasurementsConfig `yaml:"measurements"`
	Filter       FilterConfig       `yaml:"filter"`
	Stations     []StationConfig    `yaml:"stations"`
	Output       OutputConfig       `yaml:"output"`
}

// PropagatorConfig sets the integration options, in seconds. ErrorControl is either "rss" or
// "largest".
type PropagatorConfig struct {
	Step         float64 `yaml:"step"`
	MinStep      float64 `yaml:"min_step"`
	MaxStep      float64 `yaml:"max_step"`
	Tolerance    float64 `yaml:"tolerance"`
	MaxAttempts  int     `yaml:"max_attempts"`
	Fixed        bool    `yaml:"fixed"`
	ErrorControl string  `yaml:"error_control"`
}

// MeasurementsConfig sets the simulated tracking data. Interval is in seconds.
type MeasurementsConfig struct {
	Interval float64 `yaml:"interval"`
	Count    int     `yaml:"count"`
	Seed     uint64  `yaml:"seed"`
	Noisy    bool    `yaml:"noisy"`
}

// FilterConfig sets the EKF switch and the processing of the measurements.
type FilterConfig struct {
	EKFAfter        int     `yaml:"ekf_after"`
	TraceThreshold  float64 `yaml:"trace_threshold"`
	Simultaneous    bool    `yaml:"simultaneous"`
	Smooth          bool    `yaml:"smooth"`
	ExpectedEntries int     `yaml:"expected_entries"`
}

// StationConfig is a ground station. Angles are in degrees, the altitude in km and the standard
// deviations in km and km/s.
type StationConfig struct {
	Name           string  `yaml:"name"`
	Altitude       float64 `yaml:"altitude"`
	ElevationMask  float64 `yaml:"elevation_mask"`
	Latitude       float64 `yaml:"latitude"`
	Longitude      float64 `yaml:"longitude"`
	SigmaRange     float64 `yaml:"sigma_range"`
	SigmaRangeRate float64 `yaml:"sigma_range_rate"`
}

// OutputConfig sets where the estimates are exported.
type OutputConfig struct {
	Dir      string `yaml:"dir"`
	Filename string `yaml:"filename"`
}

// DefaultConfig returns a LEO spacecraft tracked by the three Deep Space Network complexes.
func DefaultConfig() *Config {
	def := propagator.DefaultOptions()
	return &Config{
		Epoch:        DefaultEpoch,
		State:        []float64{-2436.45, -2436.45, 6891.037, 5.088611, -5.088611, 0},
		Perturbation: []float64{0.5, -0.5, 0.25, 5e-4, -5e-4, 2.5e-4},
		Covariance:   []float64{1, 1, 1, 1e-6, 1e-6, 1e-6},
		J2:           true,
		Propagator: PropagatorConfig{
			Step:         def.InitStep,
			MinStep:      def.MinStep,
			MaxStep:      def.MaxStep,
			Tolerance:    def.Tolerance,
			MaxAttempts:  def.MaxAttempts,
			ErrorControl: "rss",
		},
		Measurements: MeasurementsConfig{
			Interval: DefaultInterval,
			Count:    DefaultCount,
			Seed:     DefaultSeed,
			Noisy:    true,
		},
		Filter: FilterConfig{
			EKFAfter:        10,
			ExpectedEntries: 10000,
		},
		Stations: []StationConfig{
			{"DSS13", 1.07114904, 10, 35.247164, 243.205, 1e-3, 1e-6},
			{"DSS34", 0.69235, 10, -35.398333, 148.981944, 1e-3, 1e-6},
			{"DSS65", 0.834939, 10, 40.427222, 355.749444, 1e-3, 1e-6},
		},
		Output: OutputConfig{
			Dir:      ".",
			Filename: "statod.csv",
		},
	}
}

// Load reads the scenario at path on top of the default configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the consistency of the scenario.
func (c *Config) Validate() error {
	if len(c.State) != 6 {
		return fmt.Errorf("state must have 6 components, got %d", len(c.State))
	}
	if len(c.Perturbation) != 0 && len(c.Perturbation) != 6 {
		return fmt.Errorf("perturbation must have 6 components, got %d", len(c.Perturbation))
	}
	if len(c.Covariance) != 6 {
		return fmt.Errorf("covariance diagonal must have 6 components, got %d", len(c.Covariance))
	}
	for i, σ2 := range c.Covariance {
		if σ2 < 0 {
			return fmt.Errorf("covariance diagonal %d is negative", i)
		}
	}
	if len(c.Stations) == 0 {
		return fmt.Errorf("at least one station is required")
	}
	if c.Measurements.Interval <= 0 {
		return fmt.Errorf("measurement interval must be positive, got %f", c.Measurements.Interval)
	}
	if c.Measurements.Count < 1 {
		return fmt.Errorf("at least one measurement is required, got %d", c.Measurements.Count)
	}
	switch c.Propagator.ErrorControl {
	case "", "rss", "largest":
	default:
		return fmt.Errorf("unknown error control %q", c.Propagator.ErrorControl)
	}
	return nil
}

// StartEpoch returns the epoch of the initial state.
func (c *Config) StartEpoch() time.Time {
	return julian.JDToTime(c.Epoch).UTC()
}

// Interval returns the time between two measurements.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Measurements.Interval * float64(time.Second))
}

// Dynamics returns the two body dynamics of the Earth, with J2 if requested.
func (c *Config) Dynamics() *dynamics.TwoBody {
	j2 := dynamics.EarthJ2()
	if c.J2 {
		return dynamics.NewTwoBody(j2.Mu, j2)
	}
	return dynamics.NewTwoBody(j2.Mu)
}

// PropagatorOptions returns the integration options.
func (c *Config) PropagatorOptions() propagator.Options {
	p := c.Propagator
	if p.Fixed {
		return propagator.FixedStepOptions(p.Step)
	}
	opts := propagator.Options{
		InitStep:    p.Step,
		MinStep:     p.MinStep,
		MaxStep:     p.MaxStep,
		Tolerance:   p.Tolerance,
		MaxAttempts: p.MaxAttempts,
		ErrCtrl:     propagator.RSSStep{},
	}
	if p.ErrorControl == "largest" {
		opts.ErrCtrl = propagator.LargestError{}
	}
	return opts
}

// GroundStations returns the tracking stations.
func (c *Config) GroundStations() []*nyx.GroundStation {
	stations := make([]*nyx.GroundStation, len(c.Stations))
	for i, s := range c.Stations {
		stations[i] = nyx.NewGroundStation(s.Name, s.Altitude, unit.AngleFromDeg(s.ElevationMask),
			unit.AngleFromDeg(s.Latitude), unit.AngleFromDeg(s.Longitude), s.SigmaRange, s.SigmaRangeRate)
	}
	return stations
}

// Devices returns the tracking stations as measurement devices.
func (c *Config) Devices() []nyx.Device {
	stations := c.GroundStations()
	devices := make([]nyx.Device, len(stations))
	for i, st := range stations {
		devices[i] = st
	}
	return devices
}

// EstimatedState returns the initial reference state of the filter, i.e. the true state offset
// by the perturbation.
func (c *Config) EstimatedState() []float64 {
	x := append([]float64(nil), c.State...)
	for i := range c.Perturbation {
		x[i] += c.Perturbation[i]
	}
	return x
}

// InitialEstimate returns the a priori estimate of the filter.
func (c *Config) InitialEstimate() *nyx.Estimate {
	est := nyx.ZeroEstimate(6, c.StartEpoch())
	for i, σ2 := range c.Covariance {
		est.Covar.SetSym(i, i, σ2)
	}
	est.STM = nyx.DenseIdentity(6)
	return est
}

// FilterNoise returns the noise used by the filter. The measurement noise is that of the first
// station.
func (c *Config) FilterNoise() (*nyx.Noiseless, error) {
	return nyx.NewNoiseless(mat.NewSymDense(3, nil), c.GroundStations()[0].MeasurementNoise())
}

// Trigger returns the EKF trigger. The number of measurements takes precedence over the
// covariance trace.
func (c *Config) Trigger() nyx.EKFTrigger {
	switch {
	case c.Filter.EKFAfter > 0:
		return nyx.NewNumMsrEKFTrigger(c.Filter.EKFAfter)
	case c.Filter.TraceThreshold > 0:
		return nyx.CovarTraceTrigger{Threshold: c.Filter.TraceThreshold}
	default:
		return nyx.CKFTrigger{}
	}
}

// ProcessOptions returns the options of the orbit determination process.
func (c *Config) ProcessOptions() []nyx.Option {
	opts := []nyx.Option{nyx.WithSimultaneousMeasurements(c.Filter.Simultaneous)}
	if c.Filter.ExpectedEntries > 0 {
		opts = append(opts, nyx.WithExpectedMeasurements(c.Filter.ExpectedEntries))
	}
	return opts
}
