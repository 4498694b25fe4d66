package nyx

import (
	"fmt"
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/sidereal"
	"github.com/soniakeys/unit"
	"gonum.org/v1/gonum/mat"
)

const (
	earthRadius = 6378.1363          // km
	earthRate   = 7.292115900231e-05 // rad/s
)

// GroundStation measures the range and range rate of a spacecraft from a site on the (spherical)
// rotating Earth. States are [r v] in an Earth centered inertial frame, in km and km/s.
type GroundStation struct {
	Name                string
	Altitude            float64 // km
	ElevationMask       unit.Angle
	Latitude, Longitude unit.Angle
	σρ, σρDot           float64 // Standard deviations of range (km) and range rate (km/s)
}

// NewGroundStation returns a new ground station.
func NewGroundStation(name string, altitude float64, elevationMask, latitude, longitude unit.Angle, σρ, σρDot float64) *GroundStation {
	return &GroundStation{name, altitude, elevationMask, latitude, longitude, σρ, σρDot}
}

func (s *GroundStation) String() string {
	return fmt.Sprintf("%s (%f, %f) alt. %f km", s.Name, s.Latitude.Deg(), s.Longitude.Deg(), s.Altitude)
}

// MeasurementNoise returns the R matrix of this station.
func (s *GroundStation) MeasurementNoise() *mat.SymDense {
	return mat.NewSymDense(2, []float64{s.σρ * s.σρ, 0, 0, s.σρDot * s.σρDot})
}

// GMST returns the Greenwich mean sidereal angle at the provided epoch, in radians.
func GMST(epoch time.Time) float64 {
	return sidereal.Mean(julian.TimeToJD(epoch)).Rad()
}

// RV returns the inertial position and velocity of the station at the provided epoch.
func (s *GroundStation) RV(epoch time.Time) (R, V [3]float64) {
	r := earthRadius + s.Altitude
	sLat, cLat := math.Sincos(s.Latitude.Rad())
	θ := GMST(epoch) + s.Longitude.Rad()
	sθ, cθ := math.Sincos(θ)
	R = [3]float64{r * cLat * cθ, r * cLat * sθ, r * sLat}
	// V = ω × R
	V = [3]float64{-earthRate * R[1], earthRate * R[0], 0}
	return
}

// Elevation returns the elevation of the provided position, as seen from the station.
func (s *GroundStation) Elevation(epoch time.Time, position [3]float64) unit.Angle {
	R, _ := s.RV(epoch)
	var ρ [3]float64
	for i := 0; i < 3; i++ {
		ρ[i] = position[i] - R[i]
	}
	// The local vertical of a spherical body is along R.
	sinEl := math.Max(-1, math.Min(1, dot(ρ, R)/(norm(ρ)*norm(R))))
	return unit.Angle(math.Asin(sinEl))
}

// Measure implements the Device interface. The observation is [ρ ρDot].
func (s *GroundStation) Measure(in MeasurementInput) Measurement {
	R, V := s.RV(in.Epoch)
	var ρVec, ρDotVec, position [3]float64
	for i := 0; i < 3; i++ {
		position[i] = in.State.AtVec(i)
		ρVec[i] = in.State.AtVec(i) - R[i]
		ρDotVec[i] = in.State.AtVec(i+3) - V[i]
	}
	ρ := norm(ρVec)
	ρDot := dot(ρVec, ρDotVec) / ρ

	Htilde := mat.NewDense(2, 6, nil)
	for i := 0; i < 3; i++ {
		Htilde.Set(0, i, ρVec[i]/ρ)
		Htilde.Set(1, i, (ρDotVec[i]-ρDot*ρVec[i]/ρ)/ρ)
		Htilde.Set(1, i+3, ρVec[i]/ρ)
	}

	return Measurement{
		Epoch:       in.Epoch,
		Observation: mat.NewVecDense(2, []float64{ρ, ρDot}),
		Visible:     s.Elevation(in.Epoch, position) >= s.ElevationMask,
		HTilde:      Htilde,
	}
}

func dot(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func norm(a [3]float64) float64 {
	return math.Sqrt(dot(a, a))
}
