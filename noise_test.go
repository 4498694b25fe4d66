package nyx

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func TestImplementsNoise(t *testing.T) {
	implements := func(Noise) {}
	implements(new(Noiseless))
	implements(new(AWGN))
}

func TestBlankNoise(t *testing.T) {
	nl, err := NewNoiseless(mat.NewSymDense(2, nil), mat.NewSymDense(3, nil))
	if err != nil {
		t.Fatal(err)
	}
	if nl.Process(1).Len() != 2 {
		t.Fatal("expected only 2 rows of process noise")
	}
	if nl.Measurement(1).Len() != 3 {
		t.Fatal("expected only 3 rows of measurement noise")
	}
	if !IsNil(nl.ProcessMatrix()) || !IsNil(nl.MeasurementMatrix()) {
		t.Fatal("noise matrices are not nil")
	}
	if _, err := NewNoiseless(nil, mat.NewSymDense(3, nil)); err == nil {
		t.Fatal("missing Q should fail")
	}
}

func TestAWGN(t *testing.T) {
	badQ := mat.NewSymDense(2, []float64{1, 1, 1, 1})
	badR := mat.NewSymDense(3, []float64{2, 3, 1, 3, 4, 6, 1, 6, 7})
	_, err := NewAWGN(badQ, badR, 1)
	require.Error(t, err)
	Q := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	_, err = NewAWGN(Q, badR, 1)
	require.Error(t, err)

	R := mat.NewSymDense(2, []float64{20, 0.05, 0.05, 20})
	n, err := NewAWGN(Q, R, 1)
	require.NoError(t, err)
	require.True(t, mat.Equal(Q, n.ProcessMatrix()))
	require.True(t, mat.Equal(R, n.MeasurementMatrix()))

	samples := make([]float64, 5000)
	for k := range samples {
		samples[k] = n.Measurement(k).AtVec(0)
	}
	mean, std := stat.MeanStdDev(samples, nil)
	require.InDelta(t, 0, mean, 0.3)
	require.InDelta(t, 4.47, std, 0.3)

	// Same seed, same noise.
	n1, _ := NewAWGN(Q, R, 42)
	n2, _ := NewAWGN(Q, R, 42)
	require.True(t, mat.Equal(n1.Process(0), n2.Process(0)))
	require.True(t, mat.Equal(n1.Measurement(0), n2.Measurement(0)))
}
