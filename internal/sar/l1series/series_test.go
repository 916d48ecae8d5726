package l1series

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, time.January, 1, 6, 0, 0, 0, time.UTC)

func acq(day int, looks float64, values ...float64) Acquisition {
	return Acquisition{
		Time:          t0.AddDate(0, 0, 12*day),
		Polarizations: []string{"VV"},
		Looks:         looks,
		Intensity:     values,
	}
}

func TestNew_PixelMajorLayout(t *testing.T) {
	t.Parallel()
	grid := Grid{Width: 2, Height: 1}
	s, err := New(grid, []Acquisition{
		acq(0, 4, 1, 10),
		acq(1, 4, 2, 20),
		acq(2, 4, 3, 30),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 2, s.Pixels())
	assert.Equal(t, 1, s.Channels())
	assert.Equal(t, 4.0, s.Looks())
	assert.Equal(t, []float64{1, 2, 3}, s.Sample(0).Intensity)
	assert.Equal(t, []float64{10, 20, 30}, s.Sample(1).Intensity)
	assert.Equal(t, 3, s.Sample(1).Len())
	assert.Nil(t, s.Acquisition(0).Intensity, "metadata must not retain the payload")
}

func TestNew_CopiesPayload(t *testing.T) {
	t.Parallel()
	img := []float64{5, 6}
	s, err := New(Grid{Width: 2, Height: 1}, []Acquisition{acq(0, 1, img...), acq(1, 1, 7, 8)})
	require.NoError(t, err)

	img[0] = -1
	assert.Equal(t, 5.0, s.Sample(0).Intensity[0])
}

func TestNew_Covariance(t *testing.T) {
	t.Parallel()
	mk := func(day int, scale float64) Acquisition {
		return Acquisition{
			Time:          t0.AddDate(0, 0, day),
			Polarizations: []string{"VV", "VH"},
			Looks:         5,
			Covariance: []complex128{
				complex(scale, 0), complex(0.1, 0.2), complex(0.1, -0.2), complex(scale/4, 0),
			},
		}
	}
	s, err := New(Grid{Width: 1, Height: 1}, []Acquisition{mk(0, 1), mk(1, 2)})
	require.NoError(t, err)

	sample := s.Sample(0)
	assert.Equal(t, 2, sample.Channels)
	assert.Equal(t, 2, sample.Len())
	assert.Equal(t, complex(2.0, 0), sample.Matrix(1)[0])
	assert.Equal(t, complex(0.5, 0), sample.Matrix(1)[3])
}

func TestNew_Malformed(t *testing.T) {
	t.Parallel()
	grid := Grid{Width: 2, Height: 1}

	tests := []struct {
		name string
		grid Grid
		acqs []Acquisition
	}{
		{"empty grid", Grid{}, []Acquisition{acq(0, 1, 1, 1), acq(1, 1, 1, 1)}},
		{"single acquisition", grid, []Acquisition{acq(0, 1, 1, 1)}},
		{"equal timestamps", grid, []Acquisition{acq(0, 1, 1, 1), acq(0, 1, 1, 1)}},
		{"decreasing timestamps", grid, []Acquisition{acq(2, 1, 1, 1), acq(1, 1, 1, 1)}},
		{"dimension mismatch", grid, []Acquisition{acq(0, 1, 1, 1), acq(1, 1, 1)}},
		{"look mismatch", grid, []Acquisition{acq(0, 4, 1, 1), acq(1, 5, 1, 1)}},
		{"negative looks", grid, []Acquisition{acq(0, -1, 1, 1), acq(1, -1, 1, 1)}},
		{"polarization mismatch", grid, []Acquisition{
			acq(0, 1, 1, 1),
			{Time: t0.AddDate(0, 0, 30), Polarizations: []string{"VH"}, Looks: 1, Intensity: []float64{1, 1}},
		}},
		{"covariance on one channel", grid, []Acquisition{
			acq(0, 1, 1, 1),
			{Time: t0.AddDate(0, 0, 30), Polarizations: []string{"VV"}, Looks: 1, Intensity: []float64{1, 1}, Covariance: []complex128{1, 1}},
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.grid, tc.acqs)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedSeries), "got %v", err)
		})
	}
}

func TestCoordIndexRoundTrip(t *testing.T) {
	t.Parallel()
	img := make([]float64, 12)
	for i := range img {
		img[i] = 1
	}
	s, err := New(Grid{Width: 4, Height: 3}, []Acquisition{acq(0, 1, img...), acq(1, 1, img...)})
	require.NoError(t, err)

	for px := 0; px < s.Pixels(); px++ {
		c := s.Coord(px)
		assert.Equal(t, px, s.Index(c.Row, c.Col))
	}
	assert.Equal(t, Pixel{Row: 2, Col: 1}, s.Coord(9))
}

func TestFaultOf(t *testing.T) {
	t.Parallel()
	assert.Equal(t, FaultNone, FaultOf(nil))
	assert.Equal(t, FaultInvalidIntensity, FaultOf(fmt.Errorf("pixel 3: %w", ErrInvalidIntensity)))
	assert.Equal(t, FaultNumericDegeneracy, FaultOf(fmt.Errorf("pixel 3: %w", ErrNumericDegeneracy)))
	assert.Equal(t, FaultNumericDegeneracy, FaultOf(errors.New("other")))

	for _, f := range []Fault{FaultNone, FaultInvalidIntensity, FaultNumericDegeneracy} {
		got, ok := ParseFault(f.String())
		assert.True(t, ok)
		assert.Equal(t, f, got)
	}
}
