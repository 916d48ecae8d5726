package l1series

import (
	"fmt"
	"slices"
	"time"
)

// MinLength is the shortest series that can be tested (a single pair).
const MinLength = 2

// Grid describes the shared spatial footprint of every acquisition.
type Grid struct {
	Width  int // columns
	Height int // rows
}

// Pixels returns Width*Height.
func (g Grid) Pixels() int { return g.Width * g.Height }

// Pixel is a row/column coordinate on the grid.
type Pixel struct {
	Row int `json:"row" msgpack:"row"`
	Col int `json:"col" msgpack:"col"`
}

// Acquisition is one co-registered SAR observation of the footprint.
//
// Exactly one of Intensity or Covariance carries the image payload:
// Intensity is row-major Height*Width linear intensity, Covariance is
// row-major pixels each holding a row-major p*p Hermitian matrix where p is
// len(Polarizations).
type Acquisition struct {
	Time          time.Time
	Polarizations []string
	Looks         float64 // equivalent number of looks; 0 when metadata is absent

	Intensity  []float64
	Covariance []complex128
}

// Channels returns the polarisation channel count (at least 1).
func (a Acquisition) Channels() int {
	if len(a.Polarizations) == 0 {
		return 1
	}
	return len(a.Polarizations)
}

// Series is an immutable, validated multi-temporal stack for one tile.
//
// Samples are held in pixel-major arenas so that one pixel's time series is
// contiguous: intensity[pixel*n + t] and covariance[(pixel*n+t)*p*p + k].
// The payload slices of the ingested acquisitions are copied and dropped.
type Series struct {
	grid     Grid
	channels int
	looks    float64
	meta     []Acquisition // metadata only; payloads are nil

	intensity  []float64
	covariance []complex128
}

// Sample is a read-only view of one pixel's samples across the series.
// Intensity has Len() entries; Covariance has Len()*Channels*Channels.
type Sample struct {
	Channels   int
	Intensity  []float64
	Covariance []complex128
}

// Len returns the number of acquisitions in the sample.
func (s Sample) Len() int {
	if s.Channels <= 1 {
		return len(s.Intensity)
	}
	return len(s.Covariance) / (s.Channels * s.Channels)
}

// Matrix returns the p*p covariance block of acquisition t.
func (s Sample) Matrix(t int) []complex128 {
	pp := s.Channels * s.Channels
	return s.Covariance[t*pp : (t+1)*pp]
}

// New validates acquisitions against grid and ingests them into a Series.
// Any structural problem is returned wrapped in ErrMalformedSeries; sample
// values are not inspected here (that is a per-pixel concern).
func New(grid Grid, acquisitions []Acquisition) (*Series, error) {
	if grid.Width <= 0 || grid.Height <= 0 {
		return nil, fmt.Errorf("%w: grid %dx%d must be positive", ErrMalformedSeries, grid.Width, grid.Height)
	}
	n := len(acquisitions)
	if n < MinLength {
		return nil, fmt.Errorf("%w: %d acquisitions, need at least %d", ErrMalformedSeries, n, MinLength)
	}

	first := acquisitions[0]
	channels := first.Channels()
	covariant := channels > 1
	pixels := grid.Pixels()

	for t, a := range acquisitions {
		if t > 0 && !a.Time.After(acquisitions[t-1].Time) {
			return nil, fmt.Errorf("%w: acquisition %d at %s is not after %s",
				ErrMalformedSeries, t, a.Time.Format(time.RFC3339), acquisitions[t-1].Time.Format(time.RFC3339))
		}
		if a.Looks != first.Looks {
			return nil, fmt.Errorf("%w: acquisition %d has %g looks, series has %g",
				ErrMalformedSeries, t, a.Looks, first.Looks)
		}
		if a.Looks < 0 {
			return nil, fmt.Errorf("%w: negative look count %g", ErrMalformedSeries, a.Looks)
		}
		if !slices.Equal(a.Polarizations, first.Polarizations) {
			return nil, fmt.Errorf("%w: acquisition %d polarizations %v differ from %v",
				ErrMalformedSeries, t, a.Polarizations, first.Polarizations)
		}
		if covariant {
			if a.Intensity != nil {
				return nil, fmt.Errorf("%w: acquisition %d has an intensity payload on %d channels",
					ErrMalformedSeries, t, channels)
			}
			if want := pixels * channels * channels; len(a.Covariance) != want {
				return nil, fmt.Errorf("%w: acquisition %d covariance has %d values, grid needs %d",
					ErrMalformedSeries, t, len(a.Covariance), want)
			}
		} else {
			if a.Covariance != nil {
				return nil, fmt.Errorf("%w: acquisition %d has a covariance payload on one channel",
					ErrMalformedSeries, t)
			}
			if len(a.Intensity) != pixels {
				return nil, fmt.Errorf("%w: acquisition %d has %d pixels, grid needs %d",
					ErrMalformedSeries, t, len(a.Intensity), pixels)
			}
		}
	}

	s := &Series{
		grid:     grid,
		channels: channels,
		looks:    first.Looks,
		meta:     make([]Acquisition, n),
	}
	for t, a := range acquisitions {
		s.meta[t] = Acquisition{
			Time:          a.Time,
			Polarizations: slices.Clone(a.Polarizations),
			Looks:         a.Looks,
		}
	}

	if covariant {
		pp := channels * channels
		s.covariance = make([]complex128, pixels*n*pp)
		for t, a := range acquisitions {
			for px := 0; px < pixels; px++ {
				copy(s.covariance[(px*n+t)*pp:(px*n+t+1)*pp], a.Covariance[px*pp:(px+1)*pp])
			}
		}
	} else {
		s.intensity = make([]float64, pixels*n)
		for t, a := range acquisitions {
			for px, v := range a.Intensity {
				s.intensity[px*n+t] = v
			}
		}
	}
	return s, nil
}

// Len returns the number of acquisitions.
func (s *Series) Len() int { return len(s.meta) }

// Grid returns the spatial footprint.
func (s *Series) Grid() Grid { return s.grid }

// Pixels returns the number of pixels per acquisition.
func (s *Series) Pixels() int { return s.grid.Pixels() }

// Channels returns the polarisation channel count; 1 means scalar intensity.
func (s *Series) Channels() int { return s.channels }

// Looks returns the look count recorded in the acquisition metadata
// (0 when absent).
func (s *Series) Looks() float64 { return s.looks }

// Acquisition returns the metadata of acquisition t. The payload fields
// of the returned value are always nil.
func (s *Series) Acquisition(t int) Acquisition { return s.meta[t] }

// Times returns the acquisition timestamps in order.
func (s *Series) Times() []time.Time {
	out := make([]time.Time, len(s.meta))
	for i, a := range s.meta {
		out[i] = a.Time
	}
	return out
}

// Index converts a coordinate to a flat pixel index.
func (s *Series) Index(row, col int) int { return row*s.grid.Width + col }

// Coord converts a flat pixel index to a coordinate.
func (s *Series) Coord(pixel int) Pixel {
	return Pixel{Row: pixel / s.grid.Width, Col: pixel % s.grid.Width}
}

// Sample returns a view of the pixel's time series. The slices alias the
// series arena and must not be modified.
func (s *Series) Sample(pixel int) Sample {
	n := len(s.meta)
	if s.channels <= 1 {
		return Sample{Channels: 1, Intensity: s.intensity[pixel*n : (pixel+1)*n : (pixel+1)*n]}
	}
	pp := s.channels * s.channels
	lo, hi := pixel*n*pp, (pixel+1)*n*pp
	return Sample{Channels: s.channels, Covariance: s.covariance[lo:hi:hi]}
}
