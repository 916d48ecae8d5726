package l2kernel

import (
	"fmt"
	"math"

	"github.com/banshee-data/sarchange/internal/sar/l1series"
)

// Family selects the statistic variant.
type Family uint8

const (
	FamilyGamma Family = iota
	FamilyWishart
)

func (f Family) String() string {
	switch f {
	case FamilyGamma:
		return "gamma"
	case FamilyWishart:
		return "wishart"
	default:
		return fmt.Sprintf("family(%d)", uint8(f))
	}
}

// positiveLogQTolerance bounds how far rounding may push the bracketed
// log-likelihood term above zero before it is treated as a fault.
const positiveLogQTolerance = 1e-9

// Statistic is the result of one grouped likelihood-ratio test.
type Statistic struct {
	Value  float64 // −2ρ ln Q, ≥ 0
	LogQ   float64 // ln Q, ≤ 0
	Rho    float64 // small-sample correction factor
	DF     int     // asymptotic χ² degrees of freedom, (g−1)p²
	Groups int
}

// Kernel carries the per-run constants of the test. It is a value type and
// safe to share between goroutines.
type Kernel struct {
	family   Family
	looks    float64
	channels int
}

// New builds a kernel. Look count and channel count are structural
// properties of the series, so violations wrap ErrMalformedSeries.
func New(family Family, looks float64, channels int) (Kernel, error) {
	if !(looks > 0) || math.IsInf(looks, 0) {
		return Kernel{}, fmt.Errorf("%w: look count %g must be positive and finite", l1series.ErrMalformedSeries, looks)
	}
	switch family {
	case FamilyGamma:
		if channels != 1 {
			return Kernel{}, fmt.Errorf("%w: gamma kernel needs 1 channel, got %d", l1series.ErrMalformedSeries, channels)
		}
	case FamilyWishart:
		if channels < 1 {
			return Kernel{}, fmt.Errorf("%w: wishart kernel needs at least 1 channel, got %d", l1series.ErrMalformedSeries, channels)
		}
		if looks < float64(channels) {
			return Kernel{}, fmt.Errorf("%w: %g looks cannot support a full-rank %dx%d covariance",
				l1series.ErrMalformedSeries, looks, channels, channels)
		}
	default:
		return Kernel{}, fmt.Errorf("unknown kernel family %d", family)
	}
	return Kernel{family: family, looks: looks, channels: channels}, nil
}

// ForSeries selects the family from the series channel count. A positive
// looksOverride replaces the metadata look count.
func ForSeries(s *l1series.Series, looksOverride float64) (Kernel, error) {
	looks := s.Looks()
	if looksOverride > 0 {
		looks = looksOverride
	}
	if looks <= 0 {
		return Kernel{}, fmt.Errorf("%w: look count missing from metadata and no override configured", l1series.ErrMalformedSeries)
	}
	if s.Channels() == 1 {
		return New(FamilyGamma, looks, 1)
	}
	return New(FamilyWishart, looks, s.Channels())
}

func (k Kernel) Family() Family  { return k.family }
func (k Kernel) Looks() float64  { return k.looks }
func (k Kernel) Channels() int   { return k.channels }
func (k Kernel) IsZero() bool    { return k.looks == 0 }
func (k Kernel) dfPerGroup() int { return k.channels * k.channels }

// MaxDF returns the largest degrees of freedom any test over a series of
// length n can report (the full omnibus test).
func (k Kernel) MaxDF(n int) int {
	if n < 2 {
		return 0
	}
	return (n - 1) * k.dfPerGroup()
}

// Prepared is one pixel's validated samples, ready for repeated tests.
// It is immutable; all methods are pure.
type Prepared struct {
	kernel Kernel
	sample l1series.Sample
	n      int
}

// Prepare validates every acquisition of the sample. Non-positive or
// non-finite intensities (or covariance diagonals, or asymmetric
// covariance) fail with ErrInvalidIntensity; covariance that is not
// positive definite fails with ErrNumericDegeneracy.
func (k Kernel) Prepare(s l1series.Sample) (*Prepared, error) {
	if s.Channels != k.channels && !(k.channels == 1 && s.Channels <= 1) {
		return nil, fmt.Errorf("%w: sample has %d channels, kernel expects %d", l1series.ErrMalformedSeries, s.Channels, k.channels)
	}
	n := s.Len()
	if k.family == FamilyGamma {
		for t, v := range s.Intensity {
			if !(v > 0) || math.IsInf(v, 1) {
				return nil, fmt.Errorf("acquisition %d intensity %g: %w", t, v, l1series.ErrInvalidIntensity)
			}
		}
	} else {
		p := k.channels
		for t := 0; t < n; t++ {
			if err := checkHermitian(s.Matrix(t), p); err != nil {
				return nil, fmt.Errorf("acquisition %d: %w", t, err)
			}
			if _, err := logDet(s.Matrix(t), p); err != nil {
				return nil, fmt.Errorf("acquisition %d: %w", t, err)
			}
		}
	}
	return &Prepared{kernel: k, sample: s, n: n}, nil
}

// Len returns the number of acquisitions.
func (p *Prepared) Len() int { return p.n }

// Kernel returns the kernel the sample was prepared for.
func (p *Prepared) Kernel() Kernel { return p.kernel }

// Sample returns the validated samples.
func (p *Prepared) Sample() l1series.Sample { return p.sample }

// Omnibus tests whether every acquisition in [start, end) shares one
// distribution against each having its own.
func (p *Prepared) Omnibus(start, end int) (Statistic, error) {
	if end-start < 2 {
		return Statistic{}, fmt.Errorf("%w: omnibus range [%d,%d) shorter than 2", l1series.ErrMalformedSeries, start, end)
	}
	bounds := make([]int, 0, end-start+1)
	for t := start; t <= end; t++ {
		bounds = append(bounds, t)
	}
	return p.Groups(bounds)
}

// Split tests [start, end) as one distribution against the two
// contiguous groups [start, split) and [split, end).
func (p *Prepared) Split(start, split, end int) (Statistic, error) {
	return p.Groups([]int{start, split, end})
}

// Groups tests whether the contiguous groups delimited by bounds
// ([bounds[0], bounds[1]), [bounds[1], bounds[2]), …) share one scale or
// covariance. Bounds must be strictly increasing and within the series.
func (p *Prepared) Groups(bounds []int) (Statistic, error) {
	g := len(bounds) - 1
	if g < 2 {
		return Statistic{}, fmt.Errorf("%w: need at least two groups, got %d", l1series.ErrMalformedSeries, g)
	}
	if bounds[0] < 0 || bounds[g] > p.n {
		return Statistic{}, fmt.Errorf("%w: bounds [%d,%d) outside series of length %d",
			l1series.ErrMalformedSeries, bounds[0], bounds[g], p.n)
	}
	for i := 0; i < g; i++ {
		if bounds[i+1] <= bounds[i] {
			return Statistic{}, fmt.Errorf("%w: bounds %v not strictly increasing", l1series.ErrMalformedSeries, bounds)
		}
	}

	var (
		ch        = float64(p.kernel.channels)
		n         = p.kernel.looks
		total     = float64(bounds[g] - bounds[0])
		weighted  float64 // Σ m_g ln|S_g|
		sizeTerm  float64 // Σ m_g ln m_g
		invSizes  float64 // Σ 1/m_g
		pooledDet float64
		err       error
	)
	for i := 0; i < g; i++ {
		m := float64(bounds[i+1] - bounds[i])
		ld, gerr := p.groupLogDet(bounds[i], bounds[i+1])
		if gerr != nil {
			return Statistic{}, gerr
		}
		// Explicit conversions keep the products unfused so mirrored
		// groupings produce bit-identical sums.
		weighted += float64(m * ld)
		sizeTerm += float64(m * math.Log(m))
		invSizes += 1 / m
	}
	if pooledDet, err = p.groupLogDet(bounds[0], bounds[g]); err != nil {
		return Statistic{}, err
	}

	bracket := ch*total*math.Log(total) - ch*sizeTerm + weighted - total*pooledDet
	if math.IsNaN(bracket) || math.IsInf(bracket, 0) {
		return Statistic{}, fmt.Errorf("log-likelihood ratio is %g: %w", bracket, l1series.ErrNumericDegeneracy)
	}
	if bracket > 0 {
		scale := 1 + total*(math.Abs(pooledDet)+ch*math.Log(total))
		if bracket > positiveLogQTolerance*scale {
			return Statistic{}, fmt.Errorf("log-likelihood ratio %g is positive: %w", bracket, l1series.ErrNumericDegeneracy)
		}
		bracket = 0
	}

	logQ := n * bracket
	rho := 1 - (2*ch*ch-1)/(6*ch*float64(g-1))*(invSizes/n-1/(n*total))
	if rho <= 0 {
		// Correction undefined at this sample size; report the raw statistic.
		rho = 1
	}
	value := -2 * rho * logQ
	if math.IsInf(value, 0) || math.IsNaN(value) {
		return Statistic{}, fmt.Errorf("statistic is %g: %w", value, l1series.ErrNumericDegeneracy)
	}
	if value == 0 {
		value = 0 // normalise −0
	}
	return Statistic{
		Value:  value,
		LogQ:   logQ,
		Rho:    rho,
		DF:     (g - 1) * p.kernel.dfPerGroup(),
		Groups: g,
	}, nil
}

// groupLogDet returns ln|S| for the sum S of acquisitions [lo, hi).
func (p *Prepared) groupLogDet(lo, hi int) (float64, error) {
	if p.kernel.family == FamilyGamma {
		var sum float64
		for _, v := range p.sample.Intensity[lo:hi] {
			sum += v
		}
		if math.IsInf(sum, 1) {
			return 0, fmt.Errorf("group [%d,%d) sum overflowed: %w", lo, hi, l1series.ErrNumericDegeneracy)
		}
		return math.Log(sum), nil
	}
	ch := p.kernel.channels
	pp := ch * ch
	sum := make([]complex128, pp)
	for t := lo; t < hi; t++ {
		m := p.sample.Matrix(t)
		for k := range sum {
			sum[k] += m[k]
		}
	}
	ld, err := logDet(sum, ch)
	if err != nil {
		return 0, fmt.Errorf("group [%d,%d): %w", lo, hi, err)
	}
	return ld, nil
}
