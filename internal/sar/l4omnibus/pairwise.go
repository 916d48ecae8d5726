package l4omnibus

import (
	"fmt"
	"math"

	"github.com/banshee-data/sarchange/internal/sar/l1series"
	"github.com/banshee-data/sarchange/internal/sar/l2kernel"
	"github.com/banshee-data/sarchange/internal/units"
)

// Pairwise defaults.
const (
	DefaultRatioThreshold      = 1.5
	DefaultDifferenceThreshold = 3.0 // dB
)

// RatioDetector flags a change wherever consecutive intensities differ by
// more than Threshold in either direction (x[t]/x[t-1] > Threshold or
// < 1/Threshold). Break statistics are |ln ratio|; there is no asymptotic
// distribution, so DF is 0 and p-values are NaN.
type RatioDetector struct {
	Threshold float64
}

// NewRatioDetector validates the threshold; 0 selects the default.
func NewRatioDetector(threshold float64) (*RatioDetector, error) {
	if threshold == 0 {
		threshold = DefaultRatioThreshold
	}
	if !(threshold > 1) || math.IsInf(threshold, 0) {
		return nil, fmt.Errorf("ratio threshold %g must be finite and greater than 1", threshold)
	}
	return &RatioDetector{Threshold: threshold}, nil
}

func (d *RatioDetector) Detect(p *l2kernel.Prepared) (Result, error) {
	limit := math.Log(d.Threshold)
	return pairwise(p, "ratio", func(prev, cur float64) float64 {
		return math.Log(cur / prev)
	}, limit)
}

// DifferenceDetector flags a change wherever consecutive intensities differ
// by more than ThresholdDB decibels. Break statistics are |Δ dB|.
type DifferenceDetector struct {
	ThresholdDB float64
}

// NewDifferenceDetector validates the threshold; 0 selects the default.
func NewDifferenceDetector(thresholdDB float64) (*DifferenceDetector, error) {
	if thresholdDB == 0 {
		thresholdDB = DefaultDifferenceThreshold
	}
	if !(thresholdDB > 0) || math.IsInf(thresholdDB, 0) {
		return nil, fmt.Errorf("difference threshold %g dB must be finite and positive", thresholdDB)
	}
	return &DifferenceDetector{ThresholdDB: thresholdDB}, nil
}

func (d *DifferenceDetector) Detect(p *l2kernel.Prepared) (Result, error) {
	return pairwise(p, "difference", func(prev, cur float64) float64 {
		return units.LinearToDB(cur) - units.LinearToDB(prev)
	}, d.ThresholdDB)
}

// pairwise scores each consecutive pair with score and reports a break
// where |score| exceeds limit. The result's Omnibus value carries the
// largest |score| so magnitude maps stay meaningful.
func pairwise(p *l2kernel.Prepared, method string, score func(prev, cur float64) float64, limit float64) (Result, error) {
	if p.Kernel().Channels() != 1 {
		return Result{}, fmt.Errorf("%w: %s method needs single-channel intensity, series has %d channels",
			l1series.ErrMalformedSeries, method, p.Kernel().Channels())
	}
	x := p.Sample().Intensity
	n := len(x)

	res := Result{
		Omnibus:       l2kernel.Statistic{Rho: 1, Groups: n},
		OmnibusPValue: math.NaN(),
	}
	for t := 1; t < n; t++ {
		s := math.Abs(score(x[t-1], x[t]))
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return Result{}, fmt.Errorf("%s score at %d is %g: %w", method, t, s, l1series.ErrNumericDegeneracy)
		}
		if s > res.Omnibus.Value {
			res.Omnibus.Value = s
		}
		if s > limit {
			res.Breaks = append(res.Breaks, Break{
				Index:          t,
				Statistic:      s,
				PValue:         math.NaN(),
				RangeStart:     t - 1,
				RangeEnd:       t + 1,
				RangeStatistic: s,
			})
		}
	}
	res.Rejected = len(res.Breaks) > 0
	return res, nil
}
