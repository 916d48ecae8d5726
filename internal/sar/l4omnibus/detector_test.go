package l4omnibus

import (
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/sarchange/internal/sar/l1series"
	"github.com/banshee-data/sarchange/internal/sar/l2kernel"
	"github.com/banshee-data/sarchange/internal/sar/l3significance"
)

func prepare(t testing.TB, looks float64, values ...float64) *l2kernel.Prepared {
	t.Helper()
	k, err := l2kernel.New(l2kernel.FamilyGamma, looks, 1)
	require.NoError(t, err)
	p, err := k.Prepare(l1series.Sample{Channels: 1, Intensity: values})
	require.NoError(t, err)
	return p
}

func detector(t testing.TB, alpha float64, minSplit int) *Detector {
	t.Helper()
	tbl, err := l3significance.NewTable(alpha, 16)
	require.NoError(t, err)
	d, err := NewDetector(tbl, minSplit)
	require.NoError(t, err)
	return d
}

func TestDetect_LevelShift(t *testing.T) {
	t.Parallel()
	p := prepare(t, 16, 4.0, 4.2, 3.9, 9.8, 10.1)

	res, err := detector(t, 0.01, 0).Detect(p)
	require.NoError(t, err)

	assert.True(t, res.Rejected)
	assert.InDelta(t, 15.933248, res.Omnibus.Value, 1e-5)
	assert.Equal(t, 4, res.Omnibus.DF)
	assert.Less(t, res.OmnibusPValue, 0.01)
	require.Len(t, res.Breaks, 1)

	b := res.Breaks[0]
	assert.Equal(t, 3, b.Index, "change lies between acquisitions 2 and 3")
	assert.Equal(t, 0, b.RangeStart)
	assert.Equal(t, 5, b.RangeEnd)
	assert.Equal(t, 1, b.DF)
	assert.InDelta(t, 15.975994, b.Statistic, 1e-5)
	assert.Nil(t, b.Ties)
}

// At four looks the five-acquisition shift is too short to reach α=0.01
// (the omnibus statistic is ≈3.83 against a critical value of ≈13.28), but
// the split scan still ranks the genuine shift highest.
func TestDetect_LevelShiftAtFourLooks(t *testing.T) {
	t.Parallel()
	p := prepare(t, 4, 4.0, 4.2, 3.9, 9.8, 10.1)

	res, err := detector(t, 0.01, 0).Detect(p)
	require.NoError(t, err)
	assert.False(t, res.Rejected)
	assert.Empty(t, res.Breaks)
	assert.InDelta(t, 3.832047, res.Omnibus.Value, 1e-5)

	res, err = detector(t, 0.5, 0).Detect(p)
	require.NoError(t, err)
	assert.True(t, res.Rejected)
	assert.Equal(t, []int{3}, res.Indices())
}

func TestDetect_FlatSeries(t *testing.T) {
	t.Parallel()
	p := prepare(t, 4, 5.0, 5.1, 4.9, 5.05, 5.0)

	res, err := detector(t, 0.01, 0).Detect(p)
	require.NoError(t, err)
	assert.False(t, res.Rejected)
	assert.Zero(t, res.Count())
	assert.Greater(t, res.OmnibusPValue, 0.99)
}

func TestDetect_TieChoosesSmallestIndex(t *testing.T) {
	t.Parallel()
	p := prepare(t, 50, 1, 1, 9, 9, 1, 1)

	res, err := detector(t, 0.01, 0).Detect(p)
	require.NoError(t, err)
	require.True(t, res.Rejected)
	assert.Equal(t, []int{2, 4}, res.Indices())

	first := res.Breaks[0]
	assert.Equal(t, 2, first.Index)
	assert.Equal(t, []int{2, 4}, first.Ties)
	assert.Equal(t, 0, first.RangeStart)
	assert.Equal(t, 6, first.RangeEnd)

	second := res.Breaks[1]
	assert.Equal(t, 2, second.RangeStart, "second break comes from re-testing the right-hand side")
	assert.Equal(t, 6, second.RangeEnd)
	assert.Nil(t, second.Ties)
}

func TestDetect_LengthTwo(t *testing.T) {
	t.Parallel()
	d := detector(t, 0.05, 0)

	res, err := d.Detect(prepare(t, 4, 1, 10))
	require.NoError(t, err)
	require.True(t, res.Rejected)
	require.Len(t, res.Breaks, 1)
	assert.Equal(t, 1, res.Breaks[0].Index)
	assert.Equal(t, res.Omnibus.Value, res.Breaks[0].Statistic)
	assert.InDelta(t, 8.301833, res.Breaks[0].Statistic, 1e-5)

	res, err = d.Detect(prepare(t, 4, 1, 1.2))
	require.NoError(t, err)
	assert.False(t, res.Rejected)
	assert.Empty(t, res.Breaks)
}

func TestDetect_MinSplitStopsShortRanges(t *testing.T) {
	t.Parallel()
	p := prepare(t, 50, 1, 1, 9, 9, 1, 1)

	// The right-hand range [2,6) has length 4; a minimum of 5 leaves it untested.
	res, err := detector(t, 0.01, 5).Detect(p)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, res.Indices())
	assert.Equal(t, 5, detector(t, 0.01, 5).MinSplit())
	assert.Equal(t, DefaultMinSplit, detector(t, 0.01, 1).MinSplit())
}

func TestDetect_Idempotent(t *testing.T) {
	t.Parallel()
	d := detector(t, 0.05, 0)
	values := []float64{1.1, 0.9, 1.0, 3.2, 2.9, 3.1, 0.8, 1.2, 1.0, 0.9}

	a, err := d.Detect(prepare(t, 8, values...))
	require.NoError(t, err)
	b, err := d.Detect(prepare(t, 8, values...))
	require.NoError(t, err)

	if diff := cmp.Diff(a, b, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("Detect not deterministic (-first +second):\n%s", diff)
	}
	assert.True(t, a.Rejected)
	for i := 1; i < len(a.Breaks); i++ {
		assert.Less(t, a.Breaks[i-1].Index, a.Breaks[i].Index)
	}
}

func TestNewDetector_RequiresTable(t *testing.T) {
	t.Parallel()
	_, err := NewDetector(nil, 2)
	assert.Error(t, err)
}

// gammaSeries draws n intensities with mean scale[t] and the given looks.
func gammaSeries(rng *rand.Rand, looks float64, scale []float64) []float64 {
	out := make([]float64, len(scale))
	for t, s := range scale {
		g := distuv.Gamma{Alpha: looks, Beta: looks / s, Src: rng}
		out[t] = g.Rand()
	}
	return out
}

func TestOmnibus_FalsePositiveRateIsCalibrated(t *testing.T) {
	if testing.Short() {
		t.Skip("Monte Carlo calibration")
	}
	t.Parallel()

	const (
		trials = 4000
		looks  = 4.0
		alpha  = 0.05
	)
	rng := rand.New(rand.NewPCG(20240601, 7))
	d := detector(t, alpha, 0)
	flat := []float64{1, 1, 1, 1, 1, 1}

	rejected := 0
	for i := 0; i < trials; i++ {
		res, err := d.Detect(prepare(t, looks, gammaSeries(rng, looks, flat)...))
		require.NoError(t, err)
		if res.Rejected {
			rejected++
		}
	}
	rate := float64(rejected) / trials
	assert.InDelta(t, alpha, rate, 0.015, "false-positive rate %.4f", rate)
}

func TestDetect_PowerGrowsWithShift(t *testing.T) {
	if testing.Short() {
		t.Skip("Monte Carlo power")
	}
	t.Parallel()

	const (
		trials = 1000
		looks  = 4.0
		at     = 3
	)
	d := detector(t, 0.05, 0)
	recovered := func(factor float64, seed uint64) float64 {
		rng := rand.New(rand.NewPCG(seed, 11))
		scale := []float64{1, 1, 1, factor, factor, factor}
		hits := 0
		for i := 0; i < trials; i++ {
			res, err := d.Detect(prepare(t, looks, gammaSeries(rng, looks, scale)...))
			require.NoError(t, err)
			for _, b := range res.Breaks {
				if b.Index == at {
					hits++
					break
				}
			}
		}
		return float64(hits) / trials
	}

	var rates []float64
	for i, f := range []float64{1.5, 3, 6, 12} {
		rates = append(rates, recovered(f, uint64(100+i)))
	}
	for i := 1; i < len(rates); i++ {
		assert.Greater(t, rates[i], rates[i-1], "power must grow with shift size: %v", rates)
	}
	assert.Greater(t, rates[2], 0.7, "6x shift: %v", rates)
	assert.Greater(t, rates[3], 0.9, "12x shift: %v", rates)
}
