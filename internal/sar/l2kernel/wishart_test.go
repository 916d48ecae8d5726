package l2kernel

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sarchange/internal/sar/l1series"
)

func testTime(day int) time.Time {
	return time.Date(2023, time.June, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 6*day)
}

func diag2(a, b float64) []complex128 {
	return []complex128{complex(a, 0), 0, 0, complex(b, 0)}
}

func TestLogDet(t *testing.T) {
	t.Parallel()

	ld, err := logDet([]complex128{2, complex(1, 1), complex(1, -1), 3}, 2)
	require.NoError(t, err)
	assert.InDelta(t, math.Log(4), ld, 1e-12)

	ld, err = logDet([]complex128{complex(2.5, 0)}, 1)
	require.NoError(t, err)
	assert.InDelta(t, math.Log(2.5), ld, 1e-15)

	ld, err = logDet([]complex128{
		4, 0, 0,
		0, 2, complex(0, 1),
		0, complex(0, -1), 1,
	}, 3)
	require.NoError(t, err)
	assert.InDelta(t, math.Log(4*(2*1-1)), ld, 1e-12)
}

func TestLogDet_NotPositiveDefinite(t *testing.T) {
	t.Parallel()
	_, err := logDet([]complex128{1, 2, 2, 1}, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, l1series.ErrNumericDegeneracy), "got %v", err)
}

func TestCheckHermitian(t *testing.T) {
	t.Parallel()
	assert.NoError(t, checkHermitian([]complex128{2, complex(1, 1), complex(1, -1), 3}, 2))

	for name, c := range map[string][]complex128{
		"asymmetric":       {1, 0.5, 0.1, 1},
		"not conjugate":    {1, complex(0, 0.5), complex(0, 0.5), 1},
		"zero diagonal":    {0, 0, 0, 1},
		"complex diagonal": {complex(1, 0.5), 0, 0, 1},
		"nan off-diagonal": {1, complex(math.NaN(), 0), complex(math.NaN(), 0), 1},
	} {
		t.Run(name, func(t *testing.T) {
			err := checkHermitian(c, 2)
			require.Error(t, err)
			assert.True(t, errors.Is(err, l1series.ErrInvalidIntensity), "got %v", err)
		})
	}
}

// A diagonal covariance factorises into independent channels, so the
// Wishart log-likelihood ratio must equal the sum of per-channel gamma ones.
func TestWishart_DiagonalMatchesGammaSum(t *testing.T) {
	t.Parallel()
	hh := []float64{1.0, 1.2, 0.9, 3.1, 2.8}
	hv := []float64{0.2, 0.25, 0.22, 0.21, 0.6}

	cov := make([]complex128, 0, 4*len(hh))
	for i := range hh {
		cov = append(cov, diag2(hh[i], hv[i])...)
	}
	k, err := New(FamilyWishart, 6, 2)
	require.NoError(t, err)
	w, err := k.Prepare(l1series.Sample{Channels: 2, Covariance: cov})
	require.NoError(t, err)

	bounds := []int{0, 2, 5}
	ws, err := w.Groups(bounds)
	require.NoError(t, err)
	a, err := gammaPrepared(t, 6, hh...).Groups(bounds)
	require.NoError(t, err)
	b, err := gammaPrepared(t, 6, hv...).Groups(bounds)
	require.NoError(t, err)

	assert.InDelta(t, a.LogQ+b.LogQ, ws.LogQ, 1e-9)
	assert.Equal(t, 4, ws.DF)

	wantRho := 1 - 7.0/12.0*(1.0/(6*2)+1.0/(6*3)-1.0/(6*5))
	assert.InDelta(t, wantRho, ws.Rho, 1e-12)
	assert.InDelta(t, -2*wantRho*ws.LogQ, ws.Value, 1e-9)
}

func TestWishart_OmnibusDF(t *testing.T) {
	t.Parallel()
	cov := []complex128{}
	for i := 0; i < 4; i++ {
		cov = append(cov, 2, complex(0.3, 0.1), complex(0.3, -0.1), 1)
	}
	k, err := New(FamilyWishart, 8, 2)
	require.NoError(t, err)
	p, err := k.Prepare(l1series.Sample{Channels: 2, Covariance: cov})
	require.NoError(t, err)

	got, err := p.Omnibus(0, 4)
	require.NoError(t, err)
	assert.Equal(t, 12, got.DF)
	assert.InDelta(t, 0, got.Value, 1e-9)
}

func TestWishart_PrepareFaults(t *testing.T) {
	t.Parallel()
	k, err := New(FamilyWishart, 4, 2)
	require.NoError(t, err)

	_, err = k.Prepare(l1series.Sample{Channels: 2, Covariance: append(diag2(1, 1), 1, 2, 2, 1)})
	assert.True(t, errors.Is(err, l1series.ErrNumericDegeneracy), "got %v", err)

	_, err = k.Prepare(l1series.Sample{Channels: 2, Covariance: append(diag2(1, 1), diag2(-1, 1)...)})
	assert.True(t, errors.Is(err, l1series.ErrInvalidIntensity), "got %v", err)

	_, err = k.Prepare(l1series.Sample{Channels: 3, Covariance: make([]complex128, 18)})
	assert.True(t, errors.Is(err, l1series.ErrMalformedSeries), "got %v", err)
}

func TestForSeries_Wishart(t *testing.T) {
	t.Parallel()
	pol := []string{"HH", "HV"}
	s, err := l1series.New(l1series.Grid{Width: 1, Height: 1}, []l1series.Acquisition{
		{Time: testTime(0), Polarizations: pol, Looks: 5, Covariance: diag2(1, 0.2)},
		{Time: testTime(1), Polarizations: pol, Looks: 5, Covariance: diag2(1.1, 0.3)},
	})
	require.NoError(t, err)

	k, err := ForSeries(s, 0)
	require.NoError(t, err)
	assert.Equal(t, FamilyWishart, k.Family())
	assert.Equal(t, 2, k.Channels())
}
