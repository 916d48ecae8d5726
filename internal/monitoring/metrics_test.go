package monitoring

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.TileDone()
	m.TileDone()
	m.PixelOutcomes(3, 10, 1, 2, 5)
	m.ObserveRun("omnibus", "ok", 0.25)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TilesProcessed))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Pixels.WithLabelValues(OutcomeChanged)))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.Pixels.WithLabelValues(OutcomeUnchanged)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Pixels.WithLabelValues(OutcomeInvalidIntensity)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Pixels.WithLabelValues(OutcomeNumericDegeneracy)))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.Breaks))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RunDuration))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()
	var m *Metrics
	m.TileDone()
	m.PixelOutcomes(1, 1, 1, 1, 1)
	m.ObserveRun("ratio", "ok", 1)
}

func TestNewMetrics_DuplicateRegistrationPanics(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	assert.Panics(t, func() { NewMetrics(reg) })
}
