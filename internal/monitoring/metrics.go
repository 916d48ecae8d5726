package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pixel outcome labels.
const (
	OutcomeChanged           = "changed"
	OutcomeUnchanged         = "unchanged"
	OutcomeInvalidIntensity  = "invalid_intensity"
	OutcomeNumericDegeneracy = "numeric_degeneracy"
)

// Metrics are the detection-run counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	TilesProcessed prometheus.Counter
	Pixels         *prometheus.CounterVec
	RunDuration    *prometheus.HistogramVec
	Breaks         prometheus.Counter
}

// NewMetrics registers the detection metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TilesProcessed: f.NewCounter(prometheus.CounterOpts{
			Name: "sarchange_tiles_processed_total",
			Help: "Row-band tiles completed by detection workers",
		}),
		Pixels: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sarchange_pixels_total",
			Help: "Pixels processed by outcome",
		}, []string{"outcome"}),
		RunDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sarchange_run_duration_seconds",
			Help:    "Detection run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		}, []string{"method", "result"}),
		Breaks: f.NewCounter(prometheus.CounterOpts{
			Name: "sarchange_breaks_total",
			Help: "Change points localised across all pixels",
		}),
	}
}

// TileDone records one finished tile.
func (m *Metrics) TileDone() {
	if m == nil {
		return
	}
	m.TilesProcessed.Inc()
}

// PixelOutcomes adds per-outcome pixel counts and the number of breaks.
func (m *Metrics) PixelOutcomes(changed, unchanged, invalidIntensity, numericDegeneracy, breaks int) {
	if m == nil {
		return
	}
	m.Pixels.WithLabelValues(OutcomeChanged).Add(float64(changed))
	m.Pixels.WithLabelValues(OutcomeUnchanged).Add(float64(unchanged))
	m.Pixels.WithLabelValues(OutcomeInvalidIntensity).Add(float64(invalidIntensity))
	m.Pixels.WithLabelValues(OutcomeNumericDegeneracy).Add(float64(numericDegeneracy))
	m.Breaks.Add(float64(breaks))
}

// ObserveRun records the wall-clock duration of a run.
func (m *Metrics) ObserveRun(method, result string, seconds float64) {
	if m == nil {
		return
	}
	m.RunDuration.WithLabelValues(method, result).Observe(seconds)
}
