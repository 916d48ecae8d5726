package l3significance

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	// ErrInvalidAlpha is returned for a significance level outside (0, 1).
	ErrInvalidAlpha = errors.New("significance level must be in (0, 1)")

	// ErrCorrectionRequired is returned when a multi-pixel run is configured
	// without a multiple-testing correction.
	ErrCorrectionRequired = errors.New("multiple-testing correction is required for multi-pixel runs")
)

// ValidateAlpha checks that alpha is a usable significance level.
func ValidateAlpha(alpha float64) error {
	if !(alpha > 0 && alpha < 1) {
		return fmt.Errorf("%w: got %g", ErrInvalidAlpha, alpha)
	}
	return nil
}

// CriticalValue returns the χ² value at or above which a statistic with df
// degrees of freedom rejects at level alpha. It is computed from the upper
// tail directly so very small corrected levels keep full precision.
// Non-positive df never rejects (+Inf).
func CriticalValue(df int, alpha float64) float64 {
	if df <= 0 || math.IsNaN(alpha) {
		return math.Inf(1)
	}
	if alpha <= 0 {
		return math.Inf(1)
	}
	if alpha >= 1 {
		return 0
	}
	return 2 * mathext.GammaIncRegCompInv(float64(df)/2, alpha)
}

// PValue returns the asymptotic χ² upper-tail probability of stat.
func PValue(stat float64, df int) float64 {
	if df <= 0 || math.IsNaN(stat) {
		return math.NaN()
	}
	if stat <= 0 {
		return 1
	}
	return distuv.ChiSquared{K: float64(df)}.Survival(stat)
}

// Reject reports whether stat is significant at level alpha.
func Reject(stat float64, df int, alpha float64) bool {
	return stat >= CriticalValue(df, alpha)
}

// Table caches critical values for one corrected level.
// It is immutable after NewTable and safe for concurrent use.
type Table struct {
	alpha    float64
	critical []float64 // index df
}

// NewTable precomputes critical values for df in [1, maxDF].
func NewTable(alpha float64, maxDF int) (*Table, error) {
	if err := ValidateAlpha(alpha); err != nil {
		return nil, err
	}
	if maxDF < 1 {
		maxDF = 1
	}
	t := &Table{alpha: alpha, critical: make([]float64, maxDF+1)}
	t.critical[0] = math.Inf(1)
	for df := 1; df <= maxDF; df++ {
		t.critical[df] = CriticalValue(df, alpha)
	}
	return t, nil
}

// Alpha returns the corrected significance level the table was built for.
func (t *Table) Alpha() float64 { return t.alpha }

// MaxDF returns the largest precomputed degrees of freedom.
func (t *Table) MaxDF() int { return len(t.critical) - 1 }

// Critical returns the critical value for df, computing it when df lies
// outside the precomputed range.
func (t *Table) Critical(df int) float64 {
	if df >= 0 && df < len(t.critical) {
		return t.critical[df]
	}
	return CriticalValue(df, t.alpha)
}

// Reject reports whether stat is significant. Statistics within rounding
// of the critical value are settled on the p-value so that a level taken
// from an observed p-value (Benjamini–Hochberg) rejects that observation.
func (t *Table) Reject(stat float64, df int) bool {
	crit := t.Critical(df)
	if stat >= crit {
		return true
	}
	if math.IsInf(crit, 1) || stat < crit*(1-1e-9) {
		return false
	}
	return PValue(stat, df) <= t.alpha
}
