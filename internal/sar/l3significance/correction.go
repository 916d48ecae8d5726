package l3significance

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// Correction selects the multiple-testing procedure applied across pixels.
type Correction uint8

const (
	CorrectionNone Correction = iota
	CorrectionBonferroni
	CorrectionFDR // Benjamini–Hochberg
)

func (c Correction) String() string {
	switch c {
	case CorrectionNone:
		return "none"
	case CorrectionBonferroni:
		return "bonferroni"
	case CorrectionFDR:
		return "fdr"
	default:
		return fmt.Sprintf("correction(%d)", uint8(c))
	}
}

// ParseCorrection accepts the configuration names none, bonferroni and fdr
// (case-insensitive; "bh" and "benjamini-hochberg" alias fdr).
func ParseCorrection(s string) (Correction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return CorrectionNone, nil
	case "bonferroni":
		return CorrectionBonferroni, nil
	case "fdr", "bh", "benjamini-hochberg":
		return CorrectionFDR, nil
	}
	return 0, fmt.Errorf("unknown correction %q (want none, bonferroni or fdr)", s)
}

// CheckCorrection enforces that only single-pixel runs may skip correction.
func CheckCorrection(c Correction, pixels int) error {
	if c == CorrectionNone && pixels > 1 {
		return fmt.Errorf("%w: %d pixels with correction %q", ErrCorrectionRequired, pixels, c)
	}
	return nil
}

// BonferroniAlpha returns the per-test level alpha/m.
func BonferroniAlpha(alpha float64, m int) float64 {
	if m <= 1 {
		return alpha
	}
	return alpha / float64(m)
}

// BenjaminiHochbergAlpha returns the per-test level that controls the false
// discovery rate at alpha: the largest sorted p(i) with p(i) ≤ iα/m, or
// α/m when no p-value qualifies. NaN p-values (pixels without a test) are
// excluded from m.
func BenjaminiHochbergAlpha(alpha float64, pvalues []float64) float64 {
	sorted := make([]float64, 0, len(pvalues))
	for _, p := range pvalues {
		if !math.IsNaN(p) {
			sorted = append(sorted, p)
		}
	}
	m := len(sorted)
	if m == 0 {
		return alpha
	}
	slices.Sort(sorted)

	threshold := alpha / float64(m)
	for i := m; i >= 1; i-- {
		if p := sorted[i-1]; p <= float64(i)*alpha/float64(m) {
			if p > threshold {
				threshold = p
			}
			break
		}
	}
	return threshold
}
