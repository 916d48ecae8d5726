package l1series

import "errors"

// Error classes. Callers wrap these with context and test with errors.Is.
var (
	// ErrInvalidIntensity marks a non-positive or non-finite intensity, or a
	// covariance sample with an invalid diagonal or broken Hermitian symmetry.
	// It aborts one pixel, never the run.
	ErrInvalidIntensity = errors.New("invalid intensity")

	// ErrMalformedSeries marks a structural mismatch in the stack
	// (dimensions, ordering, length, look count). It is fatal for the run
	// and is reported before any per-pixel work starts.
	ErrMalformedSeries = errors.New("malformed series")

	// ErrNumericDegeneracy marks a non-positive-definite covariance or a
	// statistic that overflowed to a non-finite value. Handled like
	// ErrInvalidIntensity.
	ErrNumericDegeneracy = errors.New("numeric degeneracy")
)

// Fault classifies a per-pixel failure for the output products.
type Fault uint8

const (
	FaultNone Fault = iota
	FaultInvalidIntensity
	FaultNumericDegeneracy
)

// String returns the stable name used in exports and the database.
func (f Fault) String() string {
	switch f {
	case FaultNone:
		return "none"
	case FaultInvalidIntensity:
		return "invalid_intensity"
	case FaultNumericDegeneracy:
		return "numeric_degeneracy"
	default:
		return "unknown"
	}
}

// ParseFault is the inverse of Fault.String.
func ParseFault(s string) (Fault, bool) {
	switch s {
	case "none", "":
		return FaultNone, true
	case "invalid_intensity":
		return FaultInvalidIntensity, true
	case "numeric_degeneracy":
		return FaultNumericDegeneracy, true
	}
	return FaultNone, false
}

// FaultOf maps a per-pixel error onto its fault class. A nil error is
// FaultNone. Errors outside the per-pixel taxonomy are reported as
// FaultNumericDegeneracy so that they are never mistaken for "no change".
func FaultOf(err error) Fault {
	switch {
	case err == nil:
		return FaultNone
	case errors.Is(err, ErrInvalidIntensity):
		return FaultInvalidIntensity
	default:
		return FaultNumericDegeneracy
	}
}
