package l2kernel

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/sarchange/internal/sar/l1series"
)

// hermitianTolerance is the relative asymmetry allowed between C[i,j] and
// conj(C[j,i]).
const hermitianTolerance = 1e-9

// checkHermitian validates a row-major p*p covariance block: real positive
// finite diagonal and conjugate symmetry.
func checkHermitian(c []complex128, p int) error {
	for i := 0; i < p; i++ {
		d := c[i*p+i]
		if !(real(d) > 0) || math.IsInf(real(d), 0) || math.Abs(imag(d)) > hermitianTolerance*real(d) {
			return fmt.Errorf("diagonal [%d,%d] = %v: %w", i, i, d, l1series.ErrInvalidIntensity)
		}
	}
	for i := 0; i < p; i++ {
		for j := i + 1; j < p; j++ {
			a, b := c[i*p+j], c[j*p+i]
			if cmplx.IsNaN(a) || cmplx.IsInf(a) || cmplx.IsNaN(b) || cmplx.IsInf(b) {
				return fmt.Errorf("off-diagonal [%d,%d] not finite: %w", i, j, l1series.ErrInvalidIntensity)
			}
			scale := math.Sqrt(real(c[i*p+i]) * real(c[j*p+j]))
			if cmplx.Abs(a-cmplx.Conj(b)) > hermitianTolerance*scale {
				return fmt.Errorf("[%d,%d]=%v and [%d,%d]=%v are not conjugate: %w",
					i, j, a, j, i, b, l1series.ErrInvalidIntensity)
			}
		}
	}
	return nil
}

// realify embeds a Hermitian p*p matrix A+iB into the symmetric 2p*2p real
// matrix [[A, −B], [B, A]], whose determinant is |det(A+iB)|².
func realify(c []complex128, p int) *mat.SymDense {
	m := mat.NewSymDense(2*p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			// Average the triangles so tiny asymmetry cannot bias the result.
			v := (c[i*p+j] + cmplx.Conj(c[j*p+i])) / 2
			re, im := real(v), imag(v)
			m.SetSym(i, j, re)
			m.SetSym(p+i, p+j, re)
			m.SetSym(i, p+j, -im)
			m.SetSym(j, p+i, im)
		}
	}
	return m
}

// logDet returns ln|C| for a Hermitian positive-definite p*p block. A failed
// Cholesky factorisation is reported as ErrNumericDegeneracy.
func logDet(c []complex128, p int) (float64, error) {
	if p == 1 {
		d := real(c[0])
		if !(d > 0) || math.IsInf(d, 0) {
			return 0, fmt.Errorf("1x1 covariance %v: %w", c[0], l1series.ErrNumericDegeneracy)
		}
		return math.Log(d), nil
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(realify(c, p)); !ok {
		return 0, fmt.Errorf("covariance is not positive definite: %w", l1series.ErrNumericDegeneracy)
	}
	ld := chol.LogDet() / 2
	if math.IsNaN(ld) || math.IsInf(ld, 0) {
		return 0, fmt.Errorf("log-determinant %g: %w", ld, l1series.ErrNumericDegeneracy)
	}
	return ld, nil
}
