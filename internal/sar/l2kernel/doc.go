// Package l2kernel owns Layer 2 (Kernel) of the SAR change data model:
// the likelihood-ratio test that a contiguous run of acquisitions shares one
// underlying distribution.
//
// Two closed variants exist, chosen once per run: FamilyGamma for scalar
// intensity (gamma distributed with shape equal to the look count) and
// FamilyWishart for p-channel covariance samples (complex Wishart). Both
// evaluate
//
//	ln Q = n·[ pN ln N − p Σ m_g ln m_g + Σ m_g ln|S_g| − N ln|S| ]
//
// for groups g of m_g acquisitions with sums S_g, and report −2ρ ln Q with
// Box's small-sample factor ρ and (g−1)p² degrees of freedom.
//
// Dependency rule: L2 may depend on L1, never on L3+.
package l2kernel
