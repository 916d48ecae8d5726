// Package l3significance owns Layer 3 (Significance) of the SAR change data
// model: mapping test statistics and degrees of freedom to reject/accept
// decisions at a multiple-testing corrected significance level.
//
// Everything here is pure. A Table is built once per run and then shared
// read-only by every tile worker.
//
// Dependency rule: L3 may depend on L1 and L2, never on L4+.
package l3significance
