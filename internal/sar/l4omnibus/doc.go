// Package l4omnibus owns Layer 4 (Detection) of the SAR change data model:
// turning one pixel's prepared series into an ordered list of change points.
//
// Detector runs the omnibus test over the full series and, on rejection,
// localises the strongest single split, then re-tests each side. Pending
// ranges live on an explicit stack so long series never recurse.
//
// RatioDetector and DifferenceDetector are the simpler pairwise methods
// that compare consecutive acquisitions only.
//
// Dependency rule: L4 may depend on L1–L3, never on L5+.
package l4omnibus
