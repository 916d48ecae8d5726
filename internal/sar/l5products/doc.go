// Package l5products owns Layer 5 (Products) of the SAR change data model:
// aggregating per-pixel detection outcomes into grid-aligned rasters and
// the raw change-record list.
//
// Rasters are flat row-major slices with len == Width*Height. Pixels whose
// samples failed validation carry the Invalid* sentinels and a Fault on
// their record; they are never reported as "no change".
//
// Dependency rule: L5 may depend on L1–L4, never on storage or transport.
package l5products
