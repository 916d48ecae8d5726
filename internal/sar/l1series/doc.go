// Package l1series owns Layer 1 (Series) of the SAR change data model.
//
// Responsibilities: ingesting co-registered acquisitions into an aligned,
// immutable multi-temporal stack, structural validation, and the error
// taxonomy shared by the higher layers.
// Key types: Grid, Acquisition, Series, Sample, Fault.
//
// Dependency rule: L1 depends on nothing else in internal/sar.
// No statistics and no SQL are allowed in this package.
package l1series
