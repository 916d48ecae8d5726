// Package pipeline schedules a detection run over a series: it selects the
// kernel, fixes the corrected significance level, fans row-band tiles out
// to a bounded worker pool and assembles the products.
//
// Workers share only read-only inputs (series, kernel, threshold table) and
// write into disjoint slots of a preallocated outcome slice. Cancellation is
// observed between tiles.
package pipeline
