// Package attribute implements the per-attribute value indexes: the filter
// index (value to posting list), the sort index (records ordered by value),
// and the unique indexes (value to a single record).
//
// All indexes accept canonical values (see value.Normalize) and are not safe
// for concurrent mutation. Readers work on published snapshots and writers
// on clones.
package attribute
