// Package hash computes the checksums that frame store records.
package hash
