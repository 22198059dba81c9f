// Package aggregates owns transaction boundaries for invariant-critical quiz writes.
//
// Implementations here compose table-level repos from internal/data/repos so that each
// stage (progress save, ownership transfer, expiry purge) commits fully or not at all.
package aggregates
