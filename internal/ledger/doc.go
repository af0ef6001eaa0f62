// Package ledger persists per-recording pipeline state in SQLite and is the
// single source of truth for how far each call recording has progressed.
//
// All cross-worker coordination happens here: CreateIfAbsent relies on the
// identity UNIQUE constraint to deduplicate concurrent watchers, and Advance
// applies a compare-and-swap on the status column so two drivers racing the
// same entry produce exactly one winner. No other locking exists anywhere in
// the coordinator.
package ledger
