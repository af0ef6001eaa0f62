// Package watcher discovers completed call recordings on disk and registers
// them with the ledger. Discovery is idempotent: a recording's identity is
// derived from its content, so rescans and daemon restarts never produce
// duplicate entries.
package watcher
