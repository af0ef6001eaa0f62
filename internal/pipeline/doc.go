// Package pipeline drives ledger entries through the processing stages.
// Workers claim entries with conditional status updates, heartbeat while a
// stage runs, and retry transient failures with exponential backoff until
// the per-stage attempt ceiling marks the entry failed. Because all progress
// lives in the ledger, a restarted daemon resumes exactly where it stopped.
package pipeline
