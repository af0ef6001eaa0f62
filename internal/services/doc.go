// Package services hosts shared plumbing for external-service clients:
// the error taxonomy used to classify stage failures and the context
// annotations carried through pipeline execution.
//
// Each external collaborator (transcription, orchestrator, synthesis) lives
// in its own subpackage and reports failures through the sentinel markers
// defined here so the pipeline driver can decide between retrying, failing
// the entry, or synthesizing a fallback response.
package services
