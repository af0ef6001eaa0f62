package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidInput marks malformed stage input. Never retried.
	ErrInvalidInput = errors.New("invalid input")
	// ErrTransient marks external-service or network failures worth retrying.
	ErrTransient = errors.New("transient failure")
	// ErrUpstreamDomain marks a structured refusal from the orchestrator
	// collaborator (insufficient context, no applicable domain). Surfaced
	// distinctly so the pipeline can synthesize a fallback response.
	ErrUpstreamDomain = errors.New("upstream domain failure")
	ErrConfiguration  = errors.New("configuration error")
	ErrNotFound       = errors.New("not found")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRetryable reports whether the driver should consume a retry attempt for
// this error. Only transient failures qualify; invalid input, configuration
// problems, and orchestrator domain refusals never succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrUpstreamDomain),
		errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrNotFound):
		return false
	}
	return true
}

// IsUpstreamDomain reports whether the orchestrator refused the request for
// domain reasons rather than failing mechanically.
func IsUpstreamDomain(err error) bool {
	return errors.Is(err, ErrUpstreamDomain)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

// Message extracts the human-readable portion of a wrapped stage error for
// persistence in the ledger, without the sentinel prefix.
func Message(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, marker := range []error{ErrInvalidInput, ErrTransient, ErrUpstreamDomain, ErrConfiguration, ErrNotFound} {
		prefix := marker.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			return strings.TrimPrefix(msg, prefix)
		}
	}
	return msg
}
