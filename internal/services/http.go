package services

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// ClassifyStatus maps an HTTP response status onto the stage error taxonomy.
// Throttling and server faults are retryable; any other client error means
// the request itself is bad and retrying cannot help.
func ClassifyStatus(stage string, resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Wrap(ErrTransient, stage, "request",
			fmt.Sprintf("service returned status %d: %s", resp.StatusCode, ReadErrorBody(resp.Body)), nil)
	default:
		return Wrap(ErrInvalidInput, stage, "request",
			fmt.Sprintf("service rejected request with status %d: %s", resp.StatusCode, ReadErrorBody(resp.Body)), nil)
	}
}

// ReadErrorBody extracts a short diagnostic snippet from an error response.
func ReadErrorBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil || len(data) == 0 {
		return "no detail"
	}
	return string(bytes.TrimSpace(data))
}
