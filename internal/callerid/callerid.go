// Package callerid derives caller context from recording filenames.
//
// The telephony process names recordings call_<phone>_<sequence>.<ext>; when
// a filename does not follow that pattern the configured default phone is
// used so the orchestrator still receives a caller profile to resolve.
package callerid

import (
	"path/filepath"
	"regexp"
	"strings"
)

var phonePattern = regexp.MustCompile(`(?i)^call[_-](\+?\d{6,15})[_-]`)

// Context carries the caller attributes forwarded to the orchestrator.
type Context struct {
	Phone    string `json:"phone"`
	Language string `json:"language,omitempty"`
}

// PhoneFromFilename extracts the caller phone embedded in a recording
// filename, or empty when the name carries none.
func PhoneFromFilename(path string) string {
	base := filepath.Base(strings.TrimSpace(path))
	match := phonePattern.FindStringSubmatch(base)
	if match == nil {
		return ""
	}
	return match[1]
}

// Resolve builds the caller context for a recording, falling back to the
// configured defaults when the filename carries no phone.
func Resolve(path, defaultPhone, defaultLanguage string) Context {
	phone := PhoneFromFilename(path)
	if phone == "" {
		phone = strings.TrimSpace(defaultPhone)
	}
	return Context{
		Phone:    phone,
		Language: strings.TrimSpace(defaultLanguage),
	}
}
