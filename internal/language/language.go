package language

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Normalize canonicalizes a language code to its BCP-47 base ("hi", "en").
// Unparseable input yields the empty string.
func Normalize(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return ""
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return ""
	}
	return base.String()
}

// NormalizeOr canonicalizes code, falling back when it cannot be parsed.
func NormalizeOr(code, fallback string) string {
	if normalized := Normalize(code); normalized != "" {
		return normalized
	}
	return Normalize(fallback)
}

// DisplayName returns an English display name ("Hindi") for logs and
// operator output. Unparseable codes are returned unchanged.
func DisplayName(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	name := display.English.Languages().Name(tag)
	if name == "" {
		return code
	}
	return name
}
