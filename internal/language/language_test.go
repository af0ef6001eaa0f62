package language_test

import (
	"testing"

	"switchboard/internal/language"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"hi", "hi"},
		{"hi-IN", "hi"},
		{"en-US", "en"},
		{"  EN ", "en"},
		{"", ""},
		{"12345", ""},
	}
	for _, tc := range cases {
		if got := language.Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeOr(t *testing.T) {
	if got := language.NormalizeOr("??", "hi"); got != "hi" {
		t.Fatalf("expected fallback hi, got %q", got)
	}
	if got := language.NormalizeOr("ta-IN", "hi"); got != "ta" {
		t.Fatalf("expected ta, got %q", got)
	}
}

func TestDisplayName(t *testing.T) {
	if got := language.DisplayName("hi"); got != "Hindi" {
		t.Fatalf("expected Hindi, got %q", got)
	}
}
