package watcher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const identityHashLen = 12

// DeriveIdentity computes the stable recording identity for a file: the
// sanitized base name joined with a truncated SHA-256 of the content.
// Independent watcher processes observing the same completed file derive the
// same identity, which is what makes CreateIfAbsent deduplicate across them.
func DeriveIdentity(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("hash recording: %w", err)
	}
	digest := hex.EncodeToString(hasher.Sum(nil))

	return sanitizeBase(path) + "-" + digest[:identityHashLen], nil
}

func sanitizeBase(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.ToLower(strings.TrimSpace(base))

	var b strings.Builder
	b.Grow(len(base))
	lastDash := false
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	cleaned := strings.Trim(b.String(), "-")
	if cleaned == "" {
		return "recording"
	}
	return cleaned
}
