package watcher_test

import (
	"path/filepath"
	"strings"
	"testing"

	"switchboard/internal/testsupport"
	"switchboard/internal/watcher"
)

func TestDeriveIdentityIsStable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Call_+911234567890_Morning.wav")
	testsupport.WriteFile(t, path, 1024)

	first, err := watcher.DeriveIdentity(path)
	if err != nil {
		t.Fatalf("DeriveIdentity failed: %v", err)
	}
	second, err := watcher.DeriveIdentity(path)
	if err != nil {
		t.Fatalf("DeriveIdentity failed: %v", err)
	}
	if first != second {
		t.Fatalf("identity not deterministic: %q vs %q", first, second)
	}
	if !strings.HasPrefix(first, "call-911234567890-morning-") {
		t.Fatalf("unexpected sanitized prefix: %q", first)
	}
}

func TestDeriveIdentityDependsOnContent(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "same_name.wav")
	testsupport.WriteFile(t, a, 100)
	first, err := watcher.DeriveIdentity(a)
	if err != nil {
		t.Fatalf("DeriveIdentity failed: %v", err)
	}

	testsupport.WriteFile(t, a, 200)
	second, err := watcher.DeriveIdentity(a)
	if err != nil {
		t.Fatalf("DeriveIdentity failed: %v", err)
	}
	if first == second {
		t.Fatal("different content should produce different identities")
	}
}

func TestDeriveIdentityMissingFile(t *testing.T) {
	if _, err := watcher.DeriveIdentity(filepath.Join(t.TempDir(), "absent.wav")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
