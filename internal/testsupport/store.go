package testsupport

import (
	"context"
	"testing"

	"switchboard/internal/config"
	"switchboard/internal/ledger"
)

// MustOpenStore opens a ledger.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewEntry registers a recording for tests using the provided store.
func NewEntry(t testing.TB, store *ledger.Store, identity, sourcePath string) *ledger.Entry {
	t.Helper()

	entry, created, err := store.CreateIfAbsent(context.Background(), identity, sourcePath, "+910000000000")
	if err != nil {
		t.Fatalf("store.CreateIfAbsent: %v", err)
	}
	if !created {
		t.Fatalf("entry %q already existed", identity)
	}
	return entry
}
