package watcher_test

import (
	"context"
	"path/filepath"
	"testing"

	"switchboard/internal/logging"
	"switchboard/internal/testsupport"
	"switchboard/internal/watcher"
)

func TestScanOnceWaitsForStableSize(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStableScans(2))
	store := testsupport.MustOpenStore(t, cfg)
	w := watcher.New(cfg, store, logging.NewNop())
	ctx := context.Background()

	path := filepath.Join(cfg.Paths.RecordingsDir, "call_+911234567890_morning.wav")
	testsupport.WriteFile(t, path, 2048)

	// First sighting starts tracking, second confirms once, third crosses
	// the two-scan stability threshold.
	for scan, want := range []int{0, 0, 1} {
		created, err := w.ScanOnce(ctx)
		if err != nil {
			t.Fatalf("ScanOnce %d failed: %v", scan, err)
		}
		if created != want {
			t.Fatalf("scan %d: expected %d new entries, got %d", scan, want, created)
		}
	}

	entries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one ledger entry, got %d", len(entries))
	}
	if entries[0].CallerPhone != "+911234567890" {
		t.Fatalf("expected caller phone from filename, got %q", entries[0].CallerPhone)
	}
	if entries[0].SourcePath != path {
		t.Fatalf("expected source path %q, got %q", path, entries[0].SourcePath)
	}
}

func TestScanOnceRestartsTrackingWhenFileGrows(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStableScans(1))
	store := testsupport.MustOpenStore(t, cfg)
	w := watcher.New(cfg, store, logging.NewNop())
	ctx := context.Background()

	path := filepath.Join(cfg.Paths.RecordingsDir, "growing.wav")
	testsupport.WriteFile(t, path, 1024)

	if created, err := w.ScanOnce(ctx); err != nil || created != 0 {
		t.Fatalf("first scan: created=%d err=%v", created, err)
	}

	// A still-uploading recording grows between scans; stability restarts.
	testsupport.WriteFile(t, path, 4096)
	if created, err := w.ScanOnce(ctx); err != nil || created != 0 {
		t.Fatalf("scan after growth: created=%d err=%v", created, err)
	}
	if created, err := w.ScanOnce(ctx); err != nil || created != 1 {
		t.Fatalf("scan after settle: created=%d err=%v", created, err)
	}
}

func TestScanOnceIgnoresOtherExtensions(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStableScans(1))
	store := testsupport.MustOpenStore(t, cfg)
	w := watcher.New(cfg, store, logging.NewNop())
	ctx := context.Background()

	testsupport.WriteFile(t, filepath.Join(cfg.Paths.RecordingsDir, "notes.txt"), 128)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.RecordingsDir, "upload.partial"), 128)

	for i := 0; i < 3; i++ {
		if created, err := w.ScanOnce(ctx); err != nil || created != 0 {
			t.Fatalf("scan %d: created=%d err=%v", i, created, err)
		}
	}
}

func TestScanOnceRegistersReusedFilenameAsNewCall(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStableScans(1))
	store := testsupport.MustOpenStore(t, cfg)
	w := watcher.New(cfg, store, logging.NewNop())
	ctx := context.Background()

	path := filepath.Join(cfg.Paths.RecordingsDir, "call_0001.wav")
	testsupport.WriteFile(t, path, 512)
	for i := 0; i < 2; i++ {
		if _, err := w.ScanOnce(ctx); err != nil {
			t.Fatalf("ScanOnce %d failed: %v", i, err)
		}
	}

	// The telephony writer reuses the filename for a different call. The new
	// content carries a new identity and must go through stabilization again.
	testsupport.WriteFile(t, path, 1024)
	created := 0
	for i := 0; i < 3; i++ {
		n, err := w.ScanOnce(ctx)
		if err != nil {
			t.Fatalf("rescan %d failed: %v", i, err)
		}
		created += n
	}
	if created != 1 {
		t.Fatalf("expected the rewritten file to be ledgered once, got %d", created)
	}

	entries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected two ledger entries for two distinct calls, got %d", len(entries))
	}
	if entries[0].Identity == entries[1].Identity {
		t.Fatalf("expected distinct identities, both are %q", entries[0].Identity)
	}
}

func TestRediscoveryAfterRestartIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStableScans(1))
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	path := filepath.Join(cfg.Paths.RecordingsDir, "persistent.wav")
	testsupport.WriteFile(t, path, 512)

	first := watcher.New(cfg, store, logging.NewNop())
	for i := 0; i < 2; i++ {
		if _, err := first.ScanOnce(ctx); err != nil {
			t.Fatalf("ScanOnce failed: %v", err)
		}
	}

	// A fresh watcher has no memory of previous scans, like after a daemon
	// restart. The content-derived identity keeps the ledger duplicate-free.
	second := watcher.New(cfg, store, logging.NewNop())
	for i := 0; i < 2; i++ {
		if created, err := second.ScanOnce(ctx); err != nil {
			t.Fatalf("rescan failed: %v", err)
		} else if created != 0 {
			t.Fatalf("expected no new entries on rescan, got %d", created)
		}
	}

	entries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one entry after restart, got %d", len(entries))
	}
}
