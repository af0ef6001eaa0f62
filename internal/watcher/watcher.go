package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"switchboard/internal/callerid"
	"switchboard/internal/config"
	"switchboard/internal/ledger"
	"switchboard/internal/logging"
)

// Watcher discovers completed call recordings and registers them in the
// ledger. A recording is treated as complete only once its size has held
// steady across the configured number of consecutive scans; emitting a file
// still being written would feed truncated audio to every downstream stage.
type Watcher struct {
	cfg    *config.Config
	store  *ledger.Store
	logger *slog.Logger

	pending map[string]*pendingFile
	seen    map[string]fileMark
}

type pendingFile struct {
	size    int64
	streak  int
	lastMod time.Time
}

// fileMark captures the size and mtime a path had when it was ledgered. A
// later mismatch means the telephony writer reused the filename for a new
// call, so the path must re-enter stabilization.
type fileMark struct {
	size    int64
	modTime time.Time
}

// New constructs a watcher over the configured recordings directory.
func New(cfg *config.Config, store *ledger.Store, logger *slog.Logger) *Watcher {
	return &Watcher{
		cfg:     cfg,
		store:   store,
		logger:  logging.NewComponentLogger(logger, "watcher"),
		pending: make(map[string]*pendingFile),
		seen:    make(map[string]fileMark),
	}
}

// Run watches until the context is cancelled. An unreachable directory is
// logged and retried on the next poll; the watcher never takes the daemon
// down. The inotify strategy still runs the poll loop underneath for
// catch-up and stability confirmation; events only shorten the latency.
func (w *Watcher) Run(ctx context.Context) error {
	interval := time.Duration(w.cfg.Watcher.PollInterval) * time.Second

	var wake <-chan struct{}
	if strings.EqualFold(w.cfg.Watcher.Strategy, "inotify") {
		events, err := watchDirEvents(ctx, w.cfg.Paths.RecordingsDir)
		if err != nil {
			w.logger.Warn("inotify unavailable, falling back to polling", logging.Error(err))
		} else {
			wake = events
		}
	}

	for {
		if _, err := w.ScanOnce(ctx); err != nil {
			w.logger.Warn("recording scan failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check recordings directory access"),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		case <-time.After(interval):
		}
	}
}

// ScanOnce performs one pass over the recordings directory and returns how
// many new ledger entries were created.
func (w *Watcher) ScanOnce(ctx context.Context) (int, error) {
	dirEntries, err := os.ReadDir(w.cfg.Paths.RecordingsDir)
	if err != nil {
		return 0, err
	}

	present := make(map[string]struct{}, len(dirEntries))
	created := 0
	for _, dirEntry := range dirEntries {
		if ctx.Err() != nil {
			return created, ctx.Err()
		}
		if dirEntry.IsDir() {
			continue
		}
		name := dirEntry.Name()
		if !w.matchesExtension(name) {
			continue
		}
		path := filepath.Join(w.cfg.Paths.RecordingsDir, name)
		present[path] = struct{}{}

		info, err := dirEntry.Info()
		if err != nil {
			w.logger.Debug("stat recording failed", logging.String("path", path), logging.Error(err))
			continue
		}

		// Identity is content-derived, so a ledgered path only stays
		// settled while the file on disk is the one we ledgered. A
		// reused filename carries a new call and must be re-stabilized.
		if mark, done := w.seen[path]; done {
			if mark.size == info.Size() && mark.modTime.Equal(info.ModTime()) {
				continue
			}
			delete(w.seen, path)
			w.logger.Info("recording path rewritten, tracking as new call", logging.String("path", path))
		}

		if !w.observeStable(path, info.Size(), info.ModTime()) {
			continue
		}

		if w.ingest(ctx, path, fileMark{size: info.Size(), modTime: info.ModTime()}) {
			created++
		}
	}

	// Files that vanished should not pin tracking state.
	for path := range w.pending {
		if _, ok := present[path]; !ok {
			delete(w.pending, path)
		}
	}
	for path := range w.seen {
		if _, ok := present[path]; !ok {
			delete(w.seen, path)
		}
	}

	return created, nil
}

// observeStable records one sighting and reports whether the file has held
// its size for enough consecutive scans to be considered complete.
func (w *Watcher) observeStable(path string, size int64, modTime time.Time) bool {
	tracked, ok := w.pending[path]
	if !ok || tracked.size != size {
		w.pending[path] = &pendingFile{size: size, streak: 0, lastMod: modTime}
		return false
	}
	tracked.streak++
	tracked.lastMod = modTime
	return tracked.streak >= w.cfg.Watcher.StableScans
}

func (w *Watcher) ingest(ctx context.Context, path string, mark fileMark) bool {
	identity, err := DeriveIdentity(path)
	if err != nil {
		w.logger.Warn("derive identity failed", logging.String("path", path), logging.Error(err))
		return false
	}

	caller := callerid.Resolve(path, w.cfg.Caller.DefaultPhone, w.cfg.Caller.DefaultLanguage)
	entry, created, err := w.store.CreateIfAbsent(ctx, identity, path, caller.Phone)
	if err != nil {
		w.logger.Error("register recording failed",
			logging.String("path", path),
			logging.String(logging.FieldIdentity, identity),
			logging.Error(err),
		)
		return false
	}

	w.seen[path] = mark
	delete(w.pending, path)

	if created {
		w.logger.Info("recording discovered",
			logging.String(logging.FieldEventType, "recording_discovered"),
			logging.String(logging.FieldIdentity, identity),
			logging.String("path", path),
			logging.String("caller_phone", caller.Phone),
		)
	} else {
		w.logger.Debug("recording already ledgered",
			logging.String(logging.FieldIdentity, entry.Identity),
			logging.String("path", path),
		)
	}
	return created
}

func (w *Watcher) matchesExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range w.cfg.Watcher.Extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
