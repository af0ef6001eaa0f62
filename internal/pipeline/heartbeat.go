package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"switchboard/internal/ledger"
	"switchboard/internal/logging"
)

// HeartbeatMonitor keeps in-flight entries visibly alive and reclaims
// entries whose owner stopped heartbeating (crashed worker, killed daemon).
type HeartbeatMonitor struct {
	store    *ledger.Store
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store *ledger.Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		store:    store,
		logger:   logger,
		interval: interval,
		timeout:  timeout,
	}
}

// ReclaimStale rolls entries with expired heartbeats back to the start of
// their interrupted stage so another worker can pick them up.
func (h *HeartbeatMonitor) ReclaimStale(ctx context.Context, logger *slog.Logger) error {
	if h.timeout <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-h.timeout)
	reclaimed, err := h.store.ReclaimStaleProcessing(ctx, cutoff)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		logger.Info("reclaimed stale entries",
			logging.Int64("count", reclaimed),
			logging.String(logging.FieldEventType, "heartbeat_reclaim"),
		)
	}
	return nil
}

// StartLoop refreshes the heartbeat for one entry until the context is
// cancelled. Runs alongside the stage handler's Execute.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, identity string) {
	defer wg.Done()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	logger := h.logger.With(logging.String(logging.FieldComponent, "pipeline-heartbeat"))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateHeartbeat(ctx, identity); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				logger.Warn("heartbeat update failed",
					logging.String(logging.FieldIdentity, identity),
					logging.Error(err),
				)
			}
		}
	}
}
