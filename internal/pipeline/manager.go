package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"switchboard/internal/config"
	"switchboard/internal/ledger"
	"switchboard/internal/logging"
	"switchboard/internal/notifications"
	"switchboard/internal/stage"
)

// Manager coordinates ledger processing using the registered stage adapters.
// Multiple workers run concurrently; the ledger's conditional status updates
// guarantee each entry is claimed by exactly one of them.
type Manager struct {
	cfg          *config.Config
	store        *ledger.Store
	logger       *slog.Logger
	notifier     notifications.Service
	pollInterval time.Duration
	heartbeat    *HeartbeatMonitor

	stages        []StageDef
	stageByStart  map[ledger.Status]StageDef
	startStatuses []ledger.Status

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// NewManager constructs a pipeline manager with the standard stages.
func NewManager(cfg *config.Config, store *ledger.Store, logger *slog.Logger) *Manager {
	return NewManagerWithStages(cfg, store, logger, notifications.NewService(cfg), BuildStages(cfg, logger))
}

// NewManagerWithStages constructs a manager with explicit stages and
// notifier. Used by tests to substitute stage handlers.
func NewManagerWithStages(cfg *config.Config, store *ledger.Store, logger *slog.Logger, notifier notifications.Service, stages []StageDef) *Manager {
	m := &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logging.NewComponentLogger(logger, "pipeline"),
		notifier:     notifier,
		pollInterval: time.Duration(cfg.Pipeline.QueuePollInterval) * time.Second,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Pipeline.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Pipeline.HeartbeatTimeout)*time.Second,
		),
		stages:       stages,
		stageByStart: make(map[ledger.Status]StageDef, len(stages)),
	}
	for _, st := range stages {
		m.stageByStart[st.Start] = st
		m.startStatuses = append(m.startStatuses, st.Start)
	}
	return m
}

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("pipeline already running")
	}
	if len(m.stages) == 0 {
		return errors.New("pipeline stages not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	workers := m.cfg.Pipeline.Workers
	if workers <= 0 {
		workers = 1
	}
	m.wg.Add(workers + 1)
	for i := 0; i < workers; i++ {
		go m.runWorker(runCtx, i)
	}
	go m.runReclaimer(runCtx)
	return nil
}

// Stop terminates background processing and waits for completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Health checks every stage adapter and reports the unready ones first.
func (m *Manager) Health(ctx context.Context) []stage.Health {
	results := make([]stage.Health, 0, len(m.stages))
	for _, st := range m.stages {
		results = append(results, st.Handler.HealthCheck(ctx))
	}
	return results
}

// LastError returns the most recent processing error, for status surfaces.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) runWorker(ctx context.Context, id int) {
	defer m.wg.Done()
	logger := m.logger.With(logging.Int("worker", id))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		entry, err := m.store.NextForStatuses(ctx, m.startStatuses...)
		if err != nil {
			m.setLastError(err)
			logger.Error("failed to fetch next ledger entry",
				logging.Error(err),
				logging.String(logging.FieldEventType, "ledger_fetch_failed"),
				logging.String(logging.FieldErrorHint, "check ledger database access"),
			)
			m.waitOrShutdown(ctx, time.Duration(m.cfg.Pipeline.ErrorRetryInterval)*time.Second)
			continue
		}
		if entry == nil {
			m.waitOrShutdown(ctx, m.pollInterval)
			continue
		}

		if err := m.processEntry(ctx, logger, entry); err != nil && errors.Is(err, context.Canceled) {
			return
		}
	}
}

// runReclaimer periodically returns abandoned in-flight entries to their
// stage start so surviving workers can claim them.
func (m *Manager) runReclaimer(ctx context.Context) {
	defer m.wg.Done()
	interval := time.Duration(m.cfg.Pipeline.HeartbeatInterval) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.heartbeat.ReclaimStale(ctx, m.logger); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Warn("reclaim stale entries failed; stuck entries may remain",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check ledger database access"),
				)
			}
		}
	}
}

func (m *Manager) waitOrShutdown(ctx context.Context, wait time.Duration) {
	if wait <= 0 {
		wait = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}
