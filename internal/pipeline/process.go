package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"switchboard/internal/ledger"
	"switchboard/internal/logging"
	"switchboard/internal/services"
)

// processEntry runs one entry through the stage matching its status. The
// claim is a conditional status update, so losing a race with another worker
// is a quiet no-op rather than an error.
func (m *Manager) processEntry(ctx context.Context, workerLogger *slog.Logger, entry *ledger.Entry) error {
	st, ok := m.stageByStart[entry.Status]
	if !ok {
		workerLogger.Warn("no stage configured for status", logging.String("status", string(entry.Status)))
		m.waitOrShutdown(ctx, m.pollInterval)
		return nil
	}

	requestID := uuid.NewString()
	stageCtx := services.WithRequestID(services.WithStage(services.WithIdentity(ctx, entry.Identity), st.Name), requestID)
	stageLogger := logging.WithContext(stageCtx, workerLogger)
	// Handlers are shared across workers, so the request-scoped logger
	// travels on the context rather than through handler state.
	stageCtx = logging.NewContext(stageCtx, stageLogger)

	if err := m.claim(stageCtx, st, entry); err != nil {
		if errors.Is(err, ledger.ErrStaleState) {
			stageLogger.Debug("entry claimed by another worker", logging.String(logging.FieldIdentity, entry.Identity))
			return nil
		}
		m.setLastError(err)
		stageLogger.Error("failed to claim entry", logging.Error(err))
		return err
	}

	stageStart := time.Now()
	stageLogger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("source_file", entry.SourcePath),
	)

	execErr := m.executeWithRetry(stageCtx, stageLogger, st, entry)
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) {
			stageLogger.Debug("stage interrupted by shutdown")
			return execErr
		}
		m.setLastError(execErr)
		return execErr
	}

	entry.LastHeartbeat = nil
	entry.ErrorMessage = ""
	if err := m.store.Advance(stageCtx, entry, st.Processing, st.Done); err != nil {
		m.setLastError(err)
		stageLogger.Error("failed to persist stage result", logging.Error(err))
		return err
	}

	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(entry.Status)),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)

	if st.Done == ledger.StatusCompleted {
		m.notifyCompletion(stageCtx, entry)
	}
	return nil
}

// claim transitions the entry from the stage's start status into its
// processing status. Exactly one worker wins this write per entry.
func (m *Manager) claim(ctx context.Context, st StageDef, entry *ledger.Entry) error {
	now := time.Now().UTC()
	entry.LastStage = st.Name
	entry.ErrorMessage = ""
	entry.LastHeartbeat = &now
	return m.store.Advance(ctx, entry, st.Start, st.Processing)
}

// executeWithRetry runs the handler with a heartbeat loop alongside it,
// retrying transient failures with exponential backoff. Prepare runs on every
// attempt so a transiently unreadable input heals with the retry. Every
// transient failure consumes one persisted retry attempt; the ledger flips
// the entry to failed once the stage's ceiling is reached, which ends the
// retry loop.
func (m *Manager) executeWithRetry(ctx context.Context, stageLogger *slog.Logger, st StageDef, entry *ledger.Entry) error {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, entry.Identity)
	defer func() {
		hbCancel()
		hbWG.Wait()
	}()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Duration(m.cfg.Pipeline.BackoffInitialSeconds) * time.Second
	policy.MaxInterval = time.Duration(m.cfg.Pipeline.BackoffMaxSeconds) * time.Second
	policy.MaxElapsedTime = 0

	operation := func() error {
		err := st.Handler.Prepare(ctx, entry)
		if err == nil {
			err = st.Handler.Execute(ctx, entry)
		}
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}

		retryable := services.IsRetryable(err)
		updated, recErr := m.store.RecordFailure(ctx, entry.Identity, st.Name, services.Message(err), retryable, st.MaxAttempts)
		if recErr != nil {
			stageLogger.Error("failed to persist stage failure", logging.Error(recErr))
			return backoff.Permanent(err)
		}
		entry.RetryCounts = updated.RetryCounts
		entry.ErrorMessage = updated.ErrorMessage

		if updated.Status == ledger.StatusFailed {
			entry.Status = ledger.StatusFailed
			m.logStageFailure(stageLogger, st, entry, err)
			m.notifyFailure(ctx, st, entry)
			return backoff.Permanent(err)
		}

		stageLogger.Warn("stage attempt failed, retrying",
			logging.String(logging.FieldEventType, "stage_retry"),
			logging.Int("attempt", updated.RetryCount(st.Name)),
			logging.Int("max_attempts", st.MaxAttempts),
			logging.Error(err),
		)
		return err
	}

	return backoff.Retry(operation, backoff.WithContext(policy, ctx))
}

func (m *Manager) logStageFailure(stageLogger *slog.Logger, st StageDef, entry *ledger.Entry, stageErr error) {
	stageLogger.Error("stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String("error_message", entry.ErrorMessage),
		logging.Int("attempts", entry.RetryCount(st.Name)),
		logging.Error(stageErr),
	)
}

func (m *Manager) notifyFailure(ctx context.Context, st StageDef, entry *ledger.Entry) {
	if err := m.notifier.NotifyRecordingFailed(ctx, entry.Identity, st.Name, entry.ErrorMessage); err != nil {
		m.logger.Warn("failure notification failed", logging.Error(err))
	}
}

func (m *Manager) notifyCompletion(ctx context.Context, entry *ledger.Entry) {
	if entry.NeedsReview {
		if err := m.notifier.NotifyReviewNeeded(ctx, entry.Identity, entry.ReviewReason); err != nil {
			m.logger.Warn("review notification failed", logging.Error(err))
		}
	}
	if err := m.notifier.NotifyResponseReady(ctx, entry.Identity, entry.CallerPhone); err != nil {
		m.logger.Warn("completion notification failed", logging.Error(err))
	}
}
