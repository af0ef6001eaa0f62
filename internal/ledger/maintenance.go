package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// List returns entries filtered by status set (or all entries when no status
// is provided), ordered by creation time.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Entry, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + entryColumns + ` FROM ledger_entries`
	orderClause := ` ORDER BY created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// NextForStatuses returns the oldest entry matching any of the provided
// statuses, nil when none match.
func (s *Store) NextForStatuses(ctx context.Context, statuses ...Status) (*Entry, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}

	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE status IN (` + placeholders + `) ORDER BY created_at LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, args...)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Stats returns a count of entries grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM ledger_entries GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("ledger stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates ledger state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch {
		case status == StatusDiscovered:
			health.Discovered += count
		case status == StatusFailed:
			health.Failed += count
		case status == StatusCompleted:
			health.Completed += count
		case IsProcessingStatus(status):
			health.Processing += count
		}
	}
	return health, nil
}

// ResetStuckProcessing returns in-flight entries to the start of their stage.
// Run at daemon startup so a crash mid-stage leaves nothing stranded.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE ledger_entries
         SET status = CASE status
             WHEN ? THEN ?
             WHEN ? THEN ?
             WHEN ? THEN ?
             WHEN ? THEN ?
             ELSE status
         END,
             last_heartbeat = NULL, updated_at = ?
         WHERE status IN (?, ?, ?, ?)`,
		StatusNormalizing, StatusDiscovered,
		StatusTranscribing, StatusNormalized,
		StatusDispatching, StatusTranscribed,
		StatusSynthesizing, StatusDispatched,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusNormalizing,
		StatusTranscribing,
		StatusDispatching,
		StatusSynthesizing,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck entries: %w", err)
	}
	return res.RowsAffected()
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight entry.
func (s *Store) UpdateHeartbeat(ctx context.Context, identity string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := retryOnBusy(ensureContext(ctx), func() error {
		_, err := s.db.ExecContext(
			ctx,
			`UPDATE ledger_entries SET last_heartbeat = ?, updated_at = ? WHERE identity = ?`,
			now,
			now,
			identity,
		)
		return err
	}); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleProcessing rolls entries whose heartbeats expired back to the
// start of their stage so another worker can pick them up.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE ledger_entries
        SET status = CASE status
            WHEN ? THEN ?
            WHEN ? THEN ?
            WHEN ? THEN ?
            WHEN ? THEN ?
            ELSE status
        END,
            last_heartbeat = NULL, updated_at = ?
        WHERE status IN (?, ?, ?, ?) AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusNormalizing, StatusDiscovered,
		StatusTranscribing, StatusNormalized,
		StatusDispatching, StatusTranscribed,
		StatusSynthesizing, StatusDispatched,
		now.Format(time.RFC3339Nano),
		StatusNormalizing,
		StatusTranscribing,
		StatusDispatching,
		StatusSynthesizing,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale entries: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed entries back to the start of the stage that
// failed. This is the explicit operator action that clears the error and the
// failed stage's retry count; it is the only permitted status regression.
func (s *Store) RetryFailed(ctx context.Context, identities ...string) (int64, error) {
	var (
		failed []*Entry
		err    error
	)
	if len(identities) == 0 {
		failed, err = s.List(ctx, StatusFailed)
		if err != nil {
			return 0, err
		}
	} else {
		for _, identity := range identities {
			entry, getErr := s.GetByIdentity(ctx, identity)
			if getErr != nil {
				return 0, getErr
			}
			if entry != nil && entry.Status == StatusFailed {
				failed = append(failed, entry)
			}
		}
	}

	var retried int64
	for _, entry := range failed {
		entry.Status = StageStartStatus(entry.LastStage)
		entry.ErrorMessage = ""
		entry.LastHeartbeat = nil
		if entry.RetryCounts != nil && entry.LastStage != "" {
			delete(entry.RetryCounts, entry.LastStage)
		}
		if err := s.Update(ctx, entry); err != nil {
			return retried, err
		}
		retried++
	}
	return retried, nil
}

// ClearCompleted removes only completed entries from the ledger.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM ledger_entries WHERE status = ?`, StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed removes only failed entries from the ledger.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM ledger_entries WHERE status = ?`, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear failed: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all entries from the ledger.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM ledger_entries`)
	if err != nil {
		return 0, fmt.Errorf("clear ledger: %w", err)
	}
	return res.RowsAffected()
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
