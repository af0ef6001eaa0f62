package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CreateIfAbsent inserts a discovered entry for the identity unless one
// already exists. The UNIQUE constraint makes the insert atomic under
// concurrent watchers; the bool reports whether this call created the entry.
func (s *Store) CreateIfAbsent(ctx context.Context, identity, sourcePath, callerPhone string) (*Entry, bool, error) {
	if identity == "" {
		return nil, false, errors.New("identity is required")
	}
	if sourcePath == "" {
		return nil, false, errors.New("source path is required")
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO ledger_entries (
            identity, source_path, caller_phone, status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(identity) DO NOTHING`,
		identity,
		sourcePath,
		nullableString(callerPhone),
		StatusDiscovered,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert entry: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	entry, err := s.GetByIdentity(ctx, identity)
	if err != nil {
		return nil, false, err
	}
	if entry == nil {
		return nil, false, fmt.Errorf("entry %q vanished after insert", identity)
	}
	return entry, affected > 0, nil
}

// GetByIdentity fetches a ledger entry by recording identity, nil when absent.
func (s *Store) GetByIdentity(ctx context.Context, identity string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE identity = ?`, identity)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return entry, nil
}

// GetByID fetches a ledger entry by row identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return entry, nil
}

// Advance moves the entry from one status to the next, persisting all
// mutable fields (artifact references, stage results) in the same write.
// The update only applies while the stored status still equals from; a raced
// entry yields ErrStaleState, forcing the caller to re-read. Two drivers
// racing the same transition therefore produce exactly one success.
func (s *Store) Advance(ctx context.Context, entry *Entry, from, to Status) error {
	if entry == nil {
		return errors.New("entry is nil")
	}
	if !ValidTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	entry.Status = to
	entry.UpdatedAt = time.Now().UTC()

	res, err := s.execWithRetry(
		ctx,
		`UPDATE ledger_entries
         SET status = ?, last_stage = ?, caller_phone = ?, normalized_file = ?,
             transcript_text = ?, detected_language = ?, confidence = ?,
             answer_text = ?, target_language = ?, response_file = ?,
             retry_counts = ?, error_message = ?, needs_review = ?,
             review_reason = ?, updated_at = ?, last_heartbeat = ?
         WHERE identity = ? AND status = ?`,
		to,
		nullableString(entry.LastStage),
		nullableString(entry.CallerPhone),
		nullableString(entry.NormalizedFile),
		nullableString(entry.TranscriptText),
		nullableString(entry.DetectedLanguage),
		entry.Confidence,
		nullableString(entry.AnswerText),
		nullableString(entry.TargetLanguage),
		nullableString(entry.ResponseFile),
		marshalRetryCounts(entry.RetryCounts),
		nullableString(entry.ErrorMessage),
		boolToInt(entry.NeedsReview),
		nullableString(entry.ReviewReason),
		entry.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(entry.LastHeartbeat),
		entry.Identity,
		from,
	)
	if err != nil {
		entry.Status = from
		return fmt.Errorf("advance entry: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		entry.Status = from
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		entry.Status = from
		return fmt.Errorf("advance %s from %s to %s: %w", entry.Identity, from, to, ErrStaleState)
	}
	return nil
}

// RecordFailure persists a stage failure. Retryable failures consume one
// retry attempt; the entry transitions to failed once the per-stage ceiling
// is exhausted or immediately for non-retryable errors, preserving the error
// message for operator inspection. While attempts remain the entry keeps its
// in-flight status so the owning worker can retry in place.
func (s *Store) RecordFailure(ctx context.Context, identity, stage, message string, retryable bool, ceiling int) (*Entry, error) {
	entry, err := s.GetByIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("record failure: entry %q not found", identity)
	}

	current := entry.Status
	counts := make(map[string]int, len(entry.RetryCounts)+1)
	for k, v := range entry.RetryCounts {
		counts[k] = v
	}
	if retryable {
		counts[stage]++
	}
	entry.RetryCounts = counts
	entry.LastStage = stage
	entry.ErrorMessage = message

	exhausted := retryable && ceiling > 0 && counts[stage] >= ceiling
	if !retryable || exhausted {
		entry.Status = StatusFailed
		entry.LastHeartbeat = nil
	}
	entry.UpdatedAt = time.Now().UTC()

	res, err := s.execWithRetry(
		ctx,
		`UPDATE ledger_entries
         SET status = ?, last_stage = ?, retry_counts = ?, error_message = ?,
             updated_at = ?, last_heartbeat = ?
         WHERE identity = ? AND status = ?`,
		entry.Status,
		nullableString(entry.LastStage),
		marshalRetryCounts(entry.RetryCounts),
		nullableString(entry.ErrorMessage),
		entry.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(entry.LastHeartbeat),
		identity,
		current,
	)
	if err != nil {
		return nil, fmt.Errorf("record failure: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("record failure for %s: %w", identity, ErrStaleState)
	}
	return entry, nil
}

// Update persists mutable entry fields without a status transition. Used by
// operator-facing maintenance; pipeline code goes through Advance.
func (s *Store) Update(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return errors.New("entry is nil")
	}
	entry.UpdatedAt = time.Now().UTC()
	_, err := s.execWithRetry(
		ctx,
		`UPDATE ledger_entries
         SET status = ?, last_stage = ?, caller_phone = ?, normalized_file = ?,
             transcript_text = ?, detected_language = ?, confidence = ?,
             answer_text = ?, target_language = ?, response_file = ?,
             retry_counts = ?, error_message = ?, needs_review = ?,
             review_reason = ?, updated_at = ?, last_heartbeat = ?
         WHERE identity = ?`,
		entry.Status,
		nullableString(entry.LastStage),
		nullableString(entry.CallerPhone),
		nullableString(entry.NormalizedFile),
		nullableString(entry.TranscriptText),
		nullableString(entry.DetectedLanguage),
		entry.Confidence,
		nullableString(entry.AnswerText),
		nullableString(entry.TargetLanguage),
		nullableString(entry.ResponseFile),
		marshalRetryCounts(entry.RetryCounts),
		nullableString(entry.ErrorMessage),
		boolToInt(entry.NeedsReview),
		nullableString(entry.ReviewReason),
		entry.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(entry.LastHeartbeat),
		entry.Identity,
	)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	return nil
}

const entryColumns = "id, identity, source_path, caller_phone, status, last_stage, normalized_file, transcript_text, detected_language, confidence, answer_text, target_language, response_file, retry_counts, error_message, needs_review, review_reason, created_at, updated_at, last_heartbeat"

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		id               int64
		identity         string
		sourcePath       string
		callerPhone      sql.NullString
		statusStr        string
		lastStage        sql.NullString
		normalizedFile   sql.NullString
		transcriptText   sql.NullString
		detectedLanguage sql.NullString
		confidence       sql.NullFloat64
		answerText       sql.NullString
		targetLanguage   sql.NullString
		responseFile     sql.NullString
		retryCounts      sql.NullString
		errorMessage     sql.NullString
		needsReview      sql.NullInt64
		reviewReason     sql.NullString
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
		lastHeartbeatRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&identity,
		&sourcePath,
		&callerPhone,
		&statusStr,
		&lastStage,
		&normalizedFile,
		&transcriptText,
		&detectedLanguage,
		&confidence,
		&answerText,
		&targetLanguage,
		&responseFile,
		&retryCounts,
		&errorMessage,
		&needsReview,
		&reviewReason,
		&createdRaw,
		&updatedRaw,
		&lastHeartbeatRaw,
	); err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:               id,
		Identity:         identity,
		SourcePath:       sourcePath,
		CallerPhone:      callerPhone.String,
		Status:           Status(statusStr),
		LastStage:        lastStage.String,
		NormalizedFile:   normalizedFile.String,
		TranscriptText:   transcriptText.String,
		DetectedLanguage: detectedLanguage.String,
		Confidence:       confidence.Float64,
		AnswerText:       answerText.String,
		TargetLanguage:   targetLanguage.String,
		ResponseFile:     responseFile.String,
		ErrorMessage:     errorMessage.String,
		ReviewReason:     reviewReason.String,
	}
	if needsReview.Valid {
		entry.NeedsReview = needsReview.Int64 != 0
	}
	entry.RetryCounts = unmarshalRetryCounts(retryCounts.String)

	if created, err := parseTimeString(createdRaw.String); err == nil {
		entry.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		entry.UpdatedAt = updated
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			entry.LastHeartbeat = &heartbeat
		}
	}
	return entry, nil
}

func marshalRetryCounts(counts map[string]int) any {
	if len(counts) == 0 {
		return nil
	}
	data, err := json.Marshal(counts)
	if err != nil {
		return nil
	}
	return string(data)
}

func unmarshalRetryCounts(raw string) map[string]int {
	if raw == "" {
		return nil
	}
	counts := make(map[string]int)
	if err := json.Unmarshal([]byte(raw), &counts); err != nil {
		return nil
	}
	return counts
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
