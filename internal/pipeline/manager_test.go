package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"switchboard/internal/config"
	"switchboard/internal/ledger"
	"switchboard/internal/logging"
	"switchboard/internal/pipeline"
	"switchboard/internal/services"
	"switchboard/internal/stage"
	"switchboard/internal/testsupport"
)

type stubHandler struct {
	name    string
	prepare func(ctx context.Context, entry *ledger.Entry) error
	execute func(ctx context.Context, entry *ledger.Entry) error
}

func (s *stubHandler) Prepare(ctx context.Context, entry *ledger.Entry) error {
	if s.prepare == nil {
		return nil
	}
	return s.prepare(ctx, entry)
}

func (s *stubHandler) Execute(ctx context.Context, entry *ledger.Entry) error {
	if s.execute == nil {
		return nil
	}
	return s.execute(ctx, entry)
}

func (s *stubHandler) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(s.name)
}

type recordingNotifier struct {
	mu       sync.Mutex
	ready    []string
	reviewed []string
	failed   []string
}

func (n *recordingNotifier) NotifyResponseReady(_ context.Context, identity, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ready = append(n.ready, identity)
	return nil
}

func (n *recordingNotifier) NotifyReviewNeeded(_ context.Context, identity, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reviewed = append(n.reviewed, identity)
	return nil
}

func (n *recordingNotifier) NotifyRecordingFailed(_ context.Context, identity, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, identity)
	return nil
}

func (n *recordingNotifier) TestNotification(context.Context) error { return nil }

func (n *recordingNotifier) readySeen(identity string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, got := range n.ready {
		if got == identity {
			return true
		}
	}
	return false
}

// captureHandler records every log line together with its accumulated
// attributes so tests can check which identity a stage log was annotated with.
type captureHandler struct {
	mu    *sync.Mutex
	recs  *[]map[string]string
	attrs []slog.Attr
}

func newCaptureHandler() captureHandler {
	return captureHandler{mu: &sync.Mutex{}, recs: &[]map[string]string{}}
}

func (h captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h captureHandler) Handle(_ context.Context, record slog.Record) error {
	fields := map[string]string{"msg": record.Message}
	for _, attr := range h.attrs {
		fields[attr.Key] = attr.Value.String()
	}
	record.Attrs(func(attr slog.Attr) bool {
		fields[attr.Key] = attr.Value.String()
		return true
	})
	h.mu.Lock()
	*h.recs = append(*h.recs, fields)
	h.mu.Unlock()
	return nil
}

func (h captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return captureHandler{mu: h.mu, recs: h.recs, attrs: merged}
}

func (h captureHandler) WithGroup(string) slog.Handler { return h }

func (h captureHandler) records() []map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]map[string]string(nil), (*h.recs)...)
}

func fullStages(cfg *config.Config, execute func(string, *ledger.Entry) error) []pipeline.StageDef {
	build := func(name string, start, processing, done ledger.Status) pipeline.StageDef {
		return pipeline.StageDef{
			Name:       name,
			Start:      start,
			Processing: processing,
			Done:       done,
			Handler: &stubHandler{
				name: name,
				execute: func(_ context.Context, entry *ledger.Entry) error {
					if execute == nil {
						return nil
					}
					return execute(name, entry)
				},
			},
			MaxAttempts: cfg.MaxAttempts(name),
		}
	}
	return []pipeline.StageDef{
		build(ledger.StageNormalize, ledger.StatusDiscovered, ledger.StatusNormalizing, ledger.StatusNormalized),
		build(ledger.StageTranscribe, ledger.StatusNormalized, ledger.StatusTranscribing, ledger.StatusTranscribed),
		build(ledger.StageDispatch, ledger.StatusTranscribed, ledger.StatusDispatching, ledger.StatusDispatched),
		build(ledger.StageSynthesize, ledger.StatusDispatched, ledger.StatusSynthesizing, ledger.StatusCompleted),
	}
}

func waitForStatus(t *testing.T, store *ledger.Store, identity string, want ledger.Status) *ledger.Entry {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		entry, err := store.GetByIdentity(context.Background(), identity)
		if err != nil {
			t.Fatalf("GetByIdentity failed: %v", err)
		}
		if entry != nil && entry.Status == want {
			return entry
		}
		time.Sleep(20 * time.Millisecond)
	}
	entry, _ := store.GetByIdentity(context.Background(), identity)
	t.Fatalf("entry %s never reached %s, last state %#v", identity, want, entry)
	return nil
}

func TestManagerDrivesEntryToCompletion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	notifier := &recordingNotifier{}

	var mu sync.Mutex
	var order []string
	stages := fullStages(cfg, func(name string, entry *ledger.Entry) error {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
		return nil
	})

	manager := pipeline.NewManagerWithStages(cfg, store, logging.NewNop(), notifier, stages)
	testsupport.NewEntry(t, store, "end-to-end", "/calls/e2e.wav")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer manager.Stop()

	entry := waitForStatus(t, store, "end-to-end", ledger.StatusCompleted)
	if entry.ErrorMessage != "" {
		t.Fatalf("expected clean completion, got error %q", entry.ErrorMessage)
	}

	mu.Lock()
	gotOrder := append([]string(nil), order...)
	mu.Unlock()
	want := []string{ledger.StageNormalize, ledger.StageTranscribe, ledger.StageDispatch, ledger.StageSynthesize}
	if len(gotOrder) != len(want) {
		t.Fatalf("expected %d stage executions, got %v", len(want), gotOrder)
	}
	for i := range want {
		if gotOrder[i] != want[i] {
			t.Fatalf("stage order %v, want %v", gotOrder, want)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for !notifier.readySeen("end-to-end") {
		if time.Now().After(deadline) {
			t.Fatal("expected response-ready notification")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestManagerRetriesTransientFailuresAndSucceeds(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxAttempts(3))
	store := testsupport.MustOpenStore(t, cfg)
	notifier := &recordingNotifier{}

	var mu sync.Mutex
	attempts := 0
	stages := fullStages(cfg, func(name string, entry *ledger.Entry) error {
		if name != ledger.StageTranscribe {
			return nil
		}
		mu.Lock()
		attempts++
		current := attempts
		mu.Unlock()
		if current <= 2 {
			return services.Wrap(services.ErrTransient, name, "request", "service unreachable", nil)
		}
		return nil
	})

	manager := pipeline.NewManagerWithStages(cfg, store, logging.NewNop(), notifier, stages)
	testsupport.NewEntry(t, store, "flaky", "/calls/flaky.wav")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer manager.Stop()

	entry := waitForStatus(t, store, "flaky", ledger.StatusCompleted)
	if got := entry.RetryCount(ledger.StageTranscribe); got != 2 {
		t.Fatalf("expected persisted retry count 2, got %d", got)
	}
	if entry.ErrorMessage != "" {
		t.Fatalf("expected error cleared after success, got %q", entry.ErrorMessage)
	}
}

func TestManagerFailsEntryAfterRetryCeiling(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxAttempts(3))
	store := testsupport.MustOpenStore(t, cfg)
	notifier := &recordingNotifier{}

	var mu sync.Mutex
	attempts := 0
	stages := fullStages(cfg, func(name string, entry *ledger.Entry) error {
		if name != ledger.StageNormalize {
			return nil
		}
		mu.Lock()
		attempts++
		mu.Unlock()
		return services.Wrap(services.ErrTransient, name, "convert", "disk i/o error", nil)
	})

	manager := pipeline.NewManagerWithStages(cfg, store, logging.NewNop(), notifier, stages)
	testsupport.NewEntry(t, store, "doomed", "/calls/doomed.wav")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer manager.Stop()

	entry := waitForStatus(t, store, "doomed", ledger.StatusFailed)
	if got := entry.RetryCount(ledger.StageNormalize); got != 3 {
		t.Fatalf("expected exactly 3 attempts consumed, got %d", got)
	}
	mu.Lock()
	executed := attempts
	mu.Unlock()
	if executed != 3 {
		t.Fatalf("expected exactly 3 executions, got %d", executed)
	}
	if entry.LastStage != ledger.StageNormalize {
		t.Fatalf("expected failing stage recorded, got %q", entry.LastStage)
	}
	if entry.ErrorMessage == "" {
		t.Fatal("expected error message preserved for operators")
	}

	notifier.mu.Lock()
	failedCount := len(notifier.failed)
	notifier.mu.Unlock()
	if failedCount == 0 {
		t.Fatal("expected failure notification")
	}
}

func TestManagerRetriesTransientPrepareFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxAttempts(3))
	store := testsupport.MustOpenStore(t, cfg)

	// An input that is momentarily unreadable, as on a flaky mount, must be
	// retried like any other transient failure instead of failing the entry.
	var mu sync.Mutex
	attempts := 0
	stages := []pipeline.StageDef{{
		Name:       ledger.StageNormalize,
		Start:      ledger.StatusDiscovered,
		Processing: ledger.StatusNormalizing,
		Done:       ledger.StatusNormalized,
		Handler: &stubHandler{
			name: ledger.StageNormalize,
			prepare: func(_ context.Context, _ *ledger.Entry) error {
				mu.Lock()
				attempts++
				current := attempts
				mu.Unlock()
				if current <= 2 {
					return services.Wrap(services.ErrTransient, ledger.StageNormalize, "prepare", "source unreadable", nil)
				}
				return nil
			},
		},
		MaxAttempts: cfg.MaxAttempts(ledger.StageNormalize),
	}}

	manager := pipeline.NewManagerWithStages(cfg, store, logging.NewNop(), &recordingNotifier{}, stages)
	testsupport.NewEntry(t, store, "slow-mount", "/calls/slow.wav")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer manager.Stop()

	entry := waitForStatus(t, store, "slow-mount", ledger.StatusNormalized)
	if got := entry.RetryCount(ledger.StageNormalize); got != 2 {
		t.Fatalf("expected persisted retry count 2, got %d", got)
	}
	if entry.ErrorMessage != "" {
		t.Fatalf("expected error cleared after success, got %q", entry.ErrorMessage)
	}
}

func TestManagerFailsImmediatelyOnInvalidInput(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxAttempts(3))
	store := testsupport.MustOpenStore(t, cfg)
	notifier := &recordingNotifier{}

	var mu sync.Mutex
	attempts := 0
	stages := fullStages(cfg, func(name string, entry *ledger.Entry) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return services.Wrap(services.ErrInvalidInput, name, "prepare", "recording is empty", nil)
	})

	manager := pipeline.NewManagerWithStages(cfg, store, logging.NewNop(), notifier, stages)
	testsupport.NewEntry(t, store, "empty-recording", "/calls/empty.wav")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer manager.Stop()

	entry := waitForStatus(t, store, "empty-recording", ledger.StatusFailed)
	if got := entry.RetryCount(ledger.StageNormalize); got != 0 {
		t.Fatalf("invalid input must not consume retry attempts, got %d", got)
	}
	mu.Lock()
	executed := attempts
	mu.Unlock()
	if executed != 1 {
		t.Fatalf("expected a single execution, got %d", executed)
	}
}

func TestManagerScopesStageLoggerPerEntry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.Workers = 4
	store := testsupport.MustOpenStore(t, cfg)

	capture := newCaptureHandler()

	// Each handler logs through the context-carried logger, the way the real
	// stage adapters do. With several workers interleaving entries, every log
	// line must still carry the identity of the entry being handled.
	handle := func(ctx context.Context, entry *ledger.Entry) error {
		logging.FromContext(ctx, logging.NewNop()).Info("stage handling",
			logging.String("entry", entry.Identity),
		)
		return nil
	}
	build := func(name string, start, processing, done ledger.Status) pipeline.StageDef {
		return pipeline.StageDef{
			Name:        name,
			Start:       start,
			Processing:  processing,
			Done:        done,
			Handler:     &stubHandler{name: name, execute: handle},
			MaxAttempts: cfg.MaxAttempts(name),
		}
	}
	stages := []pipeline.StageDef{
		build(ledger.StageNormalize, ledger.StatusDiscovered, ledger.StatusNormalizing, ledger.StatusNormalized),
		build(ledger.StageTranscribe, ledger.StatusNormalized, ledger.StatusTranscribing, ledger.StatusTranscribed),
		build(ledger.StageDispatch, ledger.StatusTranscribed, ledger.StatusDispatching, ledger.StatusDispatched),
		build(ledger.StageSynthesize, ledger.StatusDispatched, ledger.StatusSynthesizing, ledger.StatusCompleted),
	}

	manager := pipeline.NewManagerWithStages(cfg, store, slog.New(capture), &recordingNotifier{}, stages)
	identities := make([]string, 0, 8)
	for i := 0; i < 8; i++ {
		identity := fmt.Sprintf("call-%03d", i)
		testsupport.NewEntry(t, store, identity, "/calls/"+identity+".wav")
		identities = append(identities, identity)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer manager.Stop()

	for _, identity := range identities {
		waitForStatus(t, store, identity, ledger.StatusCompleted)
	}

	handled := 0
	for _, record := range capture.records() {
		if record["msg"] != "stage handling" {
			continue
		}
		handled++
		if record[logging.FieldIdentity] != record["entry"] {
			t.Fatalf("log annotated with identity %q while handling entry %q",
				record[logging.FieldIdentity], record["entry"])
		}
	}
	if want := len(identities) * len(stages); handled != want {
		t.Fatalf("expected %d stage logs, got %d", want, handled)
	}
}

func TestManagerResumesAfterRestart(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	// Simulate a crash mid-transcription from a previous process.
	entry := testsupport.NewEntry(t, store, "interrupted", "/calls/i.wav")
	entry.Status = ledger.StatusTranscribing
	if err := store.Update(ctx, entry); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if _, err := store.ResetStuckProcessing(ctx); err != nil {
		t.Fatalf("ResetStuckProcessing failed: %v", err)
	}

	var mu sync.Mutex
	var order []string
	stages := fullStages(cfg, func(name string, e *ledger.Entry) error {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
		return nil
	})
	manager := pipeline.NewManagerWithStages(cfg, store, logging.NewNop(), &recordingNotifier{}, stages)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := manager.Start(runCtx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer manager.Stop()

	waitForStatus(t, store, "interrupted", ledger.StatusCompleted)

	// Recovery resumes from the interrupted stage, never from the top.
	mu.Lock()
	gotOrder := append([]string(nil), order...)
	mu.Unlock()
	want := []string{ledger.StageTranscribe, ledger.StageDispatch, ledger.StageSynthesize}
	if len(gotOrder) != len(want) {
		t.Fatalf("expected stages %v, got %v", want, gotOrder)
	}
	for i := range want {
		if gotOrder[i] != want[i] {
			t.Fatalf("expected stages %v, got %v", want, gotOrder)
		}
	}
}

func TestManagerStartRejectsEmptyStages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	manager := pipeline.NewManagerWithStages(cfg, store, logging.NewNop(), &recordingNotifier{}, nil)

	if err := manager.Start(context.Background()); err == nil {
		t.Fatal("expected error when no stages configured")
	} else if errors.Is(err, context.Canceled) {
		t.Fatalf("unexpected error: %v", err)
	}
}
