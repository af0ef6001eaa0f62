package ledger

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a ledger entry. The pipeline advances
// entries strictly forward through this order; the only permitted regression
// is an explicit operator retry of a failed entry.
type Status string

const (
	StatusDiscovered   Status = "discovered"
	StatusNormalizing  Status = "normalizing"
	StatusNormalized   Status = "normalized"
	StatusTranscribing Status = "transcribing"
	StatusTranscribed  Status = "transcribed"
	StatusDispatching  Status = "dispatching"
	StatusDispatched   Status = "dispatched"
	StatusSynthesizing Status = "synthesizing"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// Stage names used for retry accounting and logging.
const (
	StageNormalize  = "normalize"
	StageTranscribe = "transcribe"
	StageDispatch   = "dispatch"
	StageSynthesize = "synthesize"
)

var allStatuses = []Status{
	StatusDiscovered,
	StatusNormalizing,
	StatusNormalized,
	StatusTranscribing,
	StatusTranscribed,
	StatusDispatching,
	StatusDispatched,
	StatusSynthesizing,
	StatusCompleted,
	StatusFailed,
}

// statusRank encodes the fixed total order used to reject out-of-order
// transitions. Failed is terminal and reachable from anywhere.
var statusRank = map[Status]int{
	StatusDiscovered:   0,
	StatusNormalizing:  1,
	StatusNormalized:   2,
	StatusTranscribing: 3,
	StatusTranscribed:  4,
	StatusDispatching:  5,
	StatusDispatched:   6,
	StatusSynthesizing: 7,
	StatusCompleted:    8,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusNormalizing:  {},
	StatusTranscribing: {},
	StatusDispatching:  {},
	StatusSynthesizing: {},
}

// processingRollback maps each in-flight status back to the start of its
// stage, used when reclaiming abandoned entries.
var processingRollback = map[Status]Status{
	StatusNormalizing:  StatusDiscovered,
	StatusTranscribing: StatusNormalized,
	StatusDispatching:  StatusTranscribed,
	StatusSynthesizing: StatusDispatched,
}

// stageStart maps a stage name to the ready status it consumes.
var stageStart = map[string]Status{
	StageNormalize:  StatusDiscovered,
	StageTranscribe: StatusNormalized,
	StageDispatch:   StatusTranscribed,
	StageSynthesize: StatusDispatched,
}

// Entry is one ledger row: the durable record of a single call recording's
// progress through the pipeline.
type Entry struct {
	ID               int64
	Identity         string
	SourcePath       string
	CallerPhone      string
	Status           Status
	LastStage        string
	NormalizedFile   string
	TranscriptText   string
	DetectedLanguage string
	Confidence       float64
	AnswerText       string
	TargetLanguage   string
	ResponseFile     string
	RetryCounts      map[string]int
	ErrorMessage     string
	NeedsReview      bool
	ReviewReason     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastHeartbeat    *time.Time
}

// HealthSummary describes aggregated entry counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Discovered int
	Processing int
	Failed     int
	Completed  int
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// StageStartStatus returns the ready status consumed by a stage name, or
// StatusDiscovered when the stage is unknown.
func StageStartStatus(stage string) Status {
	if status, ok := stageStart[stage]; ok {
		return status
	}
	return StatusDiscovered
}

// IsProcessingStatus reports whether a status reflects an in-flight stage.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsTerminal reports whether no further stage execution occurs for the entry.
func (e Entry) IsTerminal() bool {
	return e.Status == StatusCompleted || e.Status == StatusFailed
}

// IsProcessing returns true when the entry reflects an in-flight stage.
func (e Entry) IsProcessing() bool {
	return IsProcessingStatus(e.Status)
}

// RetryCount returns the persisted retry count for a stage.
func (e Entry) RetryCount(stage string) int {
	if e.RetryCounts == nil {
		return 0
	}
	return e.RetryCounts[stage]
}

// SetFailed marks the entry as failed with the given error message.
func (e *Entry) SetFailed(stage, message string) {
	e.Status = StatusFailed
	e.LastStage = stage
	e.ErrorMessage = message
	e.LastHeartbeat = nil
}

// ValidTransition reports whether moving from one status to another respects
// the pipeline order. Failure is reachable from any non-terminal status.
func ValidTransition(from, to Status) bool {
	if to == StatusFailed {
		return from != StatusCompleted && from != StatusFailed
	}
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank == fromRank+1
}
