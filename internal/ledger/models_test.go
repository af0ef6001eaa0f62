package ledger_test

import (
	"testing"

	"switchboard/internal/ledger"
)

func TestValidTransitionEnforcesOrder(t *testing.T) {
	cases := []struct {
		from  ledger.Status
		to    ledger.Status
		valid bool
	}{
		{ledger.StatusDiscovered, ledger.StatusNormalizing, true},
		{ledger.StatusSynthesizing, ledger.StatusCompleted, true},
		{ledger.StatusDiscovered, ledger.StatusNormalized, false},
		{ledger.StatusNormalized, ledger.StatusDiscovered, false},
		{ledger.StatusTranscribing, ledger.StatusFailed, true},
		{ledger.StatusCompleted, ledger.StatusFailed, false},
		{ledger.StatusFailed, ledger.StatusFailed, false},
	}
	for _, tc := range cases {
		if got := ledger.ValidTransition(tc.from, tc.to); got != tc.valid {
			t.Errorf("ValidTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.valid)
		}
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := ledger.ParseStatus(" Transcribing "); !ok || status != ledger.StatusTranscribing {
		t.Fatalf("expected transcribing, got %q ok=%v", status, ok)
	}
	if _, ok := ledger.ParseStatus("bogus"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
}

func TestStageStartStatus(t *testing.T) {
	cases := map[string]ledger.Status{
		ledger.StageNormalize:  ledger.StatusDiscovered,
		ledger.StageTranscribe: ledger.StatusNormalized,
		ledger.StageDispatch:   ledger.StatusTranscribed,
		ledger.StageSynthesize: ledger.StatusDispatched,
		"unknown":              ledger.StatusDiscovered,
	}
	for stage, expected := range cases {
		if got := ledger.StageStartStatus(stage); got != expected {
			t.Errorf("StageStartStatus(%q) = %s, want %s", stage, got, expected)
		}
	}
}
