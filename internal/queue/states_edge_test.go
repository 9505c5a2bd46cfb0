package queue_test

// ── Additional edge-case tests ────────────────────────────────────────────
//
// This file extends states_test.go with parsing edge cases and the gate
// lookup table. The core state-machine matrix is covered in states_test.go.

import (
	"testing"

	"applypilot/pipeline-service/internal/model"
	"applypilot/pipeline-service/internal/queue"
)

// ParseState must be case-sensitive — lowercase variants must not be valid.
func TestParseState_CaseSensitive(t *testing.T) {
	lowercase := []string{"pending", "approved", "dispatching", "applied", "failed", "rejected", "expired"}
	for _, s := range lowercase {
		_, err := queue.ParseState(s)
		if err == nil {
			t.Errorf("ParseState(%q) should reject lowercase value, got nil error", s)
		}
	}
}

// ParseState must reject whitespace-padded strings.
func TestParseState_WithWhitespace(t *testing.T) {
	padded := []string{" APPROVED", "APPROVED ", " APPROVED "}
	for _, s := range padded {
		_, err := queue.ParseState(s)
		if err == nil {
			t.Errorf("ParseState(%q) should reject padded value, got nil error", s)
		}
	}
}

// All seven constants must round-trip through ParseState without error.
func TestParseState_AllConstantsRoundTrip(t *testing.T) {
	all := []queue.State{
		queue.StatePending, queue.StateApproved, queue.StateDispatching,
		queue.StateApplied, queue.StateFailed, queue.StateRejected, queue.StateExpired,
	}
	for _, s := range all {
		got, err := queue.ParseState(string(s))
		if err != nil {
			t.Errorf("ParseState(%q) unexpected error: %v", s, err)
		}
		if got != s {
			t.Errorf("ParseState(%q) = %q, want %q", s, got, s)
		}
	}
}

// ── Gates ──────────────────────────────────────────────────────────────────

func TestGates_For(t *testing.T) {
	g := queue.DefaultGates()

	cases := []struct {
		sensitivity model.MatchSensitivity
		want        int
	}{
		{model.SensitivityStrict, 85},
		{model.SensitivityBalanced, 70},
		{model.SensitivityPermissive, 60},
	}
	for _, c := range cases {
		if got := g.For(c.sensitivity); got != c.want {
			t.Errorf("Gates.For(%s) = %d, want %d", c.sensitivity, got, c.want)
		}
	}
}

// An unknown sensitivity falls back to the balanced gate.
func TestGates_For_UnknownSensitivity(t *testing.T) {
	g := queue.DefaultGates()
	if got := g.For(model.MatchSensitivity("aggressive")); got != 70 {
		t.Errorf("Gates.For(unknown) = %d, want 70 (balanced fallback)", got)
	}
}
