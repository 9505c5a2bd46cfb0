package queue_test

import (
	"testing"

	"applypilot/pipeline-service/internal/queue"
)

// ── ParseState ─────────────────────────────────────────────────────────────

func TestParseState_ValidValues(t *testing.T) {
	valid := []string{"PENDING", "APPROVED", "DISPATCHING", "APPLIED", "FAILED", "REJECTED", "EXPIRED"}
	for _, s := range valid {
		got, err := queue.ParseState(s)
		if err != nil {
			t.Errorf("ParseState(%q) returned unexpected error: %v", s, err)
		}
		if string(got) != s {
			t.Errorf("ParseState(%q) = %q, want %q", s, got, s)
		}
	}
}

func TestParseState_InvalidValue(t *testing.T) {
	_, err := queue.ParseState("UNKNOWN")
	if err == nil {
		t.Error("ParseState(\"UNKNOWN\") expected error, got nil")
	}
}

func TestParseState_EmptyString(t *testing.T) {
	_, err := queue.ParseState("")
	if err == nil {
		t.Error("ParseState(\"\") expected error, got nil")
	}
}

// ── IsTerminal ─────────────────────────────────────────────────────────────

func TestIsTerminal(t *testing.T) {
	terminals := []queue.State{
		queue.StateApplied, queue.StateFailed, queue.StateRejected, queue.StateExpired,
	}
	for _, s := range terminals {
		if !queue.IsTerminal(s) {
			t.Errorf("IsTerminal(%s) should return true", s)
		}
	}
	for _, s := range []queue.State{
		queue.StatePending, queue.StateApproved, queue.StateDispatching,
	} {
		if queue.IsTerminal(s) {
			t.Errorf("IsTerminal(%s) should return false", s)
		}
	}
}

// ── IsTransitionAllowed — valid (forward) transitions ─────────────────────

func TestIsTransitionAllowed_ValidForward(t *testing.T) {
	cases := []struct {
		from queue.State
		to   queue.State
	}{
		{queue.StatePending, queue.StateApproved},
		{queue.StateApproved, queue.StateDispatching},
		{queue.StateDispatching, queue.StateApplied},
		{queue.StateDispatching, queue.StateFailed},
	}
	for _, c := range cases {
		if !queue.IsTransitionAllowed(c.from, c.to) {
			t.Errorf("IsTransitionAllowed(%s → %s) should be true", c.from, c.to)
		}
	}
}

// ── IsTransitionAllowed — rejection from the review states ────────────────

func TestIsTransitionAllowed_ToRejected(t *testing.T) {
	reviewable := []queue.State{queue.StatePending, queue.StateApproved}
	for _, from := range reviewable {
		if !queue.IsTransitionAllowed(from, queue.StateRejected) {
			t.Errorf("IsTransitionAllowed(%s → REJECTED) should be true", from)
		}
	}

	// A claimed entry cannot be rejected mid-execution.
	if queue.IsTransitionAllowed(queue.StateDispatching, queue.StateRejected) {
		t.Error("IsTransitionAllowed(DISPATCHING → REJECTED) should be false")
	}
}

// ── IsTransitionAllowed — expiry from any non-terminal ────────────────────

func TestIsTransitionAllowed_ToExpired(t *testing.T) {
	nonTerminals := []queue.State{
		queue.StatePending, queue.StateApproved, queue.StateDispatching,
	}
	for _, from := range nonTerminals {
		if !queue.IsTransitionAllowed(from, queue.StateExpired) {
			t.Errorf("IsTransitionAllowed(%s → EXPIRED) should be true", from)
		}
	}
}

// ── IsTransitionAllowed — crash recovery ──────────────────────────────────

func TestIsTransitionAllowed_DispatchingBackToApproved(t *testing.T) {
	if !queue.IsTransitionAllowed(queue.StateDispatching, queue.StateApproved) {
		t.Error("IsTransitionAllowed(DISPATCHING → APPROVED) should be true (stale-claim recovery)")
	}
	// Recovery is only defined for claimed entries.
	if queue.IsTransitionAllowed(queue.StateApplied, queue.StateApproved) {
		t.Error("IsTransitionAllowed(APPLIED → APPROVED) should be false")
	}
}

// ── IsTransitionAllowed — terminal states have no outgoing transitions ─────

func TestIsTransitionAllowed_FromTerminal(t *testing.T) {
	terminals := []queue.State{
		queue.StateApplied, queue.StateFailed, queue.StateRejected, queue.StateExpired,
	}
	targets := []queue.State{
		queue.StatePending, queue.StateApproved, queue.StateDispatching,
		queue.StateApplied, queue.StateFailed, queue.StateRejected, queue.StateExpired,
	}
	for _, from := range terminals {
		for _, to := range targets {
			if queue.IsTransitionAllowed(from, to) {
				t.Errorf("IsTransitionAllowed(%s → %s) should be false (terminal state)", from, to)
			}
		}
	}
}

// ── IsTransitionAllowed — skipping review is forbidden ────────────────────

func TestIsTransitionAllowed_SkipLevel(t *testing.T) {
	cases := []struct {
		from queue.State
		to   queue.State
	}{
		{queue.StatePending, queue.StateDispatching}, // skip APPROVED
		{queue.StatePending, queue.StateApplied},     // skip two
		{queue.StatePending, queue.StateFailed},      // failure without execution
		{queue.StateApproved, queue.StateApplied},    // skip DISPATCHING
		{queue.StateApproved, queue.StateFailed},     // skip DISPATCHING
	}
	for _, c := range cases {
		if queue.IsTransitionAllowed(c.from, c.to) {
			t.Errorf("IsTransitionAllowed(%s → %s) should be false (skip-level)", c.from, c.to)
		}
	}
}

// ── IsTransitionAllowed — self-transitions are forbidden ──────────────────

func TestIsTransitionAllowed_Self(t *testing.T) {
	all := []queue.State{
		queue.StatePending, queue.StateApproved, queue.StateDispatching,
		queue.StateApplied, queue.StateFailed, queue.StateRejected, queue.StateExpired,
	}
	for _, s := range all {
		if queue.IsTransitionAllowed(s, s) {
			t.Errorf("IsTransitionAllowed(%s → %s) should be false (self)", s, s)
		}
	}
}

// ── BlocksRequeue — match-key reservation ─────────────────────────────────

func TestBlocksRequeue(t *testing.T) {
	cases := []struct {
		state queue.State
		want  bool
	}{
		{queue.StatePending, true},
		{queue.StateApproved, true},
		{queue.StateDispatching, true},
		{queue.StateRejected, true},
		{queue.StateApplied, true},
		{queue.StateFailed, false},
		{queue.StateExpired, false},
	}
	for _, c := range cases {
		if got := queue.BlocksRequeue(c.state); got != c.want {
			t.Errorf("BlocksRequeue(%s) = %t, want %t", c.state, got, c.want)
		}
	}
}

// A pair that was submitted must stay blocked forever: re-scoring the same
// job version after APPLIED would queue, and eventually submit, a duplicate
// application.
func TestBlocksRequeue_AppliedIsForever(t *testing.T) {
	if !queue.BlocksRequeue(queue.StateApplied) {
		t.Fatal("BlocksRequeue(APPLIED) must be true: a submitted pair is never queued again")
	}
}
