// Package queue owns the durable application queue: one entry per
// (candidate, job version) pair, tracked through an explicit lifecycle.
//
// Valid state graph:
//
//	PENDING ──► APPROVED ──► DISPATCHING ──► APPLIED
//	   │            │  ▲          │  │
//	   │            │  └──────────┘  └────► FAILED
//	   ├────────────┴──► REJECTED
//	   └──(any non-terminal)──► EXPIRED
//
// APPLIED, FAILED, REJECTED and EXPIRED are terminal states.
// DISPATCHING → APPROVED is the crash-recovery path for stale claims.
package queue

import "fmt"

// State values mirror the state column check constraint in PostgreSQL.
type State string

const (
	StatePending     State = "PENDING"
	StateApproved    State = "APPROVED"
	StateDispatching State = "DISPATCHING"
	StateApplied     State = "APPLIED"
	StateFailed      State = "FAILED"
	StateRejected    State = "REJECTED"
	StateExpired     State = "EXPIRED"
)

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[State][]State{
	StatePending:     {StateApproved, StateRejected, StateExpired},
	StateApproved:    {StateDispatching, StateRejected, StateExpired},
	StateDispatching: {StateApplied, StateFailed, StateApproved, StateExpired},
	// APPLIED, FAILED, REJECTED and EXPIRED are terminal — no outgoing transitions
}

// ParseState converts a raw string to a State, returning an error for
// unknown values.
func ParseState(s string) (State, error) {
	st := State(s)
	switch st {
	case StatePending, StateApproved, StateDispatching,
		StateApplied, StateFailed, StateRejected, StateExpired:
		return st, nil
	}
	return "", fmt.Errorf("unknown queue state %q", s)
}

// IsTransitionAllowed returns true when moving from → to is permitted by the
// state machine.
func IsTransitionAllowed(from, to State) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false // terminal state — no outgoing transitions
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true for states with no outgoing transitions.
func IsTerminal(s State) bool {
	_, ok := validTransitions[s]
	return !ok
}

// BlocksRequeue reports whether an existing entry in state s reserves its
// (candidate, job, version) key against a fresh insert. APPLIED blocks
// forever: a pair that was submitted once must never be submitted again.
// REJECTED freezes the pair for that job version. FAILED and EXPIRED leave
// the key free for a later sweep.
func BlocksRequeue(s State) bool {
	switch s {
	case StatePending, StateApproved, StateDispatching, StateRejected, StateApplied:
		return true
	}
	return false
}
