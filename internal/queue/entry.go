package queue

import (
	"encoding/json"
	"time"

	"applypilot/pipeline-service/internal/model"
)

// Entry is one (candidate, job version) pair tracked through the submission
// lifecycle. Entries are never deleted, only transitioned to a terminal
// state and retained for history.
type Entry struct {
	ID          string                  `json:"id"`
	CandidateID string                  `json:"candidateId"`
	JobID       string                  `json:"jobId"`
	JobVersion  string                  `json:"jobVersion"`
	Score       int                     `json:"score"`
	Breakdown   json.RawMessage         `json:"breakdown"`
	Reasons     []string                `json:"reasons"`
	State       State                   `json:"state"`
	Channel     model.ChannelKind       `json:"channel,omitempty"`
	Reason      string                  `json:"reason,omitempty"` // human-readable, set on terminal transition
	HistoryLog  json.RawMessage         `json:"historyLog"`
	CreatedAt   time.Time               `json:"createdAt"`
	ExpiresAt   time.Time               `json:"expiresAt"`
	EligibleAt  time.Time               `json:"eligibleAt"` // earliest eligible execution
	UpdatedAt   time.Time               `json:"updatedAt"`  // last transition time
	Outcome     *model.ExecutionOutcome `json:"outcome,omitempty"`
}

// Gates map a candidate's match sensitivity to the minimum score required
// for an entry to be queued.
type Gates struct {
	Strict     int
	Balanced   int
	Permissive int
}

// DefaultGates returns the standard gate thresholds. Product-tuning values,
// configurable rather than fixed.
func DefaultGates() Gates {
	return Gates{Strict: 85, Balanced: 70, Permissive: 60}
}

// For returns the gate score for the given sensitivity. Unknown values get
// the balanced gate.
func (g Gates) For(s model.MatchSensitivity) int {
	switch s {
	case model.SensitivityStrict:
		return g.Strict
	case model.SensitivityPermissive:
		return g.Permissive
	default:
		return g.Balanced
	}
}
