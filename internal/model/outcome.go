package model

import "time"

// FailureCategory classifies why an execution did not succeed.
type FailureCategory string

const (
	// FailureTransient covers network errors and timeouts; retried up to
	// the dispatcher's bound.
	FailureTransient FailureCategory = "transient"
	// FailureChallengeBlocked means an interactive verification challenge
	// was present and unsolvable. Terminal, never retried.
	FailureChallengeBlocked FailureCategory = "challenge_blocked"
	// FailureMissingPrerequisite means the candidate lacks required
	// supporting material (no primary document artifact). Terminal.
	FailureMissingPrerequisite FailureCategory = "missing_prerequisite"
	// FailureNoProgress is the strict-validation failure: the channel
	// observed no filled field and no activated control. Terminal.
	FailureNoProgress FailureCategory = "no_progress_made"
	// FailureInternal covers malformed data and panics downgraded at the
	// dispatcher boundary. Terminal.
	FailureInternal FailureCategory = "internal_error"
)

// ExecutionOutcome records what actually happened during one execution.
// Immutable once written; attached 1:1 to a terminal queue entry.
type ExecutionOutcome struct {
	ID          string          `json:"id"`
	Channel     ChannelKind     `json:"channel"`
	Success     bool            `json:"success"`
	Evidence    string          `json:"evidence"`
	Category    FailureCategory `json:"category,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	ExternalRef string          `json:"externalRef,omitempty"` // recipient address, screenshot handle, agent run id
	CompletedAt time.Time       `json:"completedAt"`
}

// ExecutionRequest bundles everything a channel needs to submit one
// application.
type ExecutionRequest struct {
	Candidate *CandidateProfile
	Job       *JobPosting
	Artifact  *DocumentArtifact // nil when the candidate has no document
}

// Failure builds an unsuccessful outcome for the given channel.
func Failure(ch ChannelKind, cat FailureCategory, reason string) *ExecutionOutcome {
	return &ExecutionOutcome{
		Channel:  ch,
		Success:  false,
		Category: cat,
		Reason:   reason,
		Evidence: reason,
	}
}
