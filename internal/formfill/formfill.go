// Package formfill drives an arbitrary multi-step application form and
// reports granular evidence of progress.
//
// Traversal is modeled as a small interpreter over a Session: each step
// detects a blocking challenge, fills recognizable fields, activates a
// continue/submit control and watches for a confirmation signal. The
// strict-success rule is a pure predicate over the accumulated counters,
// independent of how any particular site is traversed.
package formfill

import (
	"context"
	"fmt"

	"applypilot/pipeline-service/internal/model"
)

// Session abstracts one live form page. Implementations report what they
// actually did; the interpreter never assumes progress it was not told about.
type Session interface {
	// DetectChallenge reports whether a blocking interactive challenge
	// (captcha or similar) is present on the current step.
	DetectChallenge(ctx context.Context) (bool, error)
	// FillFields fills every recognizable input from candidate data and
	// returns the number of fields actually filled.
	FillFields(ctx context.Context) (int, error)
	// ActivateControl clicks a continue/submit-class control if one is
	// found, reporting whether anything was activated.
	ActivateControl(ctx context.Context) (bool, error)
	// ConfirmationVisible reports whether an explicit success signal is
	// present (confirmation text or a distinct post-submit page state).
	ConfirmationVisible(ctx context.Context) (bool, error)
	// EvidenceRef returns an optional external evidence handle
	// (screenshot path); empty when unsupported.
	EvidenceRef(ctx context.Context) string
}

// Progress accumulates what actually happened across all steps.
type Progress struct {
	FieldsFilled      int
	ControlsActivated int
	StepsTraversed    int
	ConfirmationSeen  bool
	ChallengeBlocked  bool
}

// Evidence renders the audit descriptor attached to the outcome.
func (p Progress) Evidence() string {
	confirmation := "no confirmation observed"
	if p.ConfirmationSeen {
		confirmation = "confirmation signal observed"
	}
	return fmt.Sprintf("%d fields filled, %d controls activated, %d steps traversed, %s",
		p.FieldsFilled, p.ControlsActivated, p.StepsTraversed, confirmation)
}

// Evaluate applies the strict success invariant: an outcome is successful
// only if at least one field was filled or one control was activated, AND a
// success signal was observed. Zero progress is always no_progress_made,
// however the traversal terminated.
func Evaluate(p Progress) *model.ExecutionOutcome {
	out := &model.ExecutionOutcome{
		Channel:  model.ChannelForm,
		Evidence: p.Evidence(),
	}

	switch {
	case p.ChallengeBlocked:
		out.Category = model.FailureChallengeBlocked
		out.Reason = "an interactive verification challenge blocked the form"
	case p.FieldsFilled == 0 && p.ControlsActivated == 0:
		out.Category = model.FailureNoProgress
		out.Reason = "no form field was filled and no control was activated"
	case !p.ConfirmationSeen:
		out.Category = model.FailureNoProgress
		out.Reason = "form was touched but no success confirmation was observed"
	default:
		out.Success = true
	}
	return out
}

const defaultMaxSteps = 10

// Traverse runs the step loop against a session and returns the accumulated
// progress. An error return means the attempt itself broke (navigation or
// driver failure) and is the caller's retry decision; a clean return always
// carries a Progress suitable for Evaluate.
func Traverse(ctx context.Context, s Session, maxSteps int) (Progress, error) {
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}

	var p Progress
	for step := 0; step < maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return p, err
		}

		blocked, err := s.DetectChallenge(ctx)
		if err != nil {
			return p, fmt.Errorf("challenge detection: %w", err)
		}
		if blocked {
			// Never proceed speculatively past a challenge.
			p.ChallengeBlocked = true
			return p, nil
		}

		filled, err := s.FillFields(ctx)
		if err != nil {
			return p, fmt.Errorf("fill fields: %w", err)
		}
		p.FieldsFilled += filled

		activated, err := s.ActivateControl(ctx)
		if err != nil {
			return p, fmt.Errorf("activate control: %w", err)
		}
		p.StepsTraversed++

		if !activated {
			// End of the flow: either a confirmation is already visible,
			// or we fall through to evidence evaluation.
			confirmed, err := s.ConfirmationVisible(ctx)
			if err != nil {
				return p, fmt.Errorf("confirmation check: %w", err)
			}
			p.ConfirmationSeen = confirmed
			return p, nil
		}

		p.ControlsActivated++

		confirmed, err := s.ConfirmationVisible(ctx)
		if err != nil {
			return p, fmt.Errorf("confirmation check: %w", err)
		}
		if confirmed {
			p.ConfirmationSeen = true
			return p, nil
		}
	}

	// Step bound reached without a confirmation.
	return p, nil
}
