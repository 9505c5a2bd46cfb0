package formfill

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"applypilot/pipeline-service/internal/model"
)

// scriptedSession replays a fixed sequence of per-step behaviors.
type scriptedStep struct {
	challenge bool
	filled    int
	activated bool
	confirmed bool
}

type scriptedSession struct {
	steps []scriptedStep
	pos   int
	err   error // returned by FillFields when set
}

func (s *scriptedSession) current() scriptedStep {
	if s.pos >= len(s.steps) {
		return scriptedStep{}
	}
	return s.steps[s.pos]
}

func (s *scriptedSession) DetectChallenge(context.Context) (bool, error) {
	return s.current().challenge, nil
}

func (s *scriptedSession) FillFields(context.Context) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.current().filled, nil
}

func (s *scriptedSession) ActivateControl(context.Context) (bool, error) {
	return s.current().activated, nil
}

func (s *scriptedSession) ConfirmationVisible(context.Context) (bool, error) {
	confirmed := s.current().confirmed
	s.pos++
	return confirmed, nil
}

func (s *scriptedSession) EvidenceRef(context.Context) string { return "" }

// ── Evaluate — the strict success rule ─────────────────────────────────────

func TestEvaluate_SuccessRequiresProgressAndConfirmation(t *testing.T) {
	out := Evaluate(Progress{FieldsFilled: 4, ControlsActivated: 1, StepsTraversed: 2, ConfirmationSeen: true})
	assert.True(t, out.Success)
	assert.Empty(t, out.Category)
	assert.Contains(t, out.Evidence, "4 fields filled")
}

func TestEvaluate_ControlsAloneCountAsProgress(t *testing.T) {
	out := Evaluate(Progress{ControlsActivated: 1, StepsTraversed: 1, ConfirmationSeen: true})
	assert.True(t, out.Success)
}

func TestEvaluate_ZeroProgressIsNeverSuccess(t *testing.T) {
	// Even with a confirmation signal visible, zero fields and zero controls
	// means nothing was submitted.
	out := Evaluate(Progress{StepsTraversed: 3, ConfirmationSeen: true})
	assert.False(t, out.Success)
	assert.Equal(t, model.FailureNoProgress, out.Category)
}

func TestEvaluate_TouchedWithoutConfirmation(t *testing.T) {
	out := Evaluate(Progress{FieldsFilled: 6, ControlsActivated: 2, StepsTraversed: 3})
	assert.False(t, out.Success)
	assert.Equal(t, model.FailureNoProgress, out.Category)
	assert.Contains(t, out.Evidence, "no confirmation observed")
}

func TestEvaluate_ChallengeBlocked(t *testing.T) {
	// A challenge verdict wins even when progress was made before the block.
	out := Evaluate(Progress{FieldsFilled: 3, ControlsActivated: 1, ChallengeBlocked: true})
	assert.False(t, out.Success)
	assert.Equal(t, model.FailureChallengeBlocked, out.Category)
}

// No combination lacking the confirmation bit may evaluate to success.
func TestEvaluate_NeverSuccessWithoutConfirmation(t *testing.T) {
	for fields := 0; fields <= 2; fields++ {
		for controls := 0; controls <= 2; controls++ {
			for _, blocked := range []bool{false, true} {
				p := Progress{FieldsFilled: fields, ControlsActivated: controls, ChallengeBlocked: blocked}
				if out := Evaluate(p); out.Success {
					t.Errorf("Evaluate(%+v) = success without confirmation", p)
				}
			}
		}
	}
}

// ── Traverse ───────────────────────────────────────────────────────────────

func TestTraverse_TwoStepFlowWithConfirmation(t *testing.T) {
	s := &scriptedSession{steps: []scriptedStep{
		{filled: 5, activated: true},                  // step 1: fill, continue
		{filled: 2, activated: true, confirmed: true}, // step 2: submit, confirm
	}}

	p, err := Traverse(context.Background(), s, 10)
	require.NoError(t, err)

	assert.Equal(t, 7, p.FieldsFilled)
	assert.Equal(t, 2, p.ControlsActivated)
	assert.Equal(t, 2, p.StepsTraversed)
	assert.True(t, p.ConfirmationSeen)
	assert.True(t, Evaluate(p).Success)
}

func TestTraverse_ChallengeStopsImmediately(t *testing.T) {
	s := &scriptedSession{steps: []scriptedStep{
		{filled: 3, activated: true},
		{challenge: true},
	}}

	p, err := Traverse(context.Background(), s, 10)
	require.NoError(t, err)

	assert.True(t, p.ChallengeBlocked)
	assert.Equal(t, 3, p.FieldsFilled)
	assert.Equal(t, model.FailureChallengeBlocked, Evaluate(p).Category)
}

func TestTraverse_NoControlEndsFlow(t *testing.T) {
	// A single page with nothing to click: fill, find no control, check for
	// a confirmation and stop.
	s := &scriptedSession{steps: []scriptedStep{
		{filled: 4, activated: false, confirmed: false},
	}}

	p, err := Traverse(context.Background(), s, 10)
	require.NoError(t, err)

	assert.Equal(t, 1, p.StepsTraversed)
	assert.Zero(t, p.ControlsActivated)
	assert.False(t, p.ConfirmationSeen)
	assert.False(t, Evaluate(p).Success)
}

func TestTraverse_SessionErrorPropagates(t *testing.T) {
	boom := errors.New("page crashed")
	s := &scriptedSession{err: boom, steps: []scriptedStep{{}}}

	_, err := Traverse(context.Background(), s, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestTraverse_StepBound(t *testing.T) {
	// An endless wizard that always finds another continue button.
	endless := make([]scriptedStep, 50)
	for i := range endless {
		endless[i] = scriptedStep{filled: 1, activated: true}
	}
	s := &scriptedSession{steps: endless}

	p, err := Traverse(context.Background(), s, 5)
	require.NoError(t, err)

	assert.Equal(t, 5, p.StepsTraversed)
	assert.False(t, p.ConfirmationSeen)
	assert.False(t, Evaluate(p).Success)
}

func TestTraverse_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &scriptedSession{steps: []scriptedStep{{filled: 1, activated: true}}}
	_, err := Traverse(ctx, s, 10)
	assert.ErrorIs(t, err, context.Canceled)
}
