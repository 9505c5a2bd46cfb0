package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"applypilot/pipeline-service/internal/model"
	"applypilot/pipeline-service/internal/queue"
	"applypilot/pipeline-service/internal/retry"
)

// ── Fakes ──────────────────────────────────────────────────────────────────

type fakeChannel struct {
	kind     model.ChannelKind
	out      *model.ExecutionOutcome
	err      error
	panicMsg string
	calls    int
}

func (f *fakeChannel) Kind() model.ChannelKind { return f.kind }

func (f *fakeChannel) Execute(context.Context, *model.ExecutionRequest) (*model.ExecutionOutcome, error) {
	f.calls++
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.out != nil {
		return f.out, nil
	}
	return &model.ExecutionOutcome{Channel: f.kind, Success: true}, nil
}

type fakeQueue struct {
	claims    []*queue.Entry
	released  []string
	releaseAt time.Time
	completed map[string]*model.ExecutionOutcome
}

func (f *fakeQueue) ClaimNext(context.Context) (*queue.Entry, error) {
	if len(f.claims) == 0 {
		return nil, queue.ErrNothingClaimable
	}
	e := f.claims[0]
	f.claims = f.claims[1:]
	return e, nil
}

func (f *fakeQueue) SetChannel(context.Context, string, model.ChannelKind) error { return nil }

func (f *fakeQueue) Release(_ context.Context, entryID string, eligibleAt time.Time, _ string) error {
	f.released = append(f.released, entryID)
	f.releaseAt = eligibleAt
	return nil
}

func (f *fakeQueue) Complete(_ context.Context, entryID string, out *model.ExecutionOutcome) (*queue.Entry, error) {
	if f.completed == nil {
		f.completed = make(map[string]*model.ExecutionOutcome)
	}
	f.completed[entryID] = out
	state := queue.StateFailed
	if out.Success {
		state = queue.StateApplied
	}
	return &queue.Entry{ID: entryID, State: state}, nil
}

type fakeJobs struct{ job *model.JobPosting }

func (f *fakeJobs) ListActiveJobs(context.Context, time.Time) ([]model.JobPosting, error) {
	return nil, nil
}

func (f *fakeJobs) GetJob(context.Context, string) (*model.JobPosting, error) { return f.job, nil }

type fakeProfiles struct {
	candidate *model.CandidateProfile
	artifact  *model.DocumentArtifact
}

func (f *fakeProfiles) GetActiveCandidates(context.Context) ([]model.CandidateProfile, error) {
	return nil, nil
}

func (f *fakeProfiles) GetCandidate(context.Context, string) (*model.CandidateProfile, error) {
	return f.candidate, nil
}

func (f *fakeProfiles) GetPrimaryDocumentArtifact(context.Context, string) (*model.DocumentArtifact, error) {
	return f.artifact, nil
}

type fakeGate struct{ limit int }

func (f *fakeGate) ApplicationCapToday(context.Context, string) (int, error) { return f.limit, nil }

type fakeCounter struct {
	today    int
	recorded []string
}

func (f *fakeCounter) SubmissionsToday(context.Context, string) (int, error) { return f.today, nil }

func (f *fakeCounter) RecordSubmission(_ context.Context, candidateID string) error {
	f.recorded = append(f.recorded, candidateID)
	return nil
}

type fakeNotifier struct{ events []string }

func (f *fakeNotifier) Notify(_ context.Context, _, event string, _ map[string]string) {
	f.events = append(f.events, event)
}

// fixture wires a Dispatcher around one claimed entry and one channel, with
// millisecond retry delays so transient paths stay fast.
type fixture struct {
	q        *fakeQueue
	counter  *fakeCounter
	notifier *fakeNotifier
	ch       *fakeChannel
	d        *Dispatcher
}

func newFixture(hint string, artifact *model.DocumentArtifact, ch *fakeChannel) *fixture {
	q := &fakeQueue{claims: []*queue.Entry{
		{ID: "entry-1", CandidateID: "cand-1", JobID: "job-1"},
	}}
	counter := &fakeCounter{}
	notifier := &fakeNotifier{}
	cfg := retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
		IsRetryable:  retry.IsTransient,
	}
	d := New(
		q,
		&fakeJobs{job: &model.JobPosting{ID: "job-1", Title: "Software Engineer", SubmissionHint: hint}},
		&fakeProfiles{
			candidate: &model.CandidateProfile{ID: "cand-1", FullName: "Dana Cruz"},
			artifact:  artifact,
		},
		&fakeGate{limit: 10},
		counter,
		notifier,
		[]Channel{ch},
		cfg,
		zap.NewNop(),
	)
	return &fixture{q: q, counter: counter, notifier: notifier, ch: ch, d: d}
}

func testArtifact() *model.DocumentArtifact {
	return &model.DocumentArtifact{CandidateID: "cand-1", FileName: "resume.pdf", Path: "/tmp/resume.pdf"}
}

// New must index channels by kind so ResolveChannel output maps directly.
func TestNew_ChannelIndex(t *testing.T) {
	d := New(nil, nil, nil, nil, nil, nil, []Channel{
		&fakeChannel{kind: model.ChannelForm},
		&fakeChannel{kind: model.ChannelMessage},
		&fakeChannel{kind: model.ChannelAgent},
	}, retry.DefaultConfig(), zap.NewNop())

	for _, kind := range []model.ChannelKind{
		model.ChannelForm, model.ChannelMessage, model.ChannelAgent,
	} {
		ch, ok := d.channels[kind]
		if assert.True(t, ok, "channel %q not registered", kind) {
			assert.Equal(t, kind, ch.Kind())
		}
	}
	_, ok := d.channels[model.ChannelNone]
	assert.False(t, ok)
}

// ── Drain — terminal outcomes ──────────────────────────────────────────────

// A candidate without a primary document fails with missing_prerequisite
// and the channel is never invoked.
func TestDrain_MissingDocumentFailsWithoutChannelCall(t *testing.T) {
	f := newFixture("https://jobs.acme.example/apply", nil, &fakeChannel{kind: model.ChannelForm})

	f.d.Drain(context.Background())

	assert.Zero(t, f.ch.calls, "channel must not be invoked without the document")
	out := f.q.completed["entry-1"]
	require.NotNil(t, out)
	assert.False(t, out.Success)
	assert.Equal(t, model.FailureMissingPrerequisite, out.Category)
}

// A panic inside a channel becomes a failed/internal_error outcome instead
// of killing the drain loop or leaving the entry in DISPATCHING.
func TestDrain_PanicBecomesInternalError(t *testing.T) {
	f := newFixture("https://jobs.acme.example/apply", testArtifact(),
		&fakeChannel{kind: model.ChannelForm, panicMsg: "nil page handle"})

	f.d.Drain(context.Background())

	out := f.q.completed["entry-1"]
	require.NotNil(t, out)
	assert.False(t, out.Success)
	assert.Equal(t, model.FailureInternal, out.Category)
	assert.Contains(t, out.Reason, "panicked")
}

// Reaching the daily cap releases the claim for the next period; it is not
// a failure and no channel runs.
func TestDrain_CapReachedReleasesClaim(t *testing.T) {
	f := newFixture("https://jobs.acme.example/apply", testArtifact(), &fakeChannel{kind: model.ChannelForm})
	f.counter.today = 10

	f.d.Drain(context.Background())

	assert.Equal(t, []string{"entry-1"}, f.q.released)
	assert.Empty(t, f.q.completed, "a capped entry must not be completed")
	assert.Zero(t, f.ch.calls)
	assert.True(t, f.q.releaseAt.After(time.Now().UTC()))
	assert.Equal(t, 0, f.q.releaseAt.Hour(), "deferred to the next period start")
}

// A non-retryable channel error on the first attempt is a component
// failure, not a transient one, and must not be retried.
func TestDrain_NonRetryableErrorIsInternal(t *testing.T) {
	f := newFixture("https://jobs.acme.example/apply", testArtifact(),
		&fakeChannel{kind: model.ChannelForm, err: errors.New("malformed application payload")})

	f.d.Drain(context.Background())

	assert.Equal(t, 1, f.ch.calls, "non-retryable errors get exactly one attempt")
	out := f.q.completed["entry-1"]
	require.NotNil(t, out)
	assert.Equal(t, model.FailureInternal, out.Category)
}

// A transient error is retried up to the bound and then recorded as
// transient.
func TestDrain_TransientErrorExhaustsRetries(t *testing.T) {
	f := newFixture("https://jobs.acme.example/apply", testArtifact(),
		&fakeChannel{kind: model.ChannelForm, err: errors.New("connection refused")})

	f.d.Drain(context.Background())

	assert.Equal(t, 3, f.ch.calls)
	out := f.q.completed["entry-1"]
	require.NotNil(t, out)
	assert.Equal(t, model.FailureTransient, out.Category)
}

// A successful execution records the submission and notifies the candidate.
func TestDrain_SuccessRecordsSubmission(t *testing.T) {
	f := newFixture("jobs@acme.example", testArtifact(), &fakeChannel{kind: model.ChannelMessage})

	f.d.Drain(context.Background())

	out := f.q.completed["entry-1"]
	require.NotNil(t, out)
	assert.True(t, out.Success)
	assert.Equal(t, []string{"cand-1"}, f.counter.recorded)
	assert.Contains(t, f.notifier.events, "application_submitted")
}

// An empty submission hint cannot be routed anywhere.
func TestDrain_NoUsableChannelIsInternal(t *testing.T) {
	f := newFixture("", testArtifact(), &fakeChannel{kind: model.ChannelForm})

	f.d.Drain(context.Background())

	assert.Zero(t, f.ch.calls)
	out := f.q.completed["entry-1"]
	require.NotNil(t, out)
	assert.Equal(t, model.FailureInternal, out.Category)
}

// ── nextPeriodStart ────────────────────────────────────────────────────────

func TestNextPeriodStart(t *testing.T) {
	cases := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			"mid-day rolls to next midnight",
			time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC),
			time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			"just before midnight",
			time.Date(2025, 3, 10, 23, 59, 59, 0, time.UTC),
			time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			"exactly midnight defers a full day",
			time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
			time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			"month boundary",
			time.Date(2025, 1, 31, 8, 0, 0, 0, time.UTC),
			time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, c := range cases {
		got := nextPeriodStart(c.now)
		assert.Equal(t, c.want, got, c.name)
		assert.True(t, got.After(c.now), "%s: next period must be in the future", c.name)
	}
}
