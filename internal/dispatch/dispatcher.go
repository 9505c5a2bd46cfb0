// Package dispatch drains the application queue: it claims approved entries
// one at a time, selects a submission channel and drives it to a terminal
// outcome under the strict-evidence rule.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"applypilot/pipeline-service/internal/model"
	"applypilot/pipeline-service/internal/queue"
	"applypilot/pipeline-service/internal/retry"
	"applypilot/pipeline-service/internal/store"
)

// Channel is one submission strategy. Execute returns a final outcome for
// the attempt, or an error when the attempt itself broke (navigation,
// transport) and the retry policy should decide.
type Channel interface {
	Kind() model.ChannelKind
	Execute(ctx context.Context, req *model.ExecutionRequest) (*model.ExecutionOutcome, error)
}

// Queue is the slice of the queue manager's surface the dispatcher drives.
// Satisfied by *queue.Manager.
type Queue interface {
	ClaimNext(ctx context.Context) (*queue.Entry, error)
	SetChannel(ctx context.Context, entryID string, ch model.ChannelKind) error
	Release(ctx context.Context, entryID string, eligibleAt time.Time, note string) error
	Complete(ctx context.Context, entryID string, out *model.ExecutionOutcome) (*queue.Entry, error)
}

// Dispatcher owns the execution drain. Entries are processed strictly one
// at a time: the external endpoints being driven are rate-limited and
// pattern-sensitive, so sequential draining is a domain requirement, not a
// technical limitation.
type Dispatcher struct {
	mgr      Queue
	jobs     store.JobStore
	profiles store.ProfileStore
	gate     store.FeatureGate
	counter  store.SubmissionCounter
	notifier store.Notifier
	channels map[model.ChannelKind]Channel
	retryCfg retry.Config
	log      *zap.Logger
}

// New wires a Dispatcher.
func New(
	mgr Queue,
	jobs store.JobStore,
	profiles store.ProfileStore,
	gate store.FeatureGate,
	counter store.SubmissionCounter,
	notifier store.Notifier,
	channels []Channel,
	retryCfg retry.Config,
	log *zap.Logger,
) *Dispatcher {
	byKind := make(map[model.ChannelKind]Channel, len(channels))
	for _, ch := range channels {
		byKind[ch.Kind()] = ch
	}
	return &Dispatcher{
		mgr:      mgr,
		jobs:     jobs,
		profiles: profiles,
		gate:     gate,
		counter:  counter,
		notifier: notifier,
		channels: byKind,
		retryCfg: retryCfg,
		log:      log,
	}
}

// Drain claims and executes eligible entries until none remain. Safe to
// call from a cron tick: each claim is an exclusive conditional transition,
// so overlapping drains never double-execute an entry.
func (d *Dispatcher) Drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		entry, err := d.mgr.ClaimNext(ctx)
		if errors.Is(err, queue.ErrNothingClaimable) {
			return
		}
		if err != nil {
			d.log.Error("claim failed", zap.Error(err))
			return
		}

		d.process(ctx, entry)
	}
}

// process takes one claimed entry to a terminal state (or releases it when
// the candidate's cap is reached). It never panics out: any internal error
// becomes a failed outcome so the entry cannot stay stuck in DISPATCHING.
func (d *Dispatcher) process(ctx context.Context, entry *queue.Entry) {
	log := d.log.With(
		zap.String("entryId", entry.ID),
		zap.String("candidateId", entry.CandidateID),
		zap.String("jobId", entry.JobID),
	)

	out := d.executeGuarded(ctx, entry, log)
	if out == nil {
		// Entry was released back to APPROVED (capacity); nothing to record.
		return
	}

	completed, err := d.mgr.Complete(ctx, entry.ID, out)
	if err != nil {
		log.Error("complete failed", zap.Error(err))
		return
	}

	event := "application_failed"
	if out.Success {
		event = "application_submitted"
		if err := d.counter.RecordSubmission(ctx, entry.CandidateID); err != nil {
			log.Warn("submission counter update failed", zap.Error(err))
		}
	}
	d.notifier.Notify(ctx, entry.CandidateID, event, map[string]string{
		"entryId":  entry.ID,
		"jobId":    entry.JobID,
		"state":    string(completed.State),
		"category": string(out.Category),
		"reason":   out.Reason,
	})
	log.Info("entry completed",
		zap.String("state", string(completed.State)),
		zap.String("channel", string(out.Channel)),
		zap.String("evidence", out.Evidence),
	)
}

// executeGuarded runs the execution pipeline for one entry, downgrading
// panics and internal errors to a failed outcome. A nil return means the
// entry was released, not completed.
func (d *Dispatcher) executeGuarded(ctx context.Context, entry *queue.Entry, log *zap.Logger) (out *model.ExecutionOutcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("execution panicked", zap.Any("panic", r))
			out = model.Failure(model.ChannelNone, model.FailureInternal,
				fmt.Sprintf("execution panicked: %v", r))
		}
	}()

	candidate, err := d.profiles.GetCandidate(ctx, entry.CandidateID)
	if err != nil {
		return model.Failure(model.ChannelNone, model.FailureInternal,
			fmt.Sprintf("load candidate profile: %v", err))
	}

	job, err := d.jobs.GetJob(ctx, entry.JobID)
	if err != nil {
		return model.Failure(model.ChannelNone, model.FailureInternal,
			fmt.Sprintf("load job posting: %v", err))
	}

	// Submission cap: not a failure. The entry goes back to APPROVED,
	// eligible again when the next period starts.
	released, err := d.releaseIfCapped(ctx, entry, candidate, log)
	if err != nil {
		return model.Failure(model.ChannelNone, model.FailureInternal, err.Error())
	}
	if released {
		return nil
	}

	kind := model.ResolveChannel(job.SubmissionHint)
	ch, ok := d.channels[kind]
	if kind == model.ChannelNone || !ok {
		return model.Failure(model.ChannelNone, model.FailureInternal,
			"job posting carries no usable submission channel")
	}
	if err := d.mgr.SetChannel(ctx, entry.ID, kind); err != nil {
		log.Warn("record channel failed", zap.Error(err))
	}

	// Pre-condition: the form and agent channels require the candidate's
	// primary document. Checked before any channel invocation.
	artifact, err := d.profiles.GetPrimaryDocumentArtifact(ctx, entry.CandidateID)
	if err != nil {
		return model.Failure(kind, model.FailureInternal,
			fmt.Sprintf("load document artifact: %v", err))
	}
	if artifact == nil && (kind == model.ChannelForm || kind == model.ChannelAgent) {
		return model.Failure(kind, model.FailureMissingPrerequisite,
			"no primary document on file — upload a resume to enable automated applications")
	}

	req := &model.ExecutionRequest{Candidate: candidate, Job: job, Artifact: artifact}

	attemptErr := retry.Do(ctx, d.retryCfg, func() error {
		res, execErr := ch.Execute(ctx, req)
		if execErr != nil {
			log.Warn("execution attempt failed",
				zap.String("channel", string(kind)), zap.Error(execErr))
			return execErr
		}
		out = res
		return nil
	})
	if attemptErr != nil {
		// transient is reserved for errors that went through the retry
		// policy; anything non-retryable surfacing on a first attempt is a
		// component failure.
		cat := model.FailureInternal
		if errors.Is(attemptErr, retry.ErrMaxAttemptsExceeded) || retry.IsTransient(attemptErr) {
			cat = model.FailureTransient
		}
		return model.Failure(kind, cat,
			fmt.Sprintf("execution failed: %v", attemptErr))
	}
	return out
}

// releaseIfCapped checks today's submission count against the effective cap
// and releases the claim when the cap is reached.
func (d *Dispatcher) releaseIfCapped(ctx context.Context, entry *queue.Entry, candidate *model.CandidateProfile, log *zap.Logger) (bool, error) {
	limit, err := d.gate.ApplicationCapToday(ctx, entry.CandidateID)
	if err != nil {
		return false, fmt.Errorf("consult feature gate: %w", err)
	}
	if candidate.DailyCap > 0 && candidate.DailyCap < limit {
		limit = candidate.DailyCap
	}

	count, err := d.counter.SubmissionsToday(ctx, entry.CandidateID)
	if err != nil {
		return false, fmt.Errorf("read submission counter: %w", err)
	}
	if count < limit {
		return false, nil
	}

	next := nextPeriodStart(time.Now().UTC())
	if err := d.mgr.Release(ctx, entry.ID, next, "daily submission cap reached"); err != nil {
		return false, fmt.Errorf("release capped entry: %w", err)
	}
	log.Info("daily cap reached, entry deferred",
		zap.Int("cap", limit), zap.Time("eligibleAt", next))
	return true, nil
}

// nextPeriodStart returns the next UTC midnight.
func nextPeriodStart(now time.Time) time.Time {
	return now.Truncate(24 * time.Hour).Add(24 * time.Hour)
}
