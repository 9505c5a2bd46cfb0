// Package sweep runs the periodic scoring pass: active candidates × fresh
// jobs, scored and queued. Hard-filtered pairs are discarded before the
// queue ever sees them.
package sweep

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"applypilot/pipeline-service/internal/model"
	"applypilot/pipeline-service/internal/queue"
	"applypilot/pipeline-service/internal/scoring"
	"applypilot/pipeline-service/internal/store"
)

const defaultConcurrency = 4

// Sweeper scores (candidate, job) pairs and feeds the queue.
type Sweeper struct {
	engine      *scoring.Engine
	mgr         *queue.Manager
	jobs        store.JobStore
	profiles    store.ProfileStore
	log         *zap.Logger
	lookback    time.Duration // job freshness window per sweep
	concurrency int
}

// New constructs a Sweeper.
func New(engine *scoring.Engine, mgr *queue.Manager, jobs store.JobStore, profiles store.ProfileStore, log *zap.Logger, lookback time.Duration) *Sweeper {
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	return &Sweeper{
		engine:      engine,
		mgr:         mgr,
		jobs:        jobs,
		profiles:    profiles,
		log:         log,
		lookback:    lookback,
		concurrency: defaultConcurrency,
	}
}

// Run executes one full sweep over all active candidates. Per-pair errors
// are logged and skipped; a single bad pair never aborts the sweep.
func (s *Sweeper) Run(ctx context.Context) error {
	candidates, err := s.profiles.GetActiveCandidates(ctx)
	if err != nil {
		return fmt.Errorf("load active candidates: %w", err)
	}
	if len(candidates) == 0 {
		s.log.Info("scoring sweep: no active candidates")
		return nil
	}

	jobs, err := s.jobs.ListActiveJobs(ctx, time.Now().UTC().Add(-s.lookback))
	if err != nil {
		return fmt.Errorf("load fresh jobs: %w", err)
	}
	if len(jobs) == 0 {
		s.log.Info("scoring sweep: no fresh jobs")
		return nil
	}

	s.log.Info("scoring sweep started",
		zap.Int("candidates", len(candidates)),
		zap.Int("jobs", len(jobs)),
	)

	// Scoring is pure; the only shared write is the queue upsert, which is
	// conditional. Fan out across candidates with a bound.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range candidates {
		c := candidates[i]
		g.Go(func() error {
			s.sweepCandidate(gctx, &c, jobs)
			return nil
		})
	}
	_ = g.Wait()

	s.log.Info("scoring sweep complete")
	return nil
}

// RunCandidate performs an immediate sweep for one candidate (the on-demand
// rescan trigger).
func (s *Sweeper) RunCandidate(ctx context.Context, candidateID string) error {
	c, err := s.profiles.GetCandidate(ctx, candidateID)
	if err != nil {
		return fmt.Errorf("load candidate %s: %w", candidateID, err)
	}

	jobs, err := s.jobs.ListActiveJobs(ctx, time.Now().UTC().Add(-s.lookback))
	if err != nil {
		return fmt.Errorf("load fresh jobs: %w", err)
	}

	s.sweepCandidate(ctx, c, jobs)
	return nil
}

// sweepCandidate scores every fresh job for one candidate.
func (s *Sweeper) sweepCandidate(ctx context.Context, c *model.CandidateProfile, jobs []model.JobPosting) {
	var queued, filtered, gated int

	for i := range jobs {
		j := &jobs[i]
		if ctx.Err() != nil {
			return
		}

		// Hard filters run before the score matters: a discarded pair is
		// never queued, logged once for audit.
		if verdict := scoring.PassesHardFilters(c, j); !verdict.Passed {
			filtered++
			s.log.Debug("pair discarded by hard filter",
				zap.String("candidateId", c.ID),
				zap.String("jobId", j.ID),
				zap.String("reason", verdict.Reason),
			)
			continue
		}

		res := s.engine.Score(c, j)
		inserted, err := s.mgr.Upsert(ctx, c, j, res)
		if err != nil {
			s.log.Warn("queue upsert failed — continuing",
				zap.String("candidateId", c.ID),
				zap.String("jobId", j.ID),
				zap.Error(err),
			)
			continue
		}
		if inserted {
			queued++
		} else if res.Total < s.mgr.Gates().For(c.Sensitivity) {
			gated++
		}
	}

	s.log.Info("candidate sweep done",
		zap.String("candidateId", c.ID),
		zap.Int("queued", queued),
		zap.Int("filtered", filtered),
		zap.Int("belowGate", gated),
	)
}
