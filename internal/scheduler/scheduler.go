// Package scheduler wires up the cron jobs that drive the pipeline: the
// periodic scoring sweep, the dispatch drain, and queue housekeeping.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"applypilot/pipeline-service/internal/dispatch"
	"applypilot/pipeline-service/internal/queue"
	"applypilot/pipeline-service/internal/sweep"
)

// Scheduler wraps robfig/cron and manages the three pipeline loops.
type Scheduler struct {
	cron       *cron.Cron
	sweeper    *sweep.Sweeper
	dispatcher *dispatch.Dispatcher
	mgr        *queue.Manager
	log        *zap.Logger

	sweepSpec string // e.g. "@every 6h"
	drainSpec string // e.g. "@every 1m"
	housekeep string // e.g. "@every 5m"
}

// New creates a Scheduler with the given intervals.
func New(sweeper *sweep.Sweeper, dispatcher *dispatch.Dispatcher, mgr *queue.Manager, log *zap.Logger, sweepEvery, drainEvery, housekeepEvery time.Duration) *Scheduler {
	return &Scheduler{
		cron:       cron.New(cron.WithLogger(cron.DefaultLogger)),
		sweeper:    sweeper,
		dispatcher: dispatcher,
		mgr:        mgr,
		log:        log,
		sweepSpec:  fmt.Sprintf("@every %s", sweepEvery),
		drainSpec:  fmt.Sprintf("@every %s", drainEvery),
		housekeep:  fmt.Sprintf("@every %s", housekeepEvery),
	}
}

// Start registers the jobs and starts the scheduler. Stale DISPATCHING
// entries are recovered once before the loops begin so work interrupted by
// a crash is re-claimable immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	if n, err := s.mgr.RecoverStale(ctx); err != nil {
		s.log.Warn("startup recovery failed", zap.Error(err))
	} else if n > 0 {
		s.log.Info("recovered stale dispatching entries", zap.Int64("count", n))
	}

	if _, err := s.cron.AddFunc(s.sweepSpec, func() { s.runSweep(ctx) }); err != nil {
		return fmt.Errorf("register sweep job: %w", err)
	}
	if _, err := s.cron.AddFunc(s.drainSpec, func() { s.dispatcher.Drain(ctx) }); err != nil {
		return fmt.Errorf("register drain job: %w", err)
	}
	if _, err := s.cron.AddFunc(s.housekeep, func() { s.runHousekeeping(ctx) }); err != nil {
		return fmt.Errorf("register housekeeping job: %w", err)
	}

	s.cron.Start()
	s.log.Info("scheduler started",
		zap.String("sweep", s.sweepSpec),
		zap.String("drain", s.drainSpec),
		zap.String("housekeeping", s.housekeep),
	)

	// Populate the queue without waiting for the first tick.
	go s.runSweep(ctx)

	return nil
}

// Stop gracefully shuts down the scheduler, waiting for running jobs.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) runSweep(ctx context.Context) {
	if err := s.sweeper.Run(ctx); err != nil {
		s.log.Error("scoring sweep failed", zap.Error(err))
	}
}

// runHousekeeping advances time-driven transitions: delayed auto-approvals
// come due, expired entries retire, and stale dispatching claims return to
// the claimable pool.
func (s *Scheduler) runHousekeeping(ctx context.Context) {
	if n, err := s.mgr.AutoApproveDue(ctx); err != nil {
		s.log.Warn("auto-approve pass failed", zap.Error(err))
	} else if n > 0 {
		s.log.Info("auto-approved due entries", zap.Int64("count", n))
	}

	if n, err := s.mgr.ExpireSweep(ctx); err != nil {
		s.log.Warn("expire pass failed", zap.Error(err))
	} else if n > 0 {
		s.log.Info("expired stale entries", zap.Int64("count", n))
	}

	if n, err := s.mgr.RecoverStale(ctx); err != nil {
		s.log.Warn("stale recovery failed", zap.Error(err))
	} else if n > 0 {
		s.log.Info("recovered stale dispatching entries", zap.Int64("count", n))
	}
}
