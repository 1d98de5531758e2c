// Package worker runs the daily reconciliation jobs. A job that is still
// running when its next trigger arrives is skipped, both in this process and
// across replicas holding the shared Redis job lock.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/clock"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/config"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/metrics"
	redisclient "github.com/JavaTeamPosTech/meu-hospital-microservices/internal/redis"
)

var ErrUnknownJob = errors.New("unknown job")

type Job struct {
	Name string
	At   config.TimeOfDay
	Run  func(ctx context.Context) (int, error)
}

type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

type Options struct {
	Location   *time.Location
	RunTimeout time.Duration
	RunOnStart bool
}

type entry struct {
	Job
	running atomic.Bool
}

type Scheduler struct {
	jobs    map[string]*entry
	order   []string
	locker  redisclient.Locker
	clock   clock.Clock
	opts    Options
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewScheduler(jobs []Job, locker redisclient.Locker, clk clock.Clock, opts Options, logger zerolog.Logger, m *metrics.Metrics) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	s := &Scheduler{
		jobs:    make(map[string]*entry, len(jobs)),
		locker:  locker,
		clock:   clk,
		opts:    opts,
		logger:  logger.With().Str("component", "scheduler").Logger(),
		metrics: m,
	}
	for _, j := range jobs {
		s.jobs[j.Name] = &entry{Job: j}
		s.order = append(s.order, j.Name)
	}
	return s
}

// NextRun returns the first occurrence of at in loc strictly after now.
func NextRun(now time.Time, at config.TimeOfDay, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), at.Hour, at.Minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, at.Hour, at.Minute, 0, 0, loc)
	}
	return next
}

// Run blocks until ctx is cancelled, firing every job at its daily time.
func (s *Scheduler) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, name := range s.order {
		e := s.jobs[name]
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, e)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (s *Scheduler) loop(ctx context.Context, e *entry) {
	if s.opts.RunOnStart {
		s.trigger(ctx, e)
	}

	for {
		next := NextRun(s.clock.Now(), e.At, s.opts.Location)
		s.logger.Info().Str("job", e.Name).Time("next_run", next).Msg("job scheduled")

		timer := time.NewTimer(next.Sub(s.clock.Now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		// detached: a tick that lands on a still-running job is skipped
		go s.trigger(ctx, e)
	}
}

// Trigger runs the named job now, honouring skip-if-running.
func (s *Scheduler) Trigger(ctx context.Context, name string) (Outcome, int, error) {
	e, ok := s.jobs[name]
	if !ok {
		return OutcomeFailed, 0, ErrUnknownJob
	}
	return s.trigger(ctx, e)
}

func (s *Scheduler) trigger(ctx context.Context, e *entry) (Outcome, int, error) {
	log := s.logger.With().Str("job", e.Name).Logger()

	if !e.running.CompareAndSwap(false, true) {
		log.Warn().Msg("previous run still active, skipping")
		s.metrics.JobRun(e.Name, string(OutcomeSkipped), 0)
		return OutcomeSkipped, 0, nil
	}
	defer e.running.Store(false)

	runCtx := ctx
	if s.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.opts.RunTimeout)
		defer cancel()
	}

	start := time.Now()
	var n int
	err := s.locker.WithLock(runCtx, redisclient.JobLockKey(e.Name), func(lockCtx context.Context) error {
		var runErr error
		n, runErr = e.Run(lockCtx)
		return runErr
	})
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		log.Warn().Msg("job lock held by another replica, skipping")
		s.metrics.JobRun(e.Name, string(OutcomeSkipped), elapsed)
		return OutcomeSkipped, 0, nil
	case err != nil:
		log.Error().Err(err).Int("processed", n).Dur("elapsed", elapsed).Msg("job run failed")
		s.metrics.JobRun(e.Name, string(OutcomeFailed), elapsed)
		return OutcomeFailed, n, err
	}

	log.Info().Int("processed", n).Dur("elapsed", elapsed).Msg("job run complete")
	s.metrics.JobRun(e.Name, string(OutcomeOK), elapsed)
	return OutcomeOK, n, nil
}
