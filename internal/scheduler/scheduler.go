// Package scheduler triggers orchestration runs on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/sifthq/sift/internal/domain"
)

// Runner executes one full orchestration run.
type Runner interface {
	Run(ctx context.Context) (domain.RunOutcome, error)
}

type SchedulerDependencies struct {
	Runner   Runner
	Schedule string
}

// Scheduler fires the runner on a standard five-field cron expression.
// A tick that arrives while a run is still in flight is skipped; runs
// never overlap.
type Scheduler struct {
	runner   Runner
	schedule string
	cron     *cron.Cron
	running  atomic.Bool
}

func NewScheduler(deps SchedulerDependencies) (*Scheduler, error) {
	if _, err := cron.ParseStandard(deps.Schedule); err != nil {
		return nil, fmt.Errorf("failed to parse cron string: %w", err)
	}

	return &Scheduler{
		runner:   deps.Runner,
		schedule: deps.Schedule,
		cron:     cron.New(),
	}, nil
}

// Start registers the schedule and begins firing ticks. It returns
// immediately; ticks run on the cron goroutine.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		s.tick(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to register schedule: %w", err)
	}

	s.cron.Start()

	log.Info().Str("schedule", s.schedule).Msg("Scheduler started")

	return nil
}

// Stop halts the schedule and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()

	log.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		log.Warn().Msg("Previous run still in flight, skipping this tick")
		return
	}
	defer s.running.Store(false)

	outcome, err := s.runner.Run(ctx)
	if errors.Is(err, domain.ErrRunInFlight) {
		log.Warn().Msg("A run triggered elsewhere is still in flight, skipping this tick")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("run_id", outcome.RunID).Msg("Scheduled run failed")
		return
	}

	log.Info().
		Str("run_id", outcome.RunID).
		Str("status", outcome.Status).
		Int("analyzed", len(outcome.EventIDs)).
		Msg("Scheduled run finished")
}
