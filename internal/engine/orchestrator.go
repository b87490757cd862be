package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog/log"

	"github.com/sifthq/sift/internal/domain"
	"github.com/sifthq/sift/pkg/inference"
)

// TaxonomyLoader provides the category taxonomy for a run.
type TaxonomyLoader interface {
	Load(ctx context.Context) (domain.Taxonomy, error)
}

// Config carries the orchestration settings, already validated by the
// configuration layer.
type Config struct {
	BatchThreshold         int
	Workers                int
	LightModel             string
	HeavyModel             string
	RetryMaxAttempts       int
	RetryInitialDelay      time.Duration
	PollInterval           time.Duration
	PollBudget             time.Duration
	MaxSynthesisInputBytes int
	JobNamePrefix          string
	BatchRoleARN           string
	RunTimeout             time.Duration
}

type Dependencies struct {
	Params    domain.ParameterStore
	Sources   map[domain.Mode]domain.EventSource
	Artifacts domain.ObjectStore
	Staging   domain.ObjectStore
	Runner    domain.BatchRunner
	Inference inference.Client
	Outcomes  domain.OutcomeManager
	Taxonomy  TaxonomyLoader
	Config    Config
}

// Orchestrator drives one full analysis run through its states. Every
// invocation starts from scratch; there is no resumption of earlier runs.
// At most one run is in flight per Orchestrator.
type Orchestrator struct {
	params     domain.ParameterStore
	sources    map[domain.Mode]domain.EventSource
	artifacts  domain.ObjectStore
	outcomes   domain.OutcomeManager
	taxonomy   TaxonomyLoader
	gate       *Gate
	ondemand   *OnDemand
	batch      *Batch
	aggregator *Aggregator
	cfg        Config
	running    atomic.Bool
}

func NewOrchestrator(deps Dependencies) (*Orchestrator, error) {
	cfg := deps.Config

	if min := deps.Runner.MinRecordCount(); cfg.BatchThreshold < min {
		return nil, fmt.Errorf("%w: %d is below the runner minimum record count %d",
			domain.ErrInvalidThreshold, cfg.BatchThreshold, min)
	}

	retry := RetryPolicy{
		MaxAttempts:  cfg.RetryMaxAttempts,
		InitialDelay: cfg.RetryInitialDelay,
	}

	return &Orchestrator{
		params:    deps.Params,
		sources:   deps.Sources,
		artifacts: deps.Artifacts,
		outcomes:  deps.Outcomes,
		taxonomy:  deps.Taxonomy,
		gate: NewGate(GateDependencies{
			Client:        deps.Inference,
			Runner:        deps.Runner,
			LightModel:    cfg.LightModel,
			HeavyModel:    cfg.HeavyModel,
			JobNamePrefix: cfg.JobNamePrefix,
		}),
		ondemand: NewOnDemand(OnDemandDependencies{
			Client:    deps.Inference,
			Artifacts: deps.Artifacts,
			Model:     cfg.LightModel,
			Workers:   cfg.Workers,
			Retry:     retry,
		}),
		batch: NewBatch(BatchDependencies{
			Staging:       deps.Staging,
			Artifacts:     deps.Artifacts,
			Runner:        deps.Runner,
			Model:         cfg.LightModel,
			RoleARN:       cfg.BatchRoleARN,
			JobNamePrefix: cfg.JobNamePrefix,
			PollInterval:  cfg.PollInterval,
			PollBudget:    cfg.PollBudget,
		}),
		aggregator: NewAggregator(AggregatorDependencies{
			Client:        deps.Inference,
			Artifacts:     deps.Artifacts,
			Model:         cfg.HeavyModel,
			MaxInputBytes: cfg.MaxSynthesisInputBytes,
			Retry:         retry,
		}),
		cfg: cfg,
	}, nil
}

// Running reports whether a run is currently in flight.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Run executes one orchestration invocation end to end and returns the
// terminal outcome. The outcome is recorded even when the run fails.
func (o *Orchestrator) Run(ctx context.Context) (domain.RunOutcome, error) {
	if !o.running.CompareAndSwap(false, true) {
		return domain.RunOutcome{}, domain.ErrRunInFlight
	}
	defer o.running.Store(false)

	if o.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.RunTimeout)
		defer cancel()
	}

	now := time.Now().UTC()
	outcome := domain.RunOutcome{
		RunID:     xid.New().String(),
		StartedAt: now,
	}
	state := domain.StateInit

	log.Info().Str("run_id", outcome.RunID).Msg("Run started")

	mode, err := o.params.Mode(ctx)
	if err != nil {
		return o.fail(ctx, &outcome, &state, "configuration", err)
	}
	outcome.Mode = mode
	o.transition(outcome.RunID, &state, domain.StateModeResolved)

	since, err := o.params.EventsSince(ctx)
	if err != nil {
		return o.fail(ctx, &outcome, &state, "configuration", err)
	}
	outcome.Window = windowLabel(since, now)

	ready, err := o.gate.Check(ctx, mode)
	if err != nil {
		return o.fail(ctx, &outcome, &state, "precondition", err)
	}
	if !ready.Ready {
		return o.blocked(ctx, &outcome, &state, ready.Reason)
	}
	o.transition(outcome.RunID, &state, domain.StatePreconditionsChecked)

	source, ok := o.sources[mode]
	if !ok {
		return o.fail(ctx, &outcome, &state, "configuration", fmt.Errorf("no event source for mode %s", mode))
	}

	count, err := source.Count(ctx)
	if err != nil {
		return o.fail(ctx, &outcome, &state, "source", err)
	}

	route := Route(count, o.cfg.BatchThreshold)
	outcome.Route = route
	outcome.RoutedAt = time.Now().UTC()
	o.transition(outcome.RunID, &state, domain.StateRouted)

	log.Info().
		Str("run_id", outcome.RunID).
		Int("events", count).
		Int("threshold", o.cfg.BatchThreshold).
		Str("route", string(route)).
		Msg("Route decided")

	if route == domain.RouteNone {
		return o.noEvents(ctx, &outcome, &state)
	}

	events, err := source.List(ctx)
	if err != nil {
		return o.fail(ctx, &outcome, &state, "source", err)
	}

	if len(events) == 0 {
		return o.noEvents(ctx, &outcome, &state)
	}

	outcome.EventsTotal = len(events)
	outcome.EventIDs = eventIDs(events)

	tax, err := o.taxonomy.Load(ctx)
	if err != nil {
		return o.fail(ctx, &outcome, &state, "taxonomy", err)
	}

	rc := domain.RunContext{
		RunID:       outcome.RunID,
		Mode:        mode,
		Window:      outcome.Window,
		StartedAt:   now,
		EventsTotal: len(events),
		Route:       route,
	}

	var (
		partition string
		results   []domain.AnalysisResult
		failures  []domain.EventFailure
	)

	outcome.PathStartedAt = time.Now().UTC()

	switch route {
	case domain.RouteOnDemand:
		partition = ondemandPartition(mode, outcome.Window)
		o.transition(outcome.RunID, &state, domain.StateOnDemandRunning)

		results, failures, err = o.ondemand.Run(ctx, rc, partition, events, tax)
		if err != nil {
			return o.fail(ctx, &outcome, &state, "ondemand", err)
		}

	case domain.RouteBatch:
		partition = batchPartition(mode, now)
		o.transition(outcome.RunID, &state, domain.StateBatchRunning)

		job, err := o.batch.Submit(ctx, rc, events, tax)
		if err != nil {
			return o.fail(ctx, &outcome, &state, "batch-submit", err)
		}

		job, err = o.batch.Poll(ctx, job)
		if err != nil {
			if errors.Is(err, domain.ErrBatchTimeout) {
				return o.fail(ctx, &outcome, &state, "batch-timeout", err)
			}
			return o.fail(ctx, &outcome, &state, "batch-poll", err)
		}

		if job.Status != domain.BatchJobCompleted {
			err := fmt.Errorf("job %s ended %s (%s): %w", job.Name, job.Status, job.StatusMessage, domain.ErrBatchFailed)
			return o.fail(ctx, &outcome, &state, "batch-"+string(job.Status), err)
		}

		results, failures, err = o.batch.Fetch(ctx, rc, partition, job, events, tax)
		if err != nil {
			return o.fail(ctx, &outcome, &state, "batch-fetch", err)
		}
	}

	outcome.PathCompletedAt = time.Now().UTC()
	outcome.Failures = failures

	if len(results) > 0 {
		o.transition(outcome.RunID, &state, domain.StateAggregating)

		if _, err := o.aggregator.Aggregate(ctx, rc, partition, results); err != nil {
			return o.fail(ctx, &outcome, &state, "aggregation", err)
		}
		outcome.SummaryRef = summaryKey(partition)
	} else {
		log.Warn().Str("run_id", outcome.RunID).Msg("No successful analyses, skipping aggregation")
	}

	o.transition(outcome.RunID, &state, domain.StateCompleted)
	outcome.Status = domain.StatusCompleted
	outcome.CompletedAt = time.Now().UTC()
	o.record(ctx, outcome)

	log.Info().
		Str("run_id", outcome.RunID).
		Int("results", len(results)).
		Int("failures", len(failures)).
		Msg("Run completed")

	return outcome, nil
}

func (o *Orchestrator) transition(runID string, state *domain.RunState, to domain.RunState) {
	log.Debug().
		Str("run_id", runID).
		Str("from", string(*state)).
		Str("to", string(to)).
		Msg("Run state changed")
	*state = to
}

func (o *Orchestrator) blocked(ctx context.Context, outcome *domain.RunOutcome, state *domain.RunState, reason string) (domain.RunOutcome, error) {
	o.transition(outcome.RunID, state, domain.StateFailed)
	outcome.Status = domain.StatusBlocked
	outcome.Reason = reason
	outcome.CompletedAt = time.Now().UTC()
	o.record(ctx, *outcome)

	log.Warn().Str("run_id", outcome.RunID).Str("reason", reason).Msg("Run blocked")

	switch reason {
	case domain.BlockedJobInProgress:
		return *outcome, domain.ErrJobConflict
	default:
		return *outcome, domain.ErrModelUnavailable
	}
}

func (o *Orchestrator) noEvents(ctx context.Context, outcome *domain.RunOutcome, state *domain.RunState) (domain.RunOutcome, error) {
	o.transition(outcome.RunID, state, domain.StateNoEvents)
	outcome.Status = domain.StatusNoEvents
	outcome.CompletedAt = time.Now().UTC()
	o.record(ctx, *outcome)

	log.Info().Str("run_id", outcome.RunID).Msg("No events to process")

	return *outcome, nil
}

func (o *Orchestrator) fail(ctx context.Context, outcome *domain.RunOutcome, state *domain.RunState, reason string, err error) (domain.RunOutcome, error) {
	o.transition(outcome.RunID, state, domain.StateFailed)
	outcome.Status = domain.StatusFailed
	outcome.Reason = reason
	outcome.CompletedAt = time.Now().UTC()
	o.record(ctx, *outcome)

	log.Error().Err(err).Str("run_id", outcome.RunID).Str("reason", reason).Msg("Run failed")

	return *outcome, err
}

// record persists the terminal outcome for monitoring. Outcome recording
// never fails a run; it runs on a detached context so late-run timeouts do
// not suppress it.
func (o *Orchestrator) record(ctx context.Context, outcome domain.RunOutcome) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := o.outcomes.Record(rctx, outcome); err != nil {
		log.Warn().Err(err).Str("run_id", outcome.RunID).Msg("Failed to record run outcome")
	}

	if outcome.Mode == "" {
		return
	}

	data, err := json.MarshalIndent(outcome, "", " ")
	if err != nil {
		log.Warn().Err(err).Str("run_id", outcome.RunID).Msg("Failed to marshal run outcome")
		return
	}

	if err := o.artifacts.Put(rctx, runKey(outcome.Mode, outcome.RunID), data); err != nil {
		log.Warn().Err(err).Str("run_id", outcome.RunID).Msg("Failed to persist run outcome artifact")
	}
}

func eventIDs(events []domain.EventRecord) []string {
	ids := make([]string, 0, len(events))
	for _, event := range events {
		ids = append(ids, event.ID())
	}
	return ids
}
