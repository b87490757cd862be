package engine

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sifthq/sift/internal/domain"
	"github.com/sifthq/sift/internal/prompts"
	"github.com/sifthq/sift/pkg/inference"
)

// OnDemand fans events out to the light model with bounded parallelism. A
// failed event becomes a failure entry and never aborts its siblings.
type OnDemand struct {
	client    inference.Client
	artifacts domain.ObjectStore
	model     string
	workers   int
	retry     RetryPolicy
}

type OnDemandDependencies struct {
	Client    inference.Client
	Artifacts domain.ObjectStore
	Model     string
	Workers   int
	Retry     RetryPolicy
}

func NewOnDemand(deps OnDemandDependencies) *OnDemand {
	workers := deps.Workers
	if workers < 1 {
		workers = 1
	}

	return &OnDemand{
		client:    deps.Client,
		artifacts: deps.Artifacts,
		model:     deps.Model,
		workers:   workers,
		retry:     deps.Retry,
	}
}

// Run analyzes every event and persists one artifact per success. It returns
// early only when the run context ends; per-event errors are collected.
func (o *OnDemand) Run(ctx context.Context, rc domain.RunContext, partition string, events []domain.EventRecord, tax domain.Taxonomy) ([]domain.AnalysisResult, []domain.EventFailure, error) {
	var (
		mu       sync.Mutex
		results  []domain.AnalysisResult
		failures []domain.EventFailure
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	for _, event := range events {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			result, err := o.analyzeOne(gctx, rc, partition, event, tax)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				log.Warn().Err(err).Str("event_id", event.ID()).Msg("Event analysis failed")
				failures = append(failures, domain.EventFailure{
					EventID: event.ID(),
					Reason:  err.Error(),
				})
				return nil
			}

			results = append(results, result)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].EventID < results[j].EventID })
	sort.Slice(failures, func(i, j int) bool { return failures[i].EventID < failures[j].EventID })

	return results, failures, nil
}

func (o *OnDemand) analyzeOne(ctx context.Context, rc domain.RunContext, partition string, event domain.EventRecord, tax domain.Taxonomy) (domain.AnalysisResult, error) {
	system, user := prompts.Classification(tax, event)

	req := inference.GenerateRequest{
		Model:       o.model,
		System:      system,
		Prompt:      user,
		Temperature: prompts.ClassifyTemperature,
		TopP:        prompts.ClassifyTopP,
		MaxTokens:   prompts.ClassifyMaxTokens,
	}

	var resp *inference.GenerateResponse
	err := o.retry.Do(ctx, "classify "+event.ID(), func(ctx context.Context) error {
		var genErr error
		resp, genErr = o.client.Generate(ctx, req)
		return genErr
	})
	if err != nil {
		return domain.AnalysisResult{}, err
	}

	analysis, err := parseModelAnalysis(resp.Content)
	if err != nil {
		return domain.AnalysisResult{}, err
	}

	result := assembleResult(rc, event, analysis, tax)

	data, err := marshalResult(result)
	if err != nil {
		return domain.AnalysisResult{}, err
	}

	if err := o.artifacts.Put(ctx, eventKey(partition, event.ID()), data); err != nil {
		return domain.AnalysisResult{}, err
	}

	return result, nil
}
