package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sifthq/sift/internal/domain"
	"github.com/sifthq/sift/pkg/inference"
)

// Readiness is the gate verdict. A non-ready verdict carries one of the
// stable blocked-reason tokens.
type Readiness struct {
	Ready  bool
	Reason string
}

// Gate verifies that a run may start: both models must be invocable and no
// batch job for the mode may still be in flight. A blocked verdict is final
// for the invocation; the next scheduled run re-checks from scratch.
type Gate struct {
	client        inference.Client
	runner        domain.BatchRunner
	lightModel    string
	heavyModel    string
	jobNamePrefix string
}

type GateDependencies struct {
	Client        inference.Client
	Runner        domain.BatchRunner
	LightModel    string
	HeavyModel    string
	JobNamePrefix string
}

func NewGate(deps GateDependencies) *Gate {
	return &Gate{
		client:        deps.Client,
		runner:        deps.Runner,
		lightModel:    deps.LightModel,
		heavyModel:    deps.HeavyModel,
		jobNamePrefix: deps.JobNamePrefix,
	}
}

func (g *Gate) Check(ctx context.Context, mode domain.Mode) (Readiness, error) {
	models := []string{g.lightModel}
	if g.heavyModel != g.lightModel {
		models = append(models, g.heavyModel)
	}

	for _, model := range models {
		if err := g.client.CheckModel(ctx, model); err != nil {
			if errors.Is(err, inference.ErrModelUnavailable) {
				log.Warn().Str("model", model).Msg("Model is not available")
				return Readiness{Reason: domain.BlockedModelUnavailable}, nil
			}
			return Readiness{}, fmt.Errorf("model check failed for %s: %w", model, err)
		}
	}

	active, err := g.runner.CountActive(ctx, fmt.Sprintf("%s-%s", g.jobNamePrefix, mode))
	if err != nil {
		return Readiness{}, fmt.Errorf("failed to count active batch jobs: %w", err)
	}

	if active > 0 {
		log.Warn().Int("active_jobs", active).Str("mode", mode.String()).Msg("Batch job still in flight")
		return Readiness{Reason: domain.BlockedJobInProgress}, nil
	}

	return Readiness{Ready: true}, nil
}
