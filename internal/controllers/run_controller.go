package controllers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/sifthq/sift/internal/domain"
)

// Trigger starts orchestration runs outside the cron schedule.
type Trigger interface {
	Run(ctx context.Context) (domain.RunOutcome, error)
	Running() bool
}

// RunController exposes run triggering, run outcomes, and the analysis mode
// over HTTP.
type RunController struct {
	trigger  Trigger
	params   domain.ParameterStore
	outcomes domain.OutcomeManager
}

type RunControllerDependencies struct {
	Trigger  Trigger
	Params   domain.ParameterStore
	Outcomes domain.OutcomeManager
}

func NewRunController(deps RunControllerDependencies) *RunController {
	return &RunController{
		trigger:  deps.Trigger,
		params:   deps.Params,
		outcomes: deps.Outcomes,
	}
}

// TriggerRun starts a run in the background and returns immediately. Runs can
// take most of an hour on the batch path, so the handler never waits for one.
func (c *RunController) TriggerRun(ctx fiber.Ctx) error {
	if c.trigger.Running() {
		return fiber.NewError(fiber.StatusConflict, "A run is already in flight")
	}

	go func() {
		outcome, err := c.trigger.Run(context.Background())
		if errors.Is(err, domain.ErrRunInFlight) {
			log.Warn().Msg("A run is already in flight, trigger dropped")
			return
		}
		if err != nil {
			log.Error().Err(err).Str("run_id", outcome.RunID).Msg("Triggered run failed")
			return
		}

		log.Info().
			Str("run_id", outcome.RunID).
			Str("status", outcome.Status).
			Msg("Triggered run finished")
	}()

	return ctx.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "accepted",
	})
}

// GetLatestOutcome returns the most recent outcome for a mode. The mode comes
// from the query string, falling back to the persisted analysis mode.
func (c *RunController) GetLatestOutcome(ctx fiber.Ctx) error {
	mode, err := c.resolveMode(ctx)
	if err != nil {
		return err
	}

	outcome, err := c.outcomes.Latest(ctx.RequestCtx(), mode)
	if errors.Is(err, domain.ErrOutcomeNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "No run has been recorded for this mode")
	}
	if err != nil {
		log.Error().Err(err).Str("mode", mode.String()).Msg("Failed to load latest outcome")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to load latest outcome")
	}

	return ctx.JSON(outcome)
}

// ListOutcomes returns recent run outcomes, newest first.
func (c *RunController) ListOutcomes(ctx fiber.Ctx) error {
	limit := fiber.Query(ctx, "limit", 20)
	if limit < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "Limit must not be negative")
	}

	outcomes, err := c.outcomes.Recent(ctx.RequestCtx(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list outcomes")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to list outcomes")
	}

	return ctx.JSON(outcomes)
}

// GetMode returns the persisted analysis mode.
func (c *RunController) GetMode(ctx fiber.Ctx) error {
	mode, err := c.params.Mode(ctx.RequestCtx())
	if errors.Is(err, domain.ErrModeNotSet) {
		return fiber.NewError(fiber.StatusNotFound, "Analysis mode is not set")
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to read analysis mode")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to read analysis mode")
	}

	return ctx.JSON(fiber.Map{
		"mode": mode,
	})
}

type setModeRequest struct {
	Mode string `json:"mode"`
}

// SetMode persists a new analysis mode for subsequent runs.
func (c *RunController) SetMode(ctx fiber.Ctx) error {
	var req setModeRequest

	if err := ctx.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	mode, err := domain.ParseMode(req.Mode)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Mode must be cases or health")
	}

	if err := c.params.SetMode(ctx.RequestCtx(), mode); err != nil {
		log.Error().Err(err).Str("mode", mode.String()).Msg("Failed to persist analysis mode")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to persist analysis mode")
	}

	log.Info().Str("mode", mode.String()).Msg("Analysis mode updated")

	return ctx.JSON(fiber.Map{
		"mode": mode,
	})
}

func (c *RunController) resolveMode(ctx fiber.Ctx) (domain.Mode, error) {
	if raw := ctx.Query("mode"); raw != "" {
		mode, err := domain.ParseMode(raw)
		if err != nil {
			return "", fiber.NewError(fiber.StatusBadRequest, "Mode must be cases or health")
		}
		return mode, nil
	}

	mode, err := c.params.Mode(ctx.RequestCtx())
	if errors.Is(err, domain.ErrModeNotSet) {
		return "", fiber.NewError(fiber.StatusBadRequest, "Analysis mode is not set, pass ?mode=")
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to read analysis mode")
		return "", fiber.NewError(fiber.StatusInternalServerError, "Failed to read analysis mode")
	}

	return mode, nil
}
