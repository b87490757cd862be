package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/sifthq/sift/internal/controllers"
	"github.com/sifthq/sift/internal/middlewares"
	"github.com/sifthq/sift/internal/version"
)

type HTTPServerDependencies struct {
	RunController *controllers.RunController

	// APIToken guards everything under /v1 when set. The health check
	// stays open either way.
	APIToken string
}

// NewHTTPServer builds the monitoring and control surface. Reads report run
// outcomes; the only writes are triggering a run and switching the mode.
func NewHTTPServer(ctx context.Context, deps HTTPServerDependencies) *fiber.App {
	router := fiber.New(fiber.Config{
		AppName: "sift",
	})

	// Add basic middleware
	router.Use(cors.New())
	router.Use(logger.New())

	// Health check endpoint (no authentication required)
	router.Get("/health", func(c fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":    "healthy",
			"service":   "sift",
			"version":   version.GetVersion(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	v1 := router.Group("/v1")

	if deps.APIToken != "" {
		v1.Use(middlewares.APITokenMiddleware(deps.APIToken))
	}

	v1.Post("/runs", deps.RunController.TriggerRun)
	v1.Get("/outcomes", deps.RunController.ListOutcomes)
	v1.Get("/outcomes/latest", deps.RunController.GetLatestOutcome)
	v1.Get("/mode", deps.RunController.GetMode)
	v1.Put("/mode", deps.RunController.SetMode)

	return router
}
