package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sifthq/sift/internal/controllers"
	"github.com/sifthq/sift/internal/scheduler"
	"github.com/sifthq/sift/internal/server"
)

func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the monitoring server",
		Long: `Run sift as a resident service. Scheduled runs fire on the configured
cron expression and the HTTP surface exposes run outcomes, the analysis
mode and a manual trigger.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	return cmd
}

func runServe() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	container, err := newContainer(ctx)
	if err != nil {
		return err
	}
	defer container.Close(context.Background())

	cfg := container.Config()

	if cfg.Schedule != "" {
		sched, err := scheduler.NewScheduler(scheduler.SchedulerDependencies{
			Runner:   container.Orchestrator(),
			Schedule: cfg.Schedule,
		})
		if err != nil {
			return err
		}

		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()
	} else {
		log.Info().Msg("No schedule configured, runs start only on demand")
	}

	app := server.NewHTTPServer(ctx, server.HTTPServerDependencies{
		RunController: controllers.NewRunController(controllers.RunControllerDependencies{
			Trigger:  container.Orchestrator(),
			Params:   container.Params(),
			Outcomes: container.Outcomes(),
		}),
		APIToken: cfg.APIToken,
	})

	log.Info().Str("address", cfg.HTTPAddress).Msg("Starting monitoring server")

	if err := app.Listen(cfg.HTTPAddress, fiber.ListenConfig{
		GracefulContext:       ctx,
		DisableStartupMessage: true,
	}); err != nil {
		log.Error().Err(err).Msg("HTTP server failed")
	}

	log.Info().Msg("Service stopped")

	return nil
}
