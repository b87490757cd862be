package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one analysis run",
		Long: `Execute one full analysis run: resolve the mode, check preconditions,
route by event volume and produce the aggregate summary. The command waits
for the run to finish and prints the outcome as JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce()
		},
	}

	return cmd
}

func runOnce() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	container, err := newContainer(ctx)
	if err != nil {
		return err
	}
	defer container.Close(context.Background())

	outcome, runErr := container.Orchestrator().Run(ctx)

	if outcome.RunID != "" {
		encoded, err := json.MarshalIndent(outcome, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode outcome: %w", err)
		}

		fmt.Println(string(encoded))
	}

	return runErr
}
