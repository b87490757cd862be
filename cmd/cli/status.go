package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sifthq/sift/internal/domain"
)

func NewStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the analysis mode and recent run outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return runStatus(limit)
		},
	}

	cmd.Flags().Int("limit", 10, "Number of recent runs to show")

	return cmd
}

func runStatus(limit int) error {
	ctx := context.Background()

	container, err := newContainer(ctx)
	if err != nil {
		return err
	}
	defer container.Close(ctx)

	mode, err := container.Params().Mode(ctx)
	switch {
	case errors.Is(err, domain.ErrModeNotSet):
		fmt.Println("❌ Analysis mode is not set")
	case err != nil:
		return err
	default:
		fmt.Printf("✅ Analysis mode: %s\n", mode)
	}

	since, err := container.Params().EventsSince(ctx)
	if err != nil {
		return err
	}

	if since.IsZero() {
		fmt.Println("   Ingest watermark: unset, the whole backlog is in scope")
	} else {
		fmt.Printf("   Ingest watermark: %s\n", since.Format(time.RFC3339))
	}

	outcomes, err := container.Outcomes().Recent(ctx, limit)
	if err != nil {
		return err
	}

	if len(outcomes) == 0 {
		fmt.Println("\nNo runs recorded yet")
		return nil
	}

	fmt.Printf("\nRecent runs (%d):\n", len(outcomes))

	for _, outcome := range outcomes {
		line := fmt.Sprintf("   %s  %-6s  %-8s  %s",
			outcome.RunID, outcome.Mode, outcome.Route, outcome.Status)
		if outcome.Reason != "" {
			line += fmt.Sprintf(" (%s)", outcome.Reason)
		}
		if outcome.SummaryRef != "" {
			line += fmt.Sprintf("  -> %s", outcome.SummaryRef)
		}

		fmt.Println(line)
	}

	return nil
}
