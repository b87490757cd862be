package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sifthq/sift/internal/domain"
)

func NewModeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mode",
		Short: "Manage the analysis mode",
		Long:  `Read or change the persisted analysis mode. Runs are blocked until a mode is set.`,
	}

	cmd.AddCommand(NewModeGetCommand())
	cmd.AddCommand(NewModeSetCommand())

	return cmd
}

func NewModeGetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Print the current analysis mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModeGet()
		},
	}

	return cmd
}

func NewModeSetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <cases|health>",
		Short: "Set the analysis mode for subsequent runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModeSet(args[0])
		},
	}

	return cmd
}

func runModeGet() error {
	ctx := context.Background()

	container, err := newContainer(ctx)
	if err != nil {
		return err
	}
	defer container.Close(ctx)

	mode, err := container.Params().Mode(ctx)
	if errors.Is(err, domain.ErrModeNotSet) {
		fmt.Println("❌ Analysis mode is not set. Run 'sift mode set cases' or 'sift mode set health'.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("Analysis mode: %s\n", mode)

	return nil
}

func runModeSet(raw string) error {
	mode, err := domain.ParseMode(raw)
	if err != nil {
		return fmt.Errorf("mode must be cases or health, got %q", raw)
	}

	ctx := context.Background()

	container, err := newContainer(ctx)
	if err != nil {
		return err
	}
	defer container.Close(ctx)

	if err := container.Params().SetMode(ctx, mode); err != nil {
		return err
	}

	fmt.Printf("✅ Analysis mode set to %s\n", mode)

	return nil
}
