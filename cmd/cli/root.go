package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sifthq/sift/internal/config"
	"github.com/sifthq/sift/internal/initialization"
)

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sift",
		Short: "Sift operational event analysis CLI",
		Long: `Sift analyzes operational event streams with large language models.
It classifies support cases or infrastructure health notices and distills
them into a single improvement summary per run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	rootCmd.AddCommand(NewRunCommand())
	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewModeCommand())
	rootCmd.AddCommand(NewWatermarkCommand())
	rootCmd.AddCommand(NewStatusCommand())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newContainer loads the configuration and wires the application graph.
// Every subcommand goes through here so they all see the same config
// sources and connection handling.
func newContainer(ctx context.Context) (*initialization.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return initialization.NewContainer(ctx, cfg)
}
