package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/upb/market-gateway/app"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired durable cache entries once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := loadRuntime(ctx)
			if err != nil {
				return err
			}

			deps, err := app.NewDependencies(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}
			defer func() { _ = deps.Close(ctx) }()

			deleted := deps.Sweep(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired cache entries\n", deleted)
			return nil
		},
	}
}
