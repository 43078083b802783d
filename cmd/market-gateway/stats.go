package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/upb/market-gateway/app"
	"github.com/upb/market-gateway/models"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats [yyyy-MM]",
		Short: "Show provider selections and failures for a month",
		Args:  cobra.MaximumNArgs(1),
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

			month := deps.Stats.CurrentMonth()
			if len(args) == 1 {
				month = args[0]
			}

			stats, err := deps.Stats.Monthly(ctx, month)
			if err != nil {
				return err
			}
			return printStats(cmd.OutOrStdout(), stats)
		},
	}
}

func printStats(out io.Writer, stats models.MonthlyStats) error {
	if len(stats.Providers) == 0 {
		fmt.Fprintf(out, "No provider calls recorded for %s.\n", stats.Month)
		return nil
	}

	ids := make([]string, 0, len(stats.Providers))
	for id := range stats.Providers {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "MONTH %s\n", stats.Month)
	fmt.Fprintln(w, "PROVIDER\tOPERATION\tSELECTIONS\tFAILURES")
	for _, id := range ids {
		summary := stats.Providers[models.ProviderID(id)]
		for _, op := range models.AllOperations {
			counters, ok := summary.Operations[op]
			if !ok {
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", id, op, counters.Selections, counters.Failures)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", id, "total", summary.Selections, summary.Failures)
	}
	return w.Flush()
}
