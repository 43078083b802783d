package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/upb/market-gateway/app"
	"github.com/upb/market-gateway/models"
	"github.com/upb/market-gateway/services/quota"
)

func newQuotaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Show the live quota of every configured provider",
		Args:  cobra.NoArgs,
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

			configs := make([]models.ProviderConfig, 0, len(cfg.Providers.Entries))
			for _, id := range cfg.Providers.Configured() {
				entry, _ := cfg.Providers.Get(id)
				configs = append(configs, entry)
			}

			entries, err := deps.Quotas.Overview(ctx, configs)
			if err != nil {
				return err
			}
			return printQuota(cmd.OutOrStdout(), entries)
		},
	}
}

func printQuota(out io.Writer, entries []quota.Entry) error {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No providers configured.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tUSED\tREMAINING\tAVAILABLE\tLAST USED")
	for _, e := range entries {
		remaining := "unlimited"
		if e.Remaining != quota.Unbounded {
			remaining = strconv.Itoa(e.Remaining)
		}
		lastUsed := "-"
		if e.Usage.LastUsedAt != nil {
			lastUsed = e.Usage.LastUsedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%t\t%s\n", e.Provider, e.Usage.UsedCount, remaining, e.CanUse, lastUsed)
	}
	return w.Flush()
}
