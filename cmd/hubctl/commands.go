package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/app"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/utils"
)

func newWebhookURLCmd(configPath *string) *cobra.Command {
	var integrationID, channel string

	cmd := &cobra.Command{
		Use:   "webhook-url",
		Short: "Issue a new webhook secret and print the delivery URL",
		Long:  "Rotates the integration's webhook secret. The previously issued URL stops matching the stored secret.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := model.ParseChannel(channel)
			if err != nil {
				return err
			}
			return withApp(cmd, *configPath, func(ctx context.Context, a *app.App) error {
				u, err := a.Hub.GenerateWebhookURL(ctx, integrationID, ch)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), u)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&integrationID, "integration", "", "integration id")
	cmd.Flags().StringVar(&channel, "channel", "", "channel tag (telegram, vk, whatsapp, instagram, avito, max)")
	_ = cmd.MarkFlagRequired("integration")
	_ = cmd.MarkFlagRequired("channel")
	return cmd
}

func newReprocessCmd(configPath *string) *cobra.Command {
	var (
		integrationID string
		olderThan     time.Duration
		limit         int
	)

	cmd := &cobra.Command{
		Use:   "reprocess",
		Short: "Route messages stuck in pending",
		Long:  "Sweeps pending inbound messages older than --older-than through the routing pipeline and waits for them to finish.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			if olderThan < 0 {
				return fmt.Errorf("--older-than must not be negative")
			}
			return withApp(cmd, *configPath, func(ctx context.Context, a *app.App) error {
				n, err := a.Reprocess.Sweep(ctx, integrationID, utils.Now().Add(-olderThan), limit)
				if err != nil {
					return err
				}
				a.Reprocess.Wait()
				fmt.Fprintf(cmd.OutOrStdout(), "Reprocessed %d pending messages\n", n)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&integrationID, "integration", "", "limit the sweep to one integration (default all)")
	cmd.Flags().DurationVar(&olderThan, "older-than", 5*time.Minute, "only messages pending at least this long")
	cmd.Flags().IntVar(&limit, "limit", 500, "maximum messages to reprocess")
	return cmd
}

func newUsageCmd(configPath *string) *cobra.Command {
	var integrationID, from, to string

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Print daily usage counters for an integration",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := parseDayRange(from, to, utils.Now())
			if err != nil {
				return err
			}
			return withApp(cmd, *configPath, func(ctx context.Context, a *app.App) error {
				rows, err := a.Usage.FindRange(ctx, integrationID, start, end)
				if err != nil {
					return err
				}
				writeUsage(cmd, rows)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&integrationID, "integration", "", "integration id")
	cmd.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD (default 30 days ago)")
	cmd.Flags().StringVar(&to, "to", "", "last day, YYYY-MM-DD (default today)")
	_ = cmd.MarkFlagRequired("integration")
	return cmd
}

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the company schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *configPath, func(ctx context.Context, a *app.App) error {
				if err := a.Postgres.Migrate(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Migrated schema for company %s\n", a.CompanyID)
				return nil
			})
		},
	}
}

// parseDayRange resolves --from/--to into whole UTC days. Both default
// relative to now.
func parseDayRange(from, to string, now time.Time) (time.Time, time.Time, error) {
	end := utils.StartOfDay(now)
	if to != "" {
		t, err := time.Parse(time.DateOnly, to)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to: %w", err)
		}
		end = t
	}
	start := end.AddDate(0, 0, -29)
	if from != "" {
		t, err := time.Parse(time.DateOnly, from)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from: %w", err)
		}
		start = t
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("--from is after --to")
	}
	return start, end, nil
}

func writeUsage(cmd *cobra.Command, rows []model.UsageCounter) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tRECEIVED\tLEADS\tDUPLICATES")
	var received, leads, dups int64
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", r.Date.Format(time.DateOnly), r.MessagesReceived, r.LeadsCreated, r.DuplicatesPrevented)
		received += r.MessagesReceived
		leads += r.LeadsCreated
		dups += r.DuplicatesPrevented
	}
	fmt.Fprintf(w, "TOTAL\t%d\t%d\t%d\n", received, leads, dups)
	_ = w.Flush()
}
