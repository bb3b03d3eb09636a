package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/iho/gameledger/internal/app"
	"github.com/iho/gameledger/internal/domain"
	"github.com/iho/gameledger/internal/usecase"
	"github.com/iho/gameledger/internal/worker"
)

func (c *cli) closeCmd() *cobra.Command {
	closeCmd := &cobra.Command{
		Use:   "close",
		Short: "Daily close operations",
	}

	var force, reconcile bool
	runCmd := &cobra.Command{
		Use:   "run <date>",
		Short: "Run the daily close for a date in this process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withContainer(cmd, func(ctx context.Context, ct *app.Container) error {
				res, err := ct.DailyClose.RunDailyClose(ctx, usecase.RunDailyCloseInput{
					Date:                  args[0],
					Force:                 force,
					IncludeReconciliation: reconcile,
					Progress: func(_ context.Context, pct int) {
						fmt.Fprintf(cmd.ErrOrStderr(), "progress: %d%%\n", pct)
					},
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	runCmd.Flags().BoolVar(&force, "force", false, "Re-run a completed close")
	runCmd.Flags().BoolVar(&reconcile, "reconcile", false, "Reconcile the day's payments first")

	var enqueueForce, enqueueReconcile bool
	enqueueCmd := &cobra.Command{
		Use:   "enqueue <date>",
		Short: "Queue the daily close for a worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withContainer(cmd, func(ctx context.Context, ct *app.Container) error {
				job, err := worker.EnqueueDailyClose(ctx, ct.Queue, ct.Metrics, domain.DailyCloseJobPayload{
					Date:                  args[0],
					Force:                 enqueueForce,
					IncludeReconciliation: enqueueReconcile,
				}, ct.JobOptions())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "job %s %s\n", job.ID, job.State)
				return nil
			})
		},
	}
	enqueueCmd.Flags().BoolVar(&enqueueForce, "force", false, "Re-run a completed close")
	enqueueCmd.Flags().BoolVar(&enqueueReconcile, "reconcile", true, "Reconcile the day's payments first")

	getCmd := &cobra.Command{
		Use:   "get <date>",
		Short: "Show one daily close",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withContainer(cmd, func(ctx context.Context, ct *app.Container) error {
				dc, err := ct.DailyClose.GetDailyClose(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), dc)
			})
		},
	}

	var filter domain.DailyCloseFilter
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List daily closes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withContainer(cmd, func(ctx context.Context, ct *app.Container) error {
				closes, err := ct.DailyClose.ListDailyCloses(ctx, filter)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "DATE\tSTATUS\tINTEGRITY\tUNRECONCILED\tEXPORT")
				for _, dc := range closes {
					fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%s\n",
						dc.Date, dc.Status, dc.LedgerIntegrity, dc.UnreconciledCount, truncate(dc.ExportPath, 48))
				}
				return tw.Flush()
			})
		},
	}
	listCmd.Flags().StringVar(&filter.From, "from", "", "Earliest date (YYYY-MM-DD)")
	listCmd.Flags().StringVar(&filter.To, "to", "", "Latest date (YYYY-MM-DD)")
	listCmd.Flags().IntVar(&filter.Limit, "limit", 0, "Maximum rows")

	closeCmd.AddCommand(runCmd, enqueueCmd, getCmd, listCmd)
	return closeCmd
}
