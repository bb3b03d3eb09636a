package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/iho/gameledger/internal/app"
	"github.com/iho/gameledger/internal/domain"
	"github.com/iho/gameledger/internal/worker"
)

func (c *cli) reconCmd() *cobra.Command {
	reconCmd := &cobra.Command{
		Use:   "recon",
		Short: "Payment reconciliation",
	}

	runCmd := &cobra.Command{
		Use:   "run <date>",
		Short: "Reconcile a day's deposits and withdrawals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withContainer(cmd, func(ctx context.Context, ct *app.Container) error {
				res, err := ct.Reconciliation.RunFullReconciliation(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}

	var force bool
	enqueueCmd := &cobra.Command{
		Use:   "enqueue <date>",
		Short: "Queue a reconciliation for a worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withContainer(cmd, func(ctx context.Context, ct *app.Container) error {
				job, err := worker.EnqueueReconciliation(ctx, ct.Queue, ct.Metrics, domain.ReconciliationJobPayload{
					Date:  args[0],
					Force: force,
				}, ct.JobOptions())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "job %s %s\n", job.ID, job.State)
				return nil
			})
		},
	}
	enqueueCmd.Flags().BoolVar(&force, "force", false, "Queue even if a job for the date already exists")

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List unresolved reconciliation entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withContainer(cmd, func(ctx context.Context, ct *app.Container) error {
				entries, err := ct.Reconciliation.ListUnreconciled(ctx, limit)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTYPE\tREFERENCE\tSTATUS\tCURRENCY\tEXPECTED\tACTUAL\tVARIANCE")
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
						e.ID, e.EntryType, truncate(e.ReferenceID, 24), e.Status, e.Currency,
						e.ExpectedAmount, e.ActualAmount, e.Variance)
				}
				return tw.Flush()
			})
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 0, "Maximum rows")

	var resolvedBy, resolution string
	resolveCmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Mark a reconciliation entry resolved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withContainer(cmd, func(ctx context.Context, ct *app.Container) error {
				entry, err := ct.Reconciliation.ResolveEntry(ctx, args[0], resolvedBy, resolution)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), entry)
			})
		},
	}
	resolveCmd.Flags().StringVar(&resolvedBy, "by", "", "Operator resolving the entry")
	resolveCmd.Flags().StringVar(&resolution, "resolution", "", "Resolution note")
	_ = resolveCmd.MarkFlagRequired("by")

	reconCmd.AddCommand(runCmd, enqueueCmd, listCmd, resolveCmd)
	return reconCmd
}
