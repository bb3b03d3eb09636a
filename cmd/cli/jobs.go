package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/iho/gameledger/internal/app"
)

func (c *cli) jobsCmd() *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Background job inspection",
	}

	statusCmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job's state, progress and failure reason",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withContainer(cmd, func(ctx context.Context, ct *app.Container) error {
				job, err := ct.Queue.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), job)
			})
		},
	}

	jobsCmd.AddCommand(statusCmd)
	return jobsCmd
}
