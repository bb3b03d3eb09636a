package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/iho/gameledger/internal/app"
	"github.com/iho/gameledger/internal/domain"
	"github.com/iho/gameledger/internal/usecase"
)

var errIntegrityFailed = errors.New("ledger integrity check FAILED")

func (c *cli) ledgerCmd() *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Ledger operations",
	}

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Check ledger-wide zero-sum and every account balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withContainer(cmd, func(ctx context.Context, ct *app.Container) error {
				res, err := ct.Integrity.VerifyLedgerIntegrity(ctx)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				if !res.IsValid {
					return errIntegrityFailed
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "Consistency check PASSED")
				return nil
			})
		},
	}

	verifyAccountCmd := &cobra.Command{
		Use:   "verify-account <account-id>",
		Short: "Check one account's balance against its entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withContainer(cmd, func(ctx context.Context, ct *app.Container) error {
				if err := ct.Integrity.VerifyAccountBalance(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "account %s balanced\n", args[0])
				return nil
			})
		},
	}

	balanceCmd := &cobra.Command{
		Use:   "balance <user-id> <currency>",
		Short: "Show a user's balance in one currency",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withContainer(cmd, func(ctx context.Context, ct *app.Container) error {
				acc, err := ct.Ledger.GetBalance(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), accountView(acc))
			})
		},
	}

	var ref, description string
	executeCmd := &cobra.Command{
		Use:   "execute <user-id> <type> <currency> <amount>",
		Short: "Post a DEPOSIT, WITHDRAWAL, BET, WIN, BONUS or BONUS_WAGERING transaction",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[3])
			if err != nil {
				return fmt.Errorf("%w: amount %q", domain.ErrInvalidInput, args[3])
			}
			txType, err := domain.ParseTransactionType(args[1])
			if err != nil {
				return err
			}
			in := usecase.ExecuteTransactionInput{
				UserID:      args[0],
				Type:        txType,
				Currency:    args[2],
				Amount:      amount,
				Description: description,
			}
			if ref != "" {
				in.ExternalReference = &ref
			}
			return c.withContainer(cmd, func(ctx context.Context, ct *app.Container) error {
				res, err := ct.Ledger.ExecuteTransactionWithRetry(ctx, in)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"transaction_id": res.Transaction.ID,
					"entry_id":       res.Entry.ID,
					"type":           string(res.Transaction.Type),
					"amount":         res.Transaction.Amount.String(),
					"balance_before": res.BalanceBefore.String(),
					"balance_after":  res.BalanceAfter.String(),
				})
			})
		},
	}
	executeCmd.Flags().StringVar(&ref, "ref", "", "External reference, unique per transaction type")
	executeCmd.Flags().StringVar(&description, "description", "", "Free-form description")

	ledgerCmd.AddCommand(verifyCmd, verifyAccountCmd, balanceCmd, executeCmd,
		c.moveLockedCmd("lock", "Move available funds to locked"),
		c.moveLockedCmd("unlock", "Release locked funds back to available"),
	)
	return ledgerCmd
}

func (c *cli) moveLockedCmd(use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <user-id> <currency> <amount>",
		Short: short,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[2])
			if err != nil {
				return fmt.Errorf("%w: amount %q", domain.ErrInvalidInput, args[2])
			}
			return c.withContainer(cmd, func(ctx context.Context, ct *app.Container) error {
				move := ct.Ledger.LockBalance
				if use == "unlock" {
					move = ct.Ledger.UnlockBalance
				}
				acc, err := move(ctx, args[0], args[1], amount)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), accountView(acc))
			})
		},
	}
}

func accountView(acc *domain.Account) map[string]string {
	return map[string]string{
		"account_id": acc.ID,
		"user_id":    acc.UserID,
		"currency":   acc.Currency,
		"available":  acc.Available.String(),
		"locked":     acc.Locked.String(),
		"total":      acc.Total().String(),
	}
}
