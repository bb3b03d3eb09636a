package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/iho/gameledger/internal/app"
	"github.com/iho/gameledger/internal/infrastructure/config"
	"github.com/iho/gameledger/internal/infrastructure/logger"
)

// opener connects a Container for one command invocation.
type opener func(ctx context.Context) (*app.Container, func() error, error)

type cli struct {
	cfg     *config.Config
	log     zerolog.Logger
	open    opener
	timeout time.Duration
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}
	log := logger.NewWithWriter(logger.Config{Level: cfg.LogLevel, Format: "console"}, os.Stderr)

	c := &cli{
		cfg: cfg,
		log: log,
		open: func(ctx context.Context) (*app.Container, func() error, error) {
			rt, err := app.Open(ctx, cfg, log)
			if err != nil {
				return nil, nil, err
			}
			return rt.Container, rt.Close, nil
		},
	}

	if err := c.rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func (c *cli) rootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "gameledger-cli",
		Short:         "GameLedger admin CLI",
		Long:          `Administrative commands for the gaming ledger: daily close, reconciliation, integrity checks and migrations.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().DurationVar(&c.timeout, "timeout", 30*time.Minute, "Command timeout")

	rootCmd.AddCommand(
		c.closeCmd(),
		c.reconCmd(),
		c.ledgerCmd(),
		c.jobsCmd(),
		c.migrateCmd(),
	)
	return rootCmd
}

// withContainer runs fn against a freshly opened Container.
func (c *cli) withContainer(cmd *cobra.Command, fn func(ctx context.Context, ct *app.Container) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
	defer cancel()

	ct, closeFn, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeFn(); err != nil {
			c.log.Warn().Err(err).Msg("failed to close connections")
		}
	}()
	return fn(ctx, ct)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
