package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/xela07ax/prefracta-audit/internal/infra"
	"github.com/xela07ax/prefracta-audit/internal/repository/redisstore"
)

// ledgerCmd: ручное управление кредитами и подписками вызывающих.
func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Manage caller credits and subscriptions",
	}

	withLedger := func(run func(cmd *cobra.Command, l *redisstore.Ledger, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()

			if a.cfg.Redis.Addr == "" {
				return fmt.Errorf("ledger: redis.addr is not configured")
			}
			rdb, err := infra.OpenRedis(cmd.Context(), a.cfg.Redis, a.cfg.Database.ConnectAttempts, a.logger)
			if err != nil {
				return err
			}
			defer rdb.Close()

			return run(cmd, redisstore.NewLedger(rdb, a.cfg.Session.FreeCredits, a.logger), args)
		}
	}

	grant := &cobra.Command{
		Use:   "grant <caller> <credits>",
		Short: "Add credits to a caller",
		Args:  cobra.ExactArgs(2),
		RunE: withLedger(func(cmd *cobra.Command, l *redisstore.Ledger, args []string) error {
			credits, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || credits <= 0 {
				return fmt.Errorf("credits must be a positive integer, got %q", args[1])
			}
			if err := l.Grant(cmd.Context(), args[0], credits); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "granted %d credits to %s\n", credits, args[0])
			return nil
		}),
	}

	var days int
	subscribe := &cobra.Command{
		Use:   "subscribe <caller>",
		Short: "Give a caller unlimited audits for a number of days",
		Args:  cobra.ExactArgs(1),
		RunE: withLedger(func(cmd *cobra.Command, l *redisstore.Ledger, args []string) error {
			if days <= 0 {
				return fmt.Errorf("--days must be positive")
			}
			until := time.Now().Add(time.Duration(days) * 24 * time.Hour)
			if err := l.Subscribe(cmd.Context(), args[0], until); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "subscription for %s active until %s\n", args[0], until.UTC().Format(time.RFC3339))
			return nil
		}),
	}
	subscribe.Flags().IntVar(&days, "days", 7, "Subscription length in days (weekly 7, monthly 30)")

	cmd.AddCommand(grant, subscribe)
	return cmd
}
