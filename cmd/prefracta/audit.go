package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xela07ax/prefracta-audit/internal/domain"
	"github.com/xela07ax/prefracta-audit/internal/engine"
)

// auditCmd: одноразовый прогон без сохранения, результат в stdout.
func auditCmd() *cobra.Command {
	var target, repo string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Run a single audit and print the session as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()

			metrics := engine.NewMetrics(nil)
			p, err := a.newPipeline(nil, metrics)
			if err != nil {
				return err
			}

			store := engine.NewMemoryStore()
			auditor := engine.NewAuditor(engine.AuditorDeps{
				Fanout:   p.fanout,
				Impact:   p.impact,
				Briefing: p.briefing,
				Reasoner: p.gateway,
				Store:    store,
				Latest:   store,
				Metrics:  metrics,
				Cost:     a.cfg.Session.AuditCost,
			}, a.logger)

			ctx := cmd.Context()
			if a.cfg.Server.AuditTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, a.cfg.Server.AuditTimeout)
				defer cancel()
			}

			session, err := auditor.RunAudit(ctx, domain.AuditRequest{TargetURL: target, RepositoryURL: repo})
			if err != nil {
				a.logger.Error("audit failed", zap.Error(err))
				return fmt.Errorf("audit: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(session)
		},
	}

	cmd.Flags().StringVar(&target, "target", "", "Target URL for load and browser probes")
	cmd.Flags().StringVar(&repo, "repo", "", "Repository URL for the static scan")
	cmd.MarkFlagsOneRequired("target", "repo")
	return cmd
}
