package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/xela07ax/prefracta-audit/internal/api/handler"
	"github.com/xela07ax/prefracta-audit/internal/api/server"
	"github.com/xela07ax/prefracta-audit/internal/audit"
	"github.com/xela07ax/prefracta-audit/internal/engine"
	"github.com/xela07ax/prefracta-audit/internal/infra"
	"github.com/xela07ax/prefracta-audit/internal/infra/auth"
	"github.com/xela07ax/prefracta-audit/internal/repository/redisstore"
	"github.com/xela07ax/prefracta-audit/internal/repository/sqldb"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the gRPC health service",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	logger := a.logger

	// 1. Трассировка
	shutdownTracer, err := infra.InitTracer(ctx, cfg.Telemetry, logger)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(sctx); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	// 2. Хранилища
	db, err := infra.OpenDatabase(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	store := sqldb.NewStore(db, sqldb.DialectFor(cfg.Database.Driver), logger)
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	ready := map[string]engine.Pinger{"database": store.Ping}

	var (
		latest engine.LatestIndex   = store
		locker engine.SessionLocker = engine.NewMemoryLocker()
		ledger engine.Entitlements  = engine.AllowAll{}
	)
	if cfg.Redis.Addr != "" {
		rdb, err := infra.OpenRedis(ctx, cfg.Redis, cfg.Database.ConnectAttempts, logger)
		if err != nil {
			return err
		}
		defer rdb.Close()

		latest = redisstore.NewLatestIndex(rdb)
		locker = redisstore.NewSessionLocker(rdb, cfg.Session.LockTTL, logger)
		if cfg.Session.LedgerMode == "redis" {
			ledger = redisstore.NewLedger(rdb, cfg.Session.FreeCredits, logger)
		}
		ready["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	} else {
		logger.Warn("redis is not configured, session locks are process-local")
	}

	// 3. Метрики и журнал
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := engine.NewMetrics(reg)

	trail := audit.NewTrail(store, cfg.Session.EventBuffer, metrics.ObserveTrailFill, logger)
	trail.Start()
	defer trail.Stop()

	// 4. Ядро
	p, err := a.newPipeline(trail, metrics)
	if err != nil {
		return err
	}
	auditor := engine.NewAuditor(engine.AuditorDeps{
		Fanout:   p.fanout,
		Impact:   p.impact,
		Briefing: p.briefing,
		Reasoner: p.gateway,
		Store:    store,
		Latest:   latest,
		Locker:   locker,
		Ledger:   ledger,
		Trail:    trail,
		Metrics:  metrics,
		Cost:     cfg.Session.AuditCost,
	}, logger)

	// 5. HTTP API
	validator, err := tokenValidator(cfg.Auth)
	if err != nil {
		return err
	}
	api := server.NewAPIServer(
		cfg.Server,
		logger,
		validator,
		handler.NewAuditHandler(auditor, store, cfg.Server.AuditTimeout, logger),
		handler.NewChatHandler(auditor, logger),
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ready,
	)
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 6. gRPC health
	grpcSrv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, hs)
	go engine.NewHealthReporter(hs, ready, cfg.GRPC.HealthInterval, logger).Run(ctx)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
	if err != nil {
		return fmt.Errorf("listen gRPC: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("gRPC health server started", zap.String("addr", lis.Addr().String()))
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("serve gRPC: %w", err)
		}
	}()
	go func() {
		logger.Info("HTTP API started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("serve HTTP: %w", err)
		}
	}()

	// 7. Graceful Shutdown
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
		logger.Error("server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("HTTP shutdown failed", zap.Error(serr))
	}
	grpcSrv.GracefulStop()
	return err
}

// tokenValidator: без публичного ключа проверка токенов выключена.
func tokenValidator(cfg infra.AuthConfig) (auth.TokenValidator, error) {
	if len(cfg.PublicKey) == 0 {
		return nil, nil
	}
	key, err := auth.ParseRSAPublicKey(cfg.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("parse auth public key: %w", err)
	}
	return auth.NewRS256Validator(key), nil
}
