package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServiceName: имя сервиса в grpc.health.v1.
const HealthServiceName = "prefracta.audit"

// Pinger: зависимость, без которой сервис не готов (база, Redis).
type Pinger func(ctx context.Context) error

// HealthReporter периодически опрашивает зависимости и выставляет статус gRPC health-сервера.
type HealthReporter struct {
	server   *health.Server
	deps     map[string]Pinger
	interval time.Duration
	logger   *zap.Logger
}

func NewHealthReporter(server *health.Server, deps map[string]Pinger, interval time.Duration, logger *zap.Logger) *HealthReporter {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &HealthReporter{
		server:   server,
		deps:     deps,
		interval: interval,
		logger:   logger.Named("health"),
	}
}

// Run проверяет сразу и затем по таймеру, пока жив ctx. На выходе ставит NOT_SERVING.
func (h *HealthReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}

// Check: один проход по зависимостям.
func (h *HealthReporter) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	for name, ping := range h.deps {
		pctx, cancel := context.WithTimeout(ctx, h.interval)
		err := ping(pctx)
		cancel()
		if err != nil {
			h.logger.Warn("dependency is not ready", zap.String("dependency", name), zap.Error(err))
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}

	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(HealthServiceName, status)
	return status
}
