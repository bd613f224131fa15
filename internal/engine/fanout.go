package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xela07ax/prefracta-audit/internal/audit"
	"github.com/xela07ax/prefracta-audit/internal/domain"
	"github.com/xela07ax/prefracta-audit/internal/infra/auth"
)

type LoadProbe interface {
	Run(ctx context.Context, target string) (*domain.LoadTestResult, error)
}

type BrowserProbe interface {
	Run(ctx context.Context, target string) (*domain.BrowserAuditResult, error)
}

type RepoProbe interface {
	Scan(ctx context.Context, repoURL string) (*domain.RepoScanResult, error)
}

// ProbeSet: результаты зондов; nil означает «результата нет».
type ProbeSet struct {
	Load    *domain.LoadTestResult
	Browser *domain.BrowserAuditResult
	Repo    *domain.RepoScanResult
}

// Fanout запускает применимые зонды параллельно и ждет завершения всех.
// Собственных таймаутов не ставит: границу задает ctx вызывающего.
type Fanout struct {
	load    LoadProbe
	browser BrowserProbe
	repo    RepoProbe
	trail   audit.Recorder
	metrics *Metrics
	logger  *zap.Logger
}

// NewFanout: trail может быть nil (одноразовый прогон из CLI без журнала).
func NewFanout(load LoadProbe, browser BrowserProbe, repo RepoProbe, trail audit.Recorder, metrics *Metrics, logger *zap.Logger) *Fanout {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Fanout{
		load:    load,
		browser: browser,
		repo:    repo,
		trail:   trail,
		metrics: metrics,
		logger:  logger.Named("fanout"),
	}
}

// Run проверяет запрос до запуска чего-либо. Сбой отдельного зонда превращается в пустое поле;
// наружу уходит только ErrInvalidRequest и ErrRepoCloneFailed.
func (f *Fanout) Run(ctx context.Context, sessionID string, req domain.AuditRequest) (ProbeSet, error) {
	req, err := req.Normalize()
	if err != nil {
		return ProbeSet{}, err
	}

	ctx, span := otel.Tracer("prefracta/engine").Start(ctx, "audit.fanout")
	defer span.End()

	var (
		set     ProbeSet
		repoErr error
		wg      conc.WaitGroup
	)

	// Каждая ветка пишет только в свой слот
	if req.HasTarget() {
		wg.Go(func() {
			_ = f.branch(ctx, sessionID, domain.ProbeLoad, req.TargetURL, func(ctx context.Context) error {
				res, err := f.load.Run(ctx, req.TargetURL)
				if err == nil {
					set.Load = res
				}
				return err
			})
		})
		wg.Go(func() {
			_ = f.branch(ctx, sessionID, domain.ProbeBrowser, req.TargetURL, func(ctx context.Context) error {
				res, err := f.browser.Run(ctx, req.TargetURL)
				if err == nil {
					set.Browser = res
				}
				return err
			})
		})
	}
	if req.HasRepository() {
		wg.Go(func() {
			repoErr = f.branch(ctx, sessionID, domain.ProbeRepo, req.RepositoryURL, func(ctx context.Context) error {
				res, err := f.repo.Scan(ctx, req.RepositoryURL)
				if err == nil {
					set.Repo = res
				}
				return err
			})
		})
	}
	wg.Wait()

	if errors.Is(repoErr, domain.ErrRepoCloneFailed) {
		span.SetStatus(codes.Error, repoErr.Error())
		return set, repoErr
	}
	return set, nil
}

// branch исполняет один зонд: span, перехват паники, метрика, событие журнала.
func (f *Fanout) branch(ctx context.Context, sessionID string, kind domain.ProbeKind, subject string, fn func(context.Context) error) error {
	ctx, span := otel.Tracer("prefracta/engine").Start(ctx, "probe."+string(kind), trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("subject", subject))

	start := time.Now()
	var err error
	var pc panics.Catcher
	pc.Try(func() { err = fn(ctx) })

	status := audit.StatusOK
	if r := pc.Recovered(); r != nil {
		err = fmt.Errorf("%w: %s probe panicked: %v", domain.ErrProbeUnavailable, kind, r.Value)
		status = audit.StatusPanic
		f.logger.Error("probe panicked", zap.String("probe", string(kind)), zap.Any("value", r.Value), zap.ByteString("stack", r.Stack))
	} else if errors.Is(err, domain.ErrRepoCloneFailed) {
		status = audit.StatusFailed
	} else if err != nil {
		status = audit.StatusAbsent
	}
	took := time.Since(start)

	f.metrics.ProbeDuration.WithLabelValues(string(kind), status).Observe(took.Seconds())

	event := audit.ProbeEvent{
		ID:         uuid.New().String(),
		TraceID:    TraceIDFrom(ctx),
		SessionID:  sessionID,
		CallerID:   auth.CallerFrom(ctx),
		Step:       string(kind),
		Target:     subject,
		Status:     status,
		DurationMs: took.Milliseconds(),
	}
	if err != nil {
		event.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
		if status != audit.StatusPanic {
			f.logger.Warn("probe produced no result",
				zap.String("probe", string(kind)),
				zap.String("status", status),
				zap.Error(err))
		}
	}
	if f.trail != nil {
		f.trail.Record(event)
	}
	return err
}
