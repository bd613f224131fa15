package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/xela07ax/prefracta-audit/internal/audit"
	"github.com/xela07ax/prefracta-audit/internal/briefing"
	"github.com/xela07ax/prefracta-audit/internal/domain"
	"github.com/xela07ax/prefracta-audit/internal/impact"
	"github.com/xela07ax/prefracta-audit/internal/infra/auth"
	"github.com/xela07ax/prefracta-audit/internal/reasoning"
)

// Тексты, которые пользователь видит вместо ответа модели.
const (
	VerdictUnavailable = "Prefracta AI could not generate the live audit."
	VerdictNoMetrics   = "Load Test Failed: No runtime metrics were collected. The target may be unreachable."
	VerdictEmpty       = "**Prefracta AI Verdict**\n\nAnalysis completed. Refer to metrics."
	ChatUnavailable    = "Error connecting to AI service. Please check server logs."
)

// Auditor: сервис аудита: прогон, вердикт, сохранение и чат по сессии.
type Auditor struct {
	fanout   *Fanout
	impact   *impact.Engine
	brief    *briefing.Builder
	reasoner Reasoner
	store    SessionStore
	latest   LatestIndex
	locker   SessionLocker
	ledger   Entitlements
	trail    audit.Recorder
	metrics  *Metrics
	cost     int64
	logger   *zap.Logger
	now      func() time.Time
}

// AuditorDeps: зависимости сервиса; Locker и Ledger опциональны.
type AuditorDeps struct {
	Fanout   *Fanout
	Impact   *impact.Engine
	Briefing *briefing.Builder
	Reasoner Reasoner
	Store    SessionStore
	Latest   LatestIndex
	Locker   SessionLocker
	Ledger   Entitlements
	Trail    audit.Recorder
	Metrics  *Metrics
	Cost     int64
}

func NewAuditor(d AuditorDeps, logger *zap.Logger) *Auditor {
	if d.Locker == nil {
		d.Locker = NewMemoryLocker()
	}
	if d.Ledger == nil {
		d.Ledger = AllowAll{}
	}
	if d.Metrics == nil {
		d.Metrics = NewMetrics(nil)
	}
	return &Auditor{
		fanout:   d.Fanout,
		impact:   d.Impact,
		brief:    d.Briefing,
		reasoner: d.Reasoner,
		store:    d.Store,
		latest:   d.Latest,
		locker:   d.Locker,
		ledger:   d.Ledger,
		trail:    d.Trail,
		metrics:  d.Metrics,
		cost:     d.Cost,
		logger:   logger.Named("auditor"),
		now:      time.Now,
	}
}

// RunAudit выполняет полный прогон и сохраняет сессию. Сбой reasoning не мешает сохранению.
func (a *Auditor) RunAudit(ctx context.Context, req domain.AuditRequest) (session *domain.AuditSession, err error) {
	start := a.now()
	ctx, span := otel.Tracer("prefracta/engine").Start(ctx, "audit.run")
	defer span.End()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = errorKind(err)
			span.RecordError(err)
		}
		a.metrics.AuditsTotal.WithLabelValues(outcome).Inc()
		a.metrics.AuditDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	// 1. Валидация до списания кредитов и запуска зондов
	req, err = req.Normalize()
	if err != nil {
		return nil, err
	}
	caller := callerOf(ctx)

	// 2. Учет кредитов
	if err := a.ledger.CheckAndDebit(ctx, caller, a.cost); err != nil {
		return nil, err
	}

	// 3. Зонды
	id := uuid.New().String()
	span.SetAttributes(attribute.String("session_id", id))
	probes, err := a.fanout.Run(ctx, id, req)
	if err != nil {
		return nil, err
	}

	// 4. Бизнес-оценки и вердикт
	insights := a.impact.Derive(probes.Load, probes.Browser, probes.Repo)
	verdict := a.verdict(ctx, id, req.Subject(), probes)

	// 5. Сохранение
	now := a.now().UTC()
	session = &domain.AuditSession{
		ID:            id,
		CallerID:      caller,
		URL:           req.Subject(),
		TargetURL:     req.TargetURL,
		RepositoryURL: req.RepositoryURL,
		Metrics:       probes.Load,
		Browser:       probes.Browser,
		Repo:          probes.Repo,
		Insights:      insights,
		Verdict:       verdict,
		History:       []domain.Turn{{Role: domain.RoleAssistant, Content: verdict, Timestamp: now}},
		CreatedAt:     now,
	}
	if err := a.store.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	// Указатель и учет использования вторичны: сессия уже сохранена
	if err := a.latest.SetLatest(ctx, caller, id); err != nil {
		a.logger.Warn("failed to update latest session pointer", zap.String("caller", caller), zap.Error(err))
	}
	if err := a.ledger.RecordUsage(ctx, caller); err != nil {
		a.logger.Warn("failed to record usage", zap.String("caller", caller), zap.Error(err))
	}

	a.logger.Info("audit completed",
		zap.String("session_id", id),
		zap.String("subject", session.URL),
		zap.Bool("load", probes.Load != nil),
		zap.Bool("browser", probes.Browser != nil),
		zap.Bool("repo", probes.Repo != nil),
		zap.Int("stability", insights.StabilityRiskScore))
	return session, nil
}

// verdict: без нагрузочных метрик модель не спрашиваем.
func (a *Auditor) verdict(ctx context.Context, sessionID, subject string, probes ProbeSet) string {
	if probes.Load == nil {
		return VerdictNoMetrics
	}

	brief := a.brief.Build(subject, probes.Load, probes.Repo, probes.Browser)
	start := a.now()
	text, err := a.reasoner.Complete(ctx, reasoning.VerdictPersona, []reasoning.Message{
		{Role: domain.RoleUser, Content: reasoning.VerdictRequest(brief)},
	})
	a.recordStep(ctx, sessionID, "verdict", subject, start, err)

	switch {
	case err != nil:
		a.logger.Error("verdict generation failed", zap.String("session_id", sessionID), zap.Error(err))
		return VerdictUnavailable
	case strings.TrimSpace(text) == "":
		return VerdictEmpty
	default:
		return strings.TrimSpace(text)
	}
}

// Chat: один ход диалога по сессии. Обе реплики дописываются в историю.
func (a *Auditor) Chat(ctx context.Context, sessionID, message string) (reply string, err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = errorKind(err)
		}
		a.metrics.ChatTurns.WithLabelValues(outcome).Inc()
	}()

	sessionID = strings.TrimSpace(sessionID)
	message = strings.TrimSpace(message)
	if sessionID == "" || message == "" {
		return "", fmt.Errorf("%w: sessionId and message are required", domain.ErrInvalidRequest)
	}

	// 1. Один писатель на сессию
	release, err := a.locker.Acquire(ctx, sessionID)
	if err != nil {
		return "", err
	}
	defer release()

	// 2. Снимок и контекст
	s, err := a.store.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}

	turns := make([]reasoning.Message, 0, len(s.History)+2)
	turns = append(turns, reasoning.TelemetryTurn(a.brief.Telemetry(s)))
	turns = append(turns, reasoning.ReplayHistory(s.History)...)
	turns = append(turns, reasoning.Message{Role: domain.RoleUser, Content: message})

	// 3. Ответ модели; отказ всех моделей, фиксированный текст
	userAt := a.now().UTC()
	start := a.now()
	reply, err = a.reasoner.Complete(ctx, reasoning.DecisionAgentPersona, turns)
	a.recordStep(ctx, sessionID, "chat", s.URL, start, err)
	if err != nil {
		a.logger.Error("chat reply failed", zap.String("session_id", sessionID), zap.Error(err))
		reply = ChatUnavailable
	}

	// 4. История только дописывается
	if err := a.store.AppendTurns(ctx, sessionID,
		domain.Turn{Role: domain.RoleUser, Content: message, Timestamp: userAt},
		domain.Turn{Role: domain.RoleAssistant, Content: reply, Timestamp: a.now().UTC()},
	); err != nil {
		return "", fmt.Errorf("append chat turns: %w", err)
	}
	return reply, nil
}

func (a *Auditor) GetSession(ctx context.Context, id string) (*domain.AuditSession, error) {
	return a.store.Get(ctx, id)
}

// LatestSession: последняя сессия вызывающего из контекста.
func (a *Auditor) LatestSession(ctx context.Context) (*domain.AuditSession, error) {
	id, err := a.latest.Latest(ctx, callerOf(ctx))
	if err != nil {
		return nil, err
	}
	return a.store.Get(ctx, id)
}

func (a *Auditor) History(ctx context.Context, id string) ([]domain.Turn, error) {
	s, err := a.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.History, nil
}

func (a *Auditor) recordStep(ctx context.Context, sessionID, step, subject string, start time.Time, err error) {
	if a.trail == nil {
		return
	}
	event := audit.ProbeEvent{
		ID:         uuid.New().String(),
		TraceID:    TraceIDFrom(ctx),
		SessionID:  sessionID,
		CallerID:   callerOf(ctx),
		Step:       step,
		Target:     subject,
		Status:     audit.StatusOK,
		DurationMs: a.now().Sub(start).Milliseconds(),
	}
	if err != nil {
		event.Status = audit.StatusFailed
		event.Error = err.Error()
	}
	a.trail.Record(event)
}

func callerOf(ctx context.Context) string {
	if id := auth.CallerFrom(ctx); id != "" {
		return id
	}
	return auth.AnonymousCaller
}

// errorKind: метка исхода для метрик
func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, domain.ErrRepoCloneFailed):
		return "clone_failed"
	case errors.Is(err, domain.ErrEntitlementDenied):
		return "denied"
	case errors.Is(err, domain.ErrSessionNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrSessionBusy):
		return "busy"
	default:
		return "error"
	}
}
