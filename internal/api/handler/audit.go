package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xela07ax/prefracta-audit/internal/audit"
	"github.com/xela07ax/prefracta-audit/internal/domain"
)

// AuditService: то, что обработчику нужно от оркестратора.
type AuditService interface {
	RunAudit(ctx context.Context, req domain.AuditRequest) (*domain.AuditSession, error)
	GetSession(ctx context.Context, id string) (*domain.AuditSession, error)
	LatestSession(ctx context.Context) (*domain.AuditSession, error)
}

// EventLister отдает журнал шагов прогона. Может отсутствовать.
type EventLister interface {
	EventsFor(ctx context.Context, sessionID string) ([]audit.ProbeEvent, error)
}

type AuditHandler struct {
	service AuditService
	events  EventLister
	timeout time.Duration
	logger  *zap.Logger
}

func NewAuditHandler(s AuditService, events EventLister, timeout time.Duration, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		service: s,
		events:  events,
		timeout: timeout,
		logger:  logger.Named("audit-handler"),
	}
}

type createAuditRequest struct {
	TargetURL     string `json:"targetURL"`
	RepositoryURL string `json:"repositoryURL"`
}

type auditResponse struct {
	ID       string                     `json:"id"`
	Metrics  *domain.LoadTestResult     `json:"metrics"`
	Browser  *domain.BrowserAuditResult `json:"browserMetrics"`
	Repo     *domain.RepoScanResult     `json:"github"`
	Insights domain.BusinessInsights    `json:"businessInsights"`
	Verdict  string                     `json:"verdict"`
}

// Create запускает аудит. POST /api/v1/audits
func (h *AuditHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAuditRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	s, err := h.service.RunAudit(ctx, domain.AuditRequest{TargetURL: req.TargetURL, RepositoryURL: req.RepositoryURL})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, auditResponse{
		ID:       s.ID,
		Metrics:  s.Metrics,
		Browser:  s.Browser,
		Repo:     s.Repo,
		Insights: s.Insights,
		Verdict:  s.Verdict,
	})
}

// Get отдает снимок сессии. GET /api/v1/audits/{id}
func (h *AuditHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Latest: последняя сессия вызывающего. GET /api/v1/audits/latest
func (h *AuditHandler) Latest(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.LatestSession(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Events: журнал шагов прогона. GET /api/v1/audits/{id}/events
func (h *AuditHandler) Events(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.service.GetSession(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}

	events, err := h.events.EventsFor(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// HasEvents сообщает, подключен ли журнал.
func (h *AuditHandler) HasEvents() bool {
	return h.events != nil
}
