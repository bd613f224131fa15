package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/xela07ax/prefracta-audit/internal/api/handler"
	"github.com/xela07ax/prefracta-audit/internal/engine"
	"github.com/xela07ax/prefracta-audit/internal/infra"
	"github.com/xela07ax/prefracta-audit/internal/infra/auth"
)

type APIServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    infra.ServerConfig

	// nil: проверка токенов выключена, все вызывающие анонимны
	validator auth.TokenValidator

	auditHandler *handler.AuditHandler // /api/v1/audits
	chatHandler  *handler.ChatHandler  // /api/v1/chat
	metrics      http.Handler          // /metrics
	ready        map[string]engine.Pinger
}

func NewAPIServer(
	cfg infra.ServerConfig,
	logger *zap.Logger,
	validator auth.TokenValidator,
	auditH *handler.AuditHandler,
	chatH *handler.ChatHandler,
	metrics http.Handler,
	ready map[string]engine.Pinger,
) *APIServer {
	s := &APIServer{
		router:       chi.NewRouter(),
		logger:       logger.Named("api"),
		cfg:          cfg,
		validator:    validator,
		auditHandler: auditH,
		chatHandler:  chatH,
		metrics:      metrics,
		ready:        ready,
	}

	s.routes()
	return s
}

func (s *APIServer) routes() {
	r := s.router

	// --- 1. Глобальные Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Trace-ID"},
		ExposedHeaders: []string{"X-Trace-ID"},
	}))
	r.Use(engine.TracingMiddleware)

	// --- 2. Публичные роуты ---
	r.Group(func(r chi.Router) {
		r.Get("/health", s.health)
		if s.metrics != nil {
			r.Handle("/metrics", s.metrics)
		}
	})

	// --- 3. Защищенный периметр ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.validator, s.logger))

		r.Route("/api/v1/audits", func(r chi.Router) {
			r.Post("/", s.auditHandler.Create)
			r.Get("/latest", s.auditHandler.Latest)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.auditHandler.Get)
				if s.auditHandler.HasEvents() {
					r.Get("/events", s.auditHandler.Events)
				}
			})
		})

		r.Route("/api/v1/chat", func(r chi.Router) {
			r.Post("/", s.chatHandler.Send)
			r.Get("/{id}", s.chatHandler.History)
		})
	})
}

// health: 200, если все зависимости отвечают, иначе 503 со списком упавших.
func (s *APIServer) health(w http.ResponseWriter, r *http.Request) {
	failed := make(map[string]string)
	for name, ping := range s.ready {
		if err := ping(r.Context()); err != nil {
			failed[name] = err.Error()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if len(failed) > 0 {
		s.logger.Warn("dependency is not ready", zap.Any("failed", failed))
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// ServeHTTP позволяет использовать APIServer как http.Handler
func (s *APIServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
