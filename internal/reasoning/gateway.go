// Package reasoning, шлюз к внешнему reasoning-сервису с упорядоченным fallback по моделям.
package reasoning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xela07ax/prefracta-audit/internal/domain"
	"github.com/xela07ax/prefracta-audit/internal/infra"
)

var errEmptyCompletion = errors.New("empty completion")

// Message: реплика в формате, понятном провайдеру.
type Message struct {
	Role    domain.Role
	Content string
}

// Provider: один OpenAI-совместимый эндпоинт. Ретраев внутри быть не должно.
type Provider interface {
	Complete(ctx context.Context, model string, msgs []Message) (string, error)
}

// CallRecorder получает исход каждого обращения к модели (метрики).
type CallRecorder interface {
	RecordModelCall(model, outcome string, took time.Duration)
}

type modelSlot struct {
	ref      infra.ModelRef
	provider Provider
	cb       *gobreaker.CircuitBreaker
}

// Gateway перебирает модели строго по очереди: первый непустой ответ побеждает.
type Gateway struct {
	slots    []modelSlot
	limiter  *rate.Limiter
	recorder CallRecorder
	logger   *zap.Logger
}

// NewGateway строит слоты по cfg.Models. providers, по имени из cfg.Providers.
func NewGateway(cfg infra.ReasoningConfig, providers map[string]Provider, recorder CallRecorder, logger *zap.Logger) (*Gateway, error) {
	if len(cfg.Models) == 0 {
		return nil, errors.New("reasoning: no models configured")
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	g := &Gateway{
		limiter:  rate.NewLimiter(limit, max(cfg.RateBurst, 1)),
		recorder: recorder,
		logger:   logger.Named("reasoning"),
	}

	for _, ref := range cfg.Models {
		p, ok := providers[ref.Provider]
		if !ok {
			return nil, fmt.Errorf("reasoning: unknown provider %q for model %q", ref.Provider, ref.Model)
		}
		g.slots = append(g.slots, modelSlot{
			ref:      ref,
			provider: p,
			cb:       newBreaker(ref.Model, cfg, g.logger),
		})
	}
	return g, nil
}

func newBreaker(name string, cfg infra.ReasoningConfig, logger *zap.Logger) *gobreaker.CircuitBreaker {
	threshold := cfg.CBConsecutiveFailures
	if threshold == 0 {
		threshold = 3
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("model breaker state changed",
				zap.String("model", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// Complete добавляет системную инструкцию персоны перед turns и опрашивает модели по порядку.
// Если все модели отказали, ErrAllProvidersExhausted.
func (g *Gateway) Complete(ctx context.Context, persona Persona, turns []Message) (string, error) {
	ctx, span := otel.Tracer("prefracta/reasoning").Start(ctx, "reasoning.complete", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("persona", persona.Name))

	msgs := make([]Message, 0, len(turns)+1)
	msgs = append(msgs, Message{Role: domain.RoleSystem, Content: persona.Instructions})
	msgs = append(msgs, turns...)

	for i, slot := range g.slots {
		// 1. Общий лимит исходящих запросов
		if err := g.limiter.Wait(ctx); err != nil {
			span.RecordError(err)
			return "", fmt.Errorf("reasoning: %w", err)
		}

		// 2. Вызов модели через её предохранитель
		start := time.Now()
		out, err := slot.cb.Execute(func() (interface{}, error) {
			text, err := slot.provider.Complete(ctx, slot.ref.Model, msgs)
			if err != nil {
				return nil, err
			}
			if strings.TrimSpace(text) == "" {
				return nil, errEmptyCompletion
			}
			return text, nil
		})
		took := time.Since(start)

		if err == nil {
			g.record(slot.ref.Model, "ok", took)
			span.SetAttributes(attribute.String("model", slot.ref.Model), attribute.Int("attempt", i+1))
			return strings.TrimSpace(out.(string)), nil
		}

		outcome := "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "breaker_open"
		} else if errors.Is(err, errEmptyCompletion) {
			outcome = "empty"
		}
		g.record(slot.ref.Model, outcome, took)
		g.logger.Warn("model failed, trying next",
			zap.String("persona", persona.Name),
			zap.String("provider", slot.ref.Provider),
			zap.String("model", slot.ref.Model),
			zap.String("outcome", outcome),
			zap.Error(err))

		// 3. Отмена вызывающим, не повод идти к следующей модели
		if ctx.Err() != nil {
			span.RecordError(ctx.Err())
			return "", fmt.Errorf("reasoning: %w", ctx.Err())
		}
	}

	span.SetStatus(codes.Error, domain.ErrAllProvidersExhausted.Error())
	return "", domain.ErrAllProvidersExhausted
}

func (g *Gateway) record(model, outcome string, took time.Duration) {
	if g.recorder != nil {
		g.recorder.RecordModelCall(model, outcome, took)
	}
}
