package auth

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// AnonymousCaller: идентификатор вызывающего, когда проверка токенов выключена.
const AnonymousCaller = "anonymous"

type ctxKey struct{}

// TokenValidator: проверка Authorization заголовка.
type TokenValidator interface {
	VerifyToken(tokenStr string) (*Claims, error)
}

// WithCaller кладет идентификатор вызывающего в контекст.
func WithCaller(ctx context.Context, callerID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, callerID)
}

// CallerFrom достает идентификатор вызывающего. Пустая строка, вызывающий не установлен.
func CallerFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// NewMiddleware требует валидный токен. Если v == nil, все запросы идут от AnonymousCaller.
func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	if v == nil {
		logger.Warn("token validation disabled, all callers are anonymous")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), AnonymousCaller)))
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), claims.UserID)))
		})
	}
}
