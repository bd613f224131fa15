package domain

import "errors"

var (
	// ErrInvalidRequest: не передан ни targetURL, ни repositoryURL (или они некорректны).
	ErrInvalidRequest = errors.New("invalid audit request")

	// ErrProbeUnavailable: отдельный зонд упал. Наружу не пробрасывается, поле становится пустым.
	ErrProbeUnavailable = errors.New("probe unavailable")

	// ErrRepoCloneFailed: клонирование не удалось; обычно это ошибка ввода (плохой URL).
	ErrRepoCloneFailed = errors.New("repository clone failed")

	// ErrAllProvidersExhausted: все модели reasoning-сервиса вернули ошибку.
	ErrAllProvidersExhausted = errors.New("all reasoning providers exhausted")

	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionBusy: по сессии уже идет другой ход чата (single-writer).
	ErrSessionBusy = errors.New("session is busy")

	ErrEntitlementDenied = errors.New("quota exceeded")
)
