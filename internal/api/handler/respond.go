package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/xela07ax/prefracta-audit/internal/domain"
)

// maxBodyBytes: запросы аудита и чата маленькие
const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError сопоставляет доменные ошибки с HTTP-статусами. Неизвестные ошибки наружу не отдаем.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrRepoCloneFailed):
		return http.StatusUnprocessableEntity, "Repository could not be cloned. Check the URL and access rights."
	case errors.Is(err, domain.ErrEntitlementDenied):
		return http.StatusForbidden, "Quota exceeded. Upgrade to Weekly/Monthly plan."
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound, "Session not found"
	case errors.Is(err, domain.ErrSessionBusy):
		return http.StatusConflict, "Another message for this session is in progress"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Audit timed out"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed JSON body", domain.ErrInvalidRequest)
	}
	return nil
}
