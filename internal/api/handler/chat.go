package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xela07ax/prefracta-audit/internal/domain"
)

type ChatService interface {
	Chat(ctx context.Context, sessionID, message string) (string, error)
	History(ctx context.Context, sessionID string) ([]domain.Turn, error)
}

type ChatHandler struct {
	service ChatService
	logger  *zap.Logger
}

func NewChatHandler(s ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{service: s, logger: logger.Named("chat-handler")}
}

type chatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

type historyResponse struct {
	History []domain.Turn `json:"history"`
}

// Send: один ход диалога. POST /api/v1/chat
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	reply, err := h.service.Chat(r.Context(), req.SessionID, req.Message)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

// History: история диалога. GET /api/v1/chat/{id}
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	history, err := h.service.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{History: history})
}
