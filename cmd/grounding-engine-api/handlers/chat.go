package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/chat"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/session"
)

// ChatHandler handles conversation turns.
type ChatHandler struct {
	logger *observability.Logger
	chat   *chat.Service
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(logger *observability.Logger, svc *chat.Service) *ChatHandler {
	return &ChatHandler{logger: logger, chat: svc}
}

// ChatRequestDTO is the body of POST /chat.
type ChatRequestDTO struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// Chat handles POST /chat.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequestDTO
	if err := decode(w, r, &req); err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	reply, err := h.chat.Chat(r.Context(), req.SessionID, req.Message)
	if err != nil {
		status, msg := chatStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.WithContext(r.Context()).Error().Err(err).Str("session_id", req.SessionID).Msg("Chat failed")
		}
		writeError(h.logger, w, status, msg, err.Error())
		return
	}
	writeJSON(h.logger, w, http.StatusOK, reply)
}

func chatStatus(err error) (int, string) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest, "message is required"
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "session not found"
	case errors.Is(err, session.ErrLocked):
		return http.StatusConflict, "session is busy"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "chat timed out"
	default:
		return http.StatusInternalServerError, "chat failed"
	}
}
