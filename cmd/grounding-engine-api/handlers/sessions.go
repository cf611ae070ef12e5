package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/session"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/storage"
)

// SessionHandler manages conversation sessions.
type SessionHandler struct {
	logger      *observability.Logger
	sessions    *session.Manager
	transcripts *storage.TranscriptRepository
}

// NewSessionHandler creates a new session handler. transcripts may be nil.
func NewSessionHandler(logger *observability.Logger, sessions *session.Manager, transcripts *storage.TranscriptRepository) *SessionHandler {
	return &SessionHandler{logger: logger, sessions: sessions, transcripts: transcripts}
}

// Create handles POST /sessions.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Create(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Create session failed")
		writeError(h.logger, w, http.StatusInternalServerError, "create session failed", err.Error())
		return
	}
	info, err := h.sessions.Info(r.Context(), sess.ID)
	if err != nil {
		writeError(h.logger, w, http.StatusInternalServerError, "create session failed", err.Error())
		return
	}
	writeJSON(h.logger, w, http.StatusCreated, info)
}

// List handles GET /sessions.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	infos, err := h.sessions.Active(r.Context())
	if err != nil {
		writeError(h.logger, w, http.StatusInternalServerError, "list sessions failed", err.Error())
		return
	}
	writeJSON(h.logger, w, http.StatusOK, map[string]any{
		"sessions": infos,
		"count":    len(infos),
	})
}

// Get handles GET /sessions/{sessionId}.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	info, err := h.sessions.Info(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		h.sessionError(w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, info)
}

// Extend handles POST /sessions/{sessionId}/extend.
func (h *SessionHandler) Extend(w http.ResponseWriter, r *http.Request) {
	info, err := h.sessions.Extend(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		h.sessionError(w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, info)
}

// End handles DELETE /sessions/{sessionId}.
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.End(r.Context(), chi.URLParam(r, "sessionId")); err != nil {
		h.sessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Transcript handles GET /sessions/{sessionId}/transcript. Transcripts
// outlive their sessions.
func (h *SessionHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	if h.transcripts == nil {
		writeError(h.logger, w, http.StatusNotImplemented, "transcripts disabled", "")
		return
	}
	id := chi.URLParam(r, "sessionId")
	entries, err := h.transcripts.ListBySession(r.Context(), id)
	if err != nil {
		writeError(h.logger, w, http.StatusInternalServerError, "load transcript failed", err.Error())
		return
	}
	if len(entries) == 0 {
		writeError(h.logger, w, http.StatusNotFound, "transcript not found", "")
		return
	}
	writeJSON(h.logger, w, http.StatusOK, map[string]any{
		"session_id": id,
		"entries":    entries,
	})
}

func (h *SessionHandler) sessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrNotFound) {
		writeError(h.logger, w, http.StatusNotFound, "session not found", "")
		return
	}
	h.logger.Error().Err(err).Msg("Session operation failed")
	writeError(h.logger, w, http.StatusInternalServerError, "session operation failed", err.Error())
}
