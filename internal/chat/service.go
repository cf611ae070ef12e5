// Package chat runs conversation turns against stored sessions.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/conversation"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/scoring"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/session"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/storage"
)

// ErrEmptyMessage is returned for blank user messages.
var ErrEmptyMessage = errors.New("message is empty")

// Reply is the result of one chat turn.
type Reply struct {
	SessionID    string                  `json:"session_id"`
	Answer       string                  `json:"answer"`
	AnswerType   conversation.AnswerType `json:"answer_type"`
	Confidence   conversation.Confidence `json:"confidence"`
	Route        conversation.Route      `json:"route"`
	FocusHint    string                  `json:"focus_hint,omitempty"`
	ClarifyCount int                     `json:"clarify_count"`
	Sources      []conversation.Chunk    `json:"sources"`
	Report       *scoring.Report         `json:"report,omitempty"`
	Metrics      conversation.Metrics    `json:"metrics"`
	LatencyMs    int64                   `json:"latency_ms"`
}

// Transcripts records conversation messages. A nil Transcripts disables
// recording.
type Transcripts interface {
	Append(ctx context.Context, entries ...*storage.TranscriptEntry) error
}

// Service serializes turns per session: lock, load, route, save, record,
// unlock.
type Service struct {
	router      *conversation.Router
	sessions    *session.Manager
	transcripts Transcripts
	logger      *observability.Logger
}

// NewService creates a chat service.
func NewService(router *conversation.Router, sessions *session.Manager, transcripts Transcripts, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Service{router: router, sessions: sessions, transcripts: transcripts, logger: logger}
}

// Sessions exposes the session manager.
func (s *Service) Sessions() *session.Manager { return s.sessions }

// Chat runs message in sessionID. An empty sessionID starts a new session.
func (s *Service) Chat(ctx context.Context, sessionID, message string) (*Reply, error) {
	start := time.Now()
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}

	if sessionID == "" {
		sess, err := s.sessions.Create(ctx)
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		sessionID = sess.ID
	}

	unlock, err := s.sessions.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() {
		// The request context may already be cancelled; release regardless.
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("session unlock failed")
		}
	}()

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	firstIndex := len(sess.State.Messages)
	// Retrieval, generation and scoring share one deadline so a stuck
	// collaborator cannot pin the session lock.
	turnCtx, cancel := context.WithTimeout(ctx, s.sessions.LockTTL())
	out := s.router.HandleMessage(turnCtx, sess.State, message)
	cancel()

	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	s.record(ctx, sessionID, firstIndex, message, out)

	reply := &Reply{
		SessionID:    sessionID,
		Answer:       out.Answer,
		AnswerType:   out.AnswerType,
		Confidence:   out.Confidence,
		Route:        out.Route,
		FocusHint:    out.State.FocusHint,
		ClarifyCount: out.State.ClarifyCount,
		Sources:      out.State.Retrieved,
		Report:       out.Report,
		Metrics:      out.State.Metrics,
		LatencyMs:    time.Since(start).Milliseconds(),
	}
	s.logger.WithSession(sessionID).Info().
		Str("route", string(reply.Route)).
		Score("precision_token", precision(reply.Report)).
		Int64("latency_ms", reply.LatencyMs).
		Msg("chat turn")
	return reply, nil
}

// record writes the user and assistant messages. Failures are logged; the
// session state is already saved.
func (s *Service) record(ctx context.Context, sessionID string, index int, message string, out conversation.Outcome) {
	if s.transcripts == nil {
		return
	}
	assistant := &storage.TranscriptEntry{
		SessionID:  sessionID,
		TurnIndex:  index + 1,
		Role:       string(conversation.RoleAssistant),
		Content:    out.Answer,
		AnswerType: string(out.AnswerType),
		Confidence: string(out.Confidence),
		Route:      string(out.Route),
	}
	if out.Report != nil {
		if data, err := json.Marshal(out.Report); err == nil {
			assistant.Report = data
		}
	}
	user := &storage.TranscriptEntry{
		SessionID: sessionID,
		TurnIndex: index,
		Role:      string(conversation.RoleUser),
		Content:   message,
	}
	if err := s.transcripts.Append(ctx, user, assistant); err != nil {
		s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("transcript write failed")
	}
}

func precision(r *scoring.Report) *float64 {
	if r == nil {
		return nil
	}
	return r.PrecisionToken
}
