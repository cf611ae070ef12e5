// Package connectrpc provides the Connect service for the Grounding Engine.
// Messages are plain Go structs carried by a JSON codec.
package connectrpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/chat"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/scoring"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/session"
)

// Procedure paths.
const (
	ServiceName         = "grounding.v1.GroundingService"
	ChatProcedure       = "/" + ServiceName + "/Chat"
	ScoreProcedure      = "/" + ServiceName + "/Score"
	BatchScoreProcedure = "/" + ServiceName + "/BatchScore"
)

// JSONCodec marshals messages with encoding/json. It replaces Connect's
// protobuf-based JSON codec under the same name.
type JSONCodec struct{}

// Name implements connect.Codec.
func (JSONCodec) Name() string { return "json" }

// Marshal implements connect.Codec.
func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal implements connect.Codec.
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// ChatRequest is the Chat request message.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// ChatResponse is the Chat response message.
type ChatResponse = chat.Reply

// ScoreRequest is the Score request message.
type ScoreRequest struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Contexts []string `json:"contexts"`
}

// ScoreResponse is the Score response message.
type ScoreResponse struct {
	Report     *scoring.Report `json:"report"`
	Confidence string          `json:"confidence"`
}

// BatchScoreRequest is the BatchScore request message.
type BatchScoreRequest struct {
	Cases []scoring.Case `json:"cases"`
}

// BatchScoreResponse is the BatchScore response message.
type BatchScoreResponse struct {
	Results []scoring.CaseResult `json:"results"`
}

// GroundingService implements the Connect handlers.
type GroundingService struct {
	logger *observability.Logger
	chat   *chat.Service
	scorer *scoring.Builder
	pool   *scoring.Pool
}

// NewGroundingService creates a new service. pool may be nil, in which case
// batches are scored sequentially.
func NewGroundingService(logger *observability.Logger, chatSvc *chat.Service, scorer *scoring.Builder, pool *scoring.Pool) *GroundingService {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &GroundingService{logger: logger, chat: chatSvc, scorer: scorer, pool: pool}
}

// Chat runs one conversation turn.
func (s *GroundingService) Chat(ctx context.Context, req *connect.Request[ChatRequest]) (*connect.Response[ChatResponse], error) {
	reply, err := s.chat.Chat(ctx, req.Msg.SessionID, req.Msg.Message)
	if err != nil {
		return nil, s.toConnectError(err)
	}
	return connect.NewResponse(reply), nil
}

// Score builds a utilization report.
func (s *GroundingService) Score(ctx context.Context, req *connect.Request[ScoreRequest]) (*connect.Response[ScoreResponse], error) {
	if strings.TrimSpace(req.Msg.Answer) == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("answer is required"))
	}
	report := s.scorer.Build(ctx, req.Msg.Question, req.Msg.Answer, req.Msg.Contexts)
	return connect.NewResponse(&ScoreResponse{
		Report:     report,
		Confidence: scoring.HeuristicConfidence(report),
	}), nil
}

// BatchScore scores several cases.
func (s *GroundingService) BatchScore(ctx context.Context, req *connect.Request[BatchScoreRequest]) (*connect.Response[BatchScoreResponse], error) {
	pool := s.pool
	if pool == nil {
		pool = scoring.NewPool(s.scorer, 1, 0)
	}
	results, err := pool.Run(ctx, req.Msg.Cases)
	if err != nil {
		return nil, connect.NewError(connect.CodeDeadlineExceeded, err)
	}
	return connect.NewResponse(&BatchScoreResponse{Results: results}), nil
}

// Handler returns the mount path and the HTTP handler for the service.
func (s *GroundingService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(ChatProcedure, connect.NewUnaryHandler(ChatProcedure, s.Chat, opts...))
	mux.Handle(ScoreProcedure, connect.NewUnaryHandler(ScoreProcedure, s.Score, opts...))
	mux.Handle(BatchScoreProcedure, connect.NewUnaryHandler(BatchScoreProcedure, s.BatchScore, opts...))
	return "/" + ServiceName + "/", mux
}

func (s *GroundingService) toConnectError(err error) error {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, session.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, session.ErrLocked):
		return connect.NewError(connect.CodeAborted, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		s.logger.Error().Err(err).Msg("Chat failed")
		return connect.NewError(connect.CodeInternal, errors.New("chat failed"))
	}
}
