package handlers

import (
	"net/http"
	"strings"

	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/scoring"
)

// maxBatchCases bounds POST /score/batch.
const maxBatchCases = 500

// ScoreHandler serves context-utilization reports.
type ScoreHandler struct {
	logger *observability.Logger
	scorer *scoring.Builder
	pool   *scoring.Pool
}

// NewScoreHandler creates a new score handler.
func NewScoreHandler(logger *observability.Logger, scorer *scoring.Builder, pool *scoring.Pool) *ScoreHandler {
	return &ScoreHandler{logger: logger, scorer: scorer, pool: pool}
}

// ScoreRequestDTO is the body of POST /score.
type ScoreRequestDTO struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Contexts []string `json:"contexts"`
}

// ScoreResponseDTO is the response of POST /score.
type ScoreResponseDTO struct {
	Report     *scoring.Report `json:"report"`
	Confidence string          `json:"confidence"`
}

// Score handles POST /score.
func (h *ScoreHandler) Score(w http.ResponseWriter, r *http.Request) {
	var req ScoreRequestDTO
	if err := decode(w, r, &req); err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.Answer) == "" {
		writeError(h.logger, w, http.StatusBadRequest, "answer is required", "")
		return
	}

	report := h.scorer.Build(r.Context(), req.Question, req.Answer, req.Contexts)
	writeJSON(h.logger, w, http.StatusOK, ScoreResponseDTO{
		Report:     report,
		Confidence: scoring.HeuristicConfidence(report),
	})
}

// BatchRequestDTO is the body of POST /score/batch.
type BatchRequestDTO struct {
	Cases []scoring.Case `json:"cases"`
}

// Batch handles POST /score/batch.
func (h *ScoreHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequestDTO
	if err := decode(w, r, &req); err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if len(req.Cases) > maxBatchCases {
		writeError(h.logger, w, http.StatusRequestEntityTooLarge, "too many cases", "")
		return
	}

	results, err := h.pool.Run(r.Context(), req.Cases)
	if err != nil {
		h.logger.Warn().Err(err).Int("cases", len(req.Cases)).Msg("Batch scoring incomplete")
		writeError(h.logger, w, http.StatusGatewayTimeout, "batch scoring incomplete", err.Error())
		return
	}
	writeJSON(h.logger, w, http.StatusOK, map[string]any{"results": results})
}
