package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/xela07ax/vitalpolicy-relay/internal/domain"
	"github.com/xela07ax/vitalpolicy-relay/internal/engine"
)

// FallbackHeader помечает обнуленный ответ /get-scores/
const FallbackHeader = "X-Scores-Fallback"

type ScoreService interface {
	Scores(ctx context.Context) (domain.HealthScores, error)
	EvaluateMeal(ctx context.Context, req domain.MealEvaluationRequest) (json.RawMessage, error)
}

type ScoreHandler struct {
	service ScoreService
	metrics *engine.Metrics
	logger  *zap.Logger
}

func NewScoreHandler(s ScoreService, metrics *engine.Metrics, logger *zap.Logger) *ScoreHandler {
	return &ScoreHandler{service: s, metrics: metrics, logger: logger.Named("score-handler")}
}

// GetScores — GET /get-scores/.
// Ошибка апстрима клиенту не уходит: нули, статус 500 и заголовок fallback.
func (h *ScoreHandler) GetScores(w http.ResponseWriter, r *http.Request) {
	scores, err := h.service.Scores(r.Context())
	if err != nil {
		h.metrics.ScoreFallbacks.Inc()
		w.Header().Set(FallbackHeader, "true")
		writeJSON(w, http.StatusInternalServerError, domain.HealthScores{})
		return
	}
	writeJSON(w, http.StatusOK, scores)
}

// EvaluateMeal — POST /evaluate-meal/
func (h *ScoreHandler) EvaluateMeal(w http.ResponseWriter, r *http.Request) {
	var req domain.MealEvaluationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, "Invalid meal evaluation request", err)
		return
	}

	verdict, err := h.service.EvaluateMeal(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, "Meal evaluation failed", err)
		return
	}
	writeData(w, http.StatusOK, verdict)
}
