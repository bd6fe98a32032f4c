package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/vitalpolicy-relay/internal/audit"
	"github.com/xela07ax/vitalpolicy-relay/internal/connectors"
	"github.com/xela07ax/vitalpolicy-relay/internal/domain"
	"github.com/xela07ax/vitalpolicy-relay/internal/infra"
)

// ScoreUpstream описывает требования к клиенту Remote Score Service
type ScoreUpstream interface {
	FetchScores(ctx context.Context) (domain.HealthScores, error)
	EvaluateMeal(ctx context.Context, req domain.MealEvaluationRequest) (json.RawMessage, error)
}

type ScoreService struct {
	upstream ScoreUpstream
	rdb      *redis.Client // nil — без публикации
	journal  audit.Recorder
	logger   *zap.Logger
}

func NewScoreService(upstream ScoreUpstream, rdb *redis.Client, journal audit.Recorder, logger *zap.Logger) *ScoreService {
	return &ScoreService{
		upstream: upstream,
		rdb:      rdb,
		journal:  journal,
		logger:   logger.Named("score-service"),
	}
}

// Scores возвращает баллы или ошибку. Обнуленный ответ клиенту — решение обработчика.
func (s *ScoreService) Scores(ctx context.Context) (domain.HealthScores, error) {
	c := newCall(ctx, s.journal, "/get-scores/", "score.get", connectors.UpstreamScore, "", nil)

	scores, err := s.upstream.FetchScores(ctx)
	if err != nil {
		c.event.Fallback = true
		c.done(err, http.StatusOK)
		s.logger.Warn("score fetch failed", zap.String("trace_id", infra.TraceID(ctx)), zap.Error(err))
		return domain.HealthScores{}, fmt.Errorf("fetch health scores: %w", err)
	}
	c.done(nil, http.StatusOK)

	s.publish(ctx, scores.Health())
	return scores, nil
}

// publish — best-effort: подписчики (dashboard watch) обновят локальный кэш
func (s *ScoreService) publish(ctx context.Context, health domain.HealthScore) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Publish(ctx, infra.RedisChanHealthScore, health.String()).Err(); err != nil {
		s.logger.Warn("health score publish failed",
			zap.String("channel", infra.RedisChanHealthScore), zap.Error(err))
	}
}

func (s *ScoreService) EvaluateMeal(ctx context.Context, req domain.MealEvaluationRequest) (json.RawMessage, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	c := newCall(ctx, s.journal, "/evaluate-meal/", "score.evaluate_meal", connectors.UpstreamScore, "", req)
	verdict, err := s.upstream.EvaluateMeal(ctx, req)
	c.done(err, http.StatusOK)
	if err != nil {
		return nil, fmt.Errorf("evaluate meal: %w", err)
	}
	return verdict, nil
}
