package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/xela07ax/vitalpolicy-relay/internal/domain"
)

const UpstreamScore = "score-service"

// ScoreClient — клиент Remote Score Service (баллы здоровья и верификация блюд).
type ScoreClient struct {
	doer Doer
}

func NewScoreClient(doer Doer) *ScoreClient {
	return &ScoreClient{doer: doer}
}

// FetchScores запрашивает четыре балла. Ошибку не прячет: решение о fallback за вызывающим.
func (c *ScoreClient) FetchScores(ctx context.Context) (domain.HealthScores, error) {
	data, err := c.doer.Do(ctx, Request{
		Op:         "score.get",
		Method:     http.MethodGet,
		Path:       "get-scores/",
		Idempotent: true,
	})
	if err != nil {
		return domain.HealthScores{}, err
	}

	var scores domain.HealthScores
	if err := json.Unmarshal(data, &scores); err != nil {
		return domain.HealthScores{}, &DecodeError{Upstream: UpstreamScore, Cause: err}
	}
	return scores, nil
}

// EvaluateMeal отправляет три ссылки на проверку. Результат сервиса отдается как есть.
func (c *ScoreClient) EvaluateMeal(ctx context.Context, req domain.MealEvaluationRequest) (json.RawMessage, error) {
	data, err := c.doer.Do(ctx, Request{
		Op:     "score.evaluate_meal",
		Method: http.MethodPost,
		Path:   "evaluate-meal/",
		Body:   req,
	})
	if err != nil {
		return nil, err
	}

	if !json.Valid(data) {
		return nil, &DecodeError{Upstream: UpstreamScore, Cause: fmt.Errorf("body is not JSON")}
	}
	var verdict domain.MealVerdict
	if err := json.Unmarshal(data, &verdict); err != nil {
		return nil, &DecodeError{Upstream: UpstreamScore, Cause: err}
	}
	return json.RawMessage(data), nil
}
