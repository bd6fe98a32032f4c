package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/xela07ax/vitalpolicy-relay/internal/connectors"
	"github.com/xela07ax/vitalpolicy-relay/internal/domain"
	"github.com/xela07ax/vitalpolicy-relay/internal/media"
)

const upstreamRelay = "relay"

// RelayError — отказ релея в виде его конверта {success:false, message, error}
type RelayError struct {
	Status  int
	Message string
	Detail  json.RawMessage
	cause   error
}

func (e *RelayError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("relay: %s (status %d)", e.Message, e.Status)
	}
	return fmt.Sprintf("relay: status %d", e.Status)
}

func (e *RelayError) Unwrap() error { return e.cause }

// Is: 404 релея — это domain.ErrPolicyNotFound
func (e *RelayError) Is(target error) bool {
	return target == domain.ErrPolicyNotFound && e.Status == http.StatusNotFound
}

// RelayClient — HTTP клиент Relay Server на стороне Policy Dashboard.
type RelayClient struct {
	doer connectors.Doer
}

func NewRelayClient(doer connectors.Doer) *RelayClient {
	return &RelayClient{doer: doer}
}

func (c *RelayClient) CreatePolicy(ctx context.Context, req domain.CreatePolicyRequest) (domain.LedgerPolicy, error) {
	return c.policyCall(ctx, connectors.Request{
		Op: "relay.create", Method: http.MethodPost, Path: "createPolicy", Body: req,
	})
}

func (c *RelayClient) PolicyDetails(ctx context.Context, policyID string) (domain.LedgerPolicy, error) {
	return c.policyCall(ctx, connectors.Request{
		Op: "relay.details", Method: http.MethodGet, Path: "getPolicyDetails/" + url.PathEscape(policyID), Idempotent: true,
	})
}

func (c *RelayClient) UpdateHealthPoints(ctx context.Context, req domain.UpdateHealthPointsRequest) (domain.LedgerPolicy, error) {
	return c.policyCall(ctx, connectors.Request{
		Op: "relay.update_health_points", Method: http.MethodPost, Path: "updateHealthPoints", Body: req,
	})
}

// Scores — ошибка или обнуленный ответ релея (500) возвращаются как ошибка
func (c *RelayClient) Scores(ctx context.Context) (domain.HealthScores, error) {
	data, err := c.doer.Do(ctx, connectors.Request{
		Op: "relay.scores", Method: http.MethodGet, Path: "get-scores/", Idempotent: true,
	})
	if err != nil {
		return domain.HealthScores{}, relayError(err)
	}
	var scores domain.HealthScores
	if err := json.Unmarshal(data, &scores); err != nil {
		return domain.HealthScores{}, &connectors.DecodeError{Upstream: upstreamRelay, Cause: err}
	}
	return scores, nil
}

// EvaluateMeal — сверка лица и фото блюда. Отказ сервиса (verified=false) не ошибка.
func (c *RelayClient) EvaluateMeal(ctx context.Context, req domain.MealEvaluationRequest) (domain.MealVerdict, error) {
	var verdict domain.MealVerdict
	err := c.dataCall(ctx, connectors.Request{
		Op: "relay.evaluate_meal", Method: http.MethodPost, Path: "evaluate-meal/", Body: req,
	}, &verdict)
	return verdict, err
}

// Presign запрашивает у релея URL для прямой загрузки фото в хранилище
func (c *RelayClient) Presign(ctx context.Context, req media.PresignRequest) (media.PresignedUpload, error) {
	var upload media.PresignedUpload
	if err := c.dataCall(ctx, connectors.Request{
		Op: "relay.presign", Method: http.MethodPost, Path: "media/presign", Body: req,
	}, &upload); err != nil {
		return media.PresignedUpload{}, err
	}
	if upload.URL == "" || upload.ObjectURL == "" {
		return media.PresignedUpload{}, &connectors.DecodeError{Upstream: upstreamRelay, Cause: errors.New("response missing upload url")}
	}
	return upload, nil
}

// dataCall разбирает конверт {success, data} в dst
func (c *RelayClient) dataCall(ctx context.Context, req connectors.Request, dst any) error {
	data, err := c.doer.Do(ctx, req)
	if err != nil {
		return relayError(err)
	}
	var env domain.RawEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return &connectors.DecodeError{Upstream: upstreamRelay, Cause: err}
	}
	if !env.Success {
		return &RelayError{Status: http.StatusOK, Message: env.Message, Detail: env.Error}
	}
	if len(env.Data) == 0 {
		return &connectors.DecodeError{Upstream: upstreamRelay, Cause: errors.New("response missing data")}
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return &connectors.DecodeError{Upstream: upstreamRelay, Cause: err}
	}
	return nil
}

func (c *RelayClient) policyCall(ctx context.Context, req connectors.Request) (domain.LedgerPolicy, error) {
	var payload domain.PolicyPayload
	if err := c.dataCall(ctx, req, &payload); err != nil {
		return domain.LedgerPolicy{}, err
	}
	if payload.Policy.PolicyID == "" {
		return domain.LedgerPolicy{}, &connectors.DecodeError{Upstream: upstreamRelay, Cause: errors.New("response missing data.policy")}
	}
	return payload.Policy, nil
}

// relayError разворачивает конверт из тела не-2xx ответа
func relayError(err error) error {
	var rErr *connectors.RemoteError
	if !errors.As(err, &rErr) {
		return err
	}
	out := &RelayError{Status: rErr.Status, cause: err}
	var env domain.RawEnvelope
	if json.Unmarshal(rErr.Body, &env) == nil {
		out.Message = env.Message
		out.Detail = env.Error
	}
	return out
}
