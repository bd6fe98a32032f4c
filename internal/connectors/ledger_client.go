package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/xela07ax/vitalpolicy-relay/internal/domain"
)

const UpstreamLedger = "ledger-service"

// LedgerClient — клиент Remote Ledger Service (создание, чтение, обновление полиса).
type LedgerClient struct {
	doer Doer
}

func NewLedgerClient(doer Doer) *LedgerClient {
	return &LedgerClient{doer: doer}
}

func (c *LedgerClient) CreatePolicy(ctx context.Context, req domain.CreatePolicyRequest) (domain.LedgerPolicy, error) {
	data, err := c.doer.Do(ctx, Request{
		Op:     "ledger.create",
		Method: http.MethodPost,
		Path:   "createPolicy",
		Body:   req,
	})
	if err != nil {
		return domain.LedgerPolicy{}, err
	}
	return decodePolicy(data)
}

func (c *LedgerClient) GetPolicy(ctx context.Context, policyID string) (domain.LedgerPolicy, error) {
	data, err := c.doer.Do(ctx, Request{
		Op:         "ledger.get",
		Method:     http.MethodGet,
		Path:       "getPolicyDetails/" + url.PathEscape(policyID),
		Idempotent: true,
	})
	if err != nil {
		return domain.LedgerPolicy{}, err
	}
	return decodePolicy(data)
}

func (c *LedgerClient) UpdateHealthPoints(ctx context.Context, req domain.UpdateHealthPointsRequest) (domain.LedgerPolicy, error) {
	data, err := c.doer.Do(ctx, Request{
		Op:     "ledger.update_health_points",
		Method: http.MethodPost,
		Path:   "updateHealthPoints",
		Body:   req,
	})
	if err != nil {
		return domain.LedgerPolicy{}, err
	}
	return decodePolicy(data)
}

// decodePolicy понимает три формы ответа реестра:
// {"policy": {...}}, {"data": {"policy": {...}}} и голый объект полиса.
func decodePolicy(data []byte) (domain.LedgerPolicy, error) {
	var wrapped struct {
		Policy *domain.LedgerPolicy `json:"policy"`
		Data   *struct {
			Policy *domain.LedgerPolicy `json:"policy"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return domain.LedgerPolicy{}, &DecodeError{Upstream: UpstreamLedger, Cause: err}
	}
	switch {
	case wrapped.Policy != nil:
		return *wrapped.Policy, nil
	case wrapped.Data != nil && wrapped.Data.Policy != nil:
		return *wrapped.Data.Policy, nil
	}

	var bare domain.LedgerPolicy
	if err := json.Unmarshal(data, &bare); err != nil {
		return domain.LedgerPolicy{}, &DecodeError{Upstream: UpstreamLedger, Cause: err}
	}
	if bare.PolicyID == "" {
		return domain.LedgerPolicy{}, &DecodeError{Upstream: UpstreamLedger, Cause: errors.New("policy record missing policyId")}
	}
	return bare, nil
}
