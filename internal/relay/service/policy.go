package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/xela07ax/vitalpolicy-relay/internal/audit"
	"github.com/xela07ax/vitalpolicy-relay/internal/connectors"
	"github.com/xela07ax/vitalpolicy-relay/internal/domain"
	"github.com/xela07ax/vitalpolicy-relay/internal/engine"
)

// LedgerUpstream описывает требования к клиенту Remote Ledger Service
type LedgerUpstream interface {
	CreatePolicy(ctx context.Context, req domain.CreatePolicyRequest) (domain.LedgerPolicy, error)
	GetPolicy(ctx context.Context, policyID string) (domain.LedgerPolicy, error)
	UpdateHealthPoints(ctx context.Context, req domain.UpdateHealthPointsRequest) (domain.LedgerPolicy, error)
}

type PolicyService struct {
	ledger  LedgerUpstream
	guard   engine.InflightGuard
	journal audit.Recorder
	logger  *zap.Logger
}

func NewPolicyService(ledger LedgerUpstream, guard engine.InflightGuard, journal audit.Recorder, logger *zap.Logger) *PolicyService {
	return &PolicyService{
		ledger:  ledger,
		guard:   guard,
		journal: journal,
		logger:  logger.Named("policy-service"),
	}
}

// Create пересылает создание в реестр. Параллельный дубль того же policyId получает ErrInFlight.
func (s *PolicyService) Create(ctx context.Context, req domain.CreatePolicyRequest) (domain.LedgerPolicy, error) {
	if err := req.Validate(); err != nil {
		return domain.LedgerPolicy{}, err
	}

	release, err := s.guard.Acquire(ctx, "create", req.PolicyID)
	if err != nil {
		return domain.LedgerPolicy{}, err
	}
	defer release()

	c := newCall(ctx, s.journal, "/createPolicy", "ledger.create", connectors.UpstreamLedger, req.PolicyID, req)
	policy, err := s.ledger.CreatePolicy(ctx, req)
	c.done(err, http.StatusCreated)
	if err != nil {
		return domain.LedgerPolicy{}, fmt.Errorf("create policy %s: %w", req.PolicyID, err)
	}

	s.logger.Info("policy created",
		zap.String("policy_id", policy.PolicyID),
		zap.String("user_id", policy.UserID))
	return policy, nil
}

func (s *PolicyService) Details(ctx context.Context, policyID string) (domain.LedgerPolicy, error) {
	policyID = strings.TrimSpace(policyID)
	if policyID == "" {
		return domain.LedgerPolicy{}, fmt.Errorf("%w: policyId is required", domain.ErrInvalidInput)
	}

	c := newCall(ctx, s.journal, "/getPolicyDetails/{policyId}", "ledger.get", connectors.UpstreamLedger, policyID, nil)
	policy, err := s.ledger.GetPolicy(ctx, policyID)
	c.done(err, http.StatusOK)
	if err != nil {
		return domain.LedgerPolicy{}, fmt.Errorf("get policy %s: %w", policyID, err)
	}
	return policy, nil
}

// UpdateHealthPoints уходит ровно один раз, без повторов: запись в реестре не идемпотентна по истории.
func (s *PolicyService) UpdateHealthPoints(ctx context.Context, req domain.UpdateHealthPointsRequest) (domain.LedgerPolicy, error) {
	if err := req.Validate(); err != nil {
		return domain.LedgerPolicy{}, err
	}

	c := newCall(ctx, s.journal, "/updateHealthPoints", "ledger.update_health_points", connectors.UpstreamLedger, req.PolicyID, req)
	policy, err := s.ledger.UpdateHealthPoints(ctx, req)
	c.done(err, http.StatusOK)
	if err != nil {
		return domain.LedgerPolicy{}, fmt.Errorf("update health points %s: %w", req.PolicyID, err)
	}

	s.logger.Info("health points updated",
		zap.String("policy_id", req.PolicyID),
		zap.Stringer("new_health_points", req.NewHealthPoints))
	return policy, nil
}
