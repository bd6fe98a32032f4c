package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xela07ax/vitalpolicy-relay/internal/domain"
)

type PolicyService interface {
	Create(ctx context.Context, req domain.CreatePolicyRequest) (domain.LedgerPolicy, error)
	Details(ctx context.Context, policyID string) (domain.LedgerPolicy, error)
	UpdateHealthPoints(ctx context.Context, req domain.UpdateHealthPointsRequest) (domain.LedgerPolicy, error)
}

type PolicyHandler struct {
	service PolicyService
	logger  *zap.Logger
}

func NewPolicyHandler(s PolicyService, logger *zap.Logger) *PolicyHandler {
	return &PolicyHandler{service: s, logger: logger.Named("policy-handler")}
}

// Create — POST /createPolicy
func (h *PolicyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreatePolicyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, "Invalid policy request", err)
		return
	}

	policy, err := h.service.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, "Failed to create policy", err)
		return
	}
	writeData(w, http.StatusCreated, domain.PolicyPayload{Policy: policy})
}

// Details — GET /getPolicyDetails/{policyId}
func (h *PolicyHandler) Details(w http.ResponseWriter, r *http.Request) {
	policy, err := h.service.Details(r.Context(), chi.URLParam(r, "policyId"))
	if err != nil {
		writeError(w, r, h.logger, "Failed to fetch policy details", err)
		return
	}
	writeData(w, http.StatusOK, domain.PolicyPayload{Policy: policy})
}

// UpdateHealthPoints — POST /updateHealthPoints
func (h *PolicyHandler) UpdateHealthPoints(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateHealthPointsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, "Invalid health points update", err)
		return
	}

	policy, err := h.service.UpdateHealthPoints(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, "Failed to update health points", err)
		return
	}
	writeData(w, http.StatusOK, domain.PolicyPayload{Policy: policy})
}
