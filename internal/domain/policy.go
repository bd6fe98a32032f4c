package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PolicyStatus — статус полиса. Подсистема выставляет только Active при создании.
type PolicyStatus string

const (
	PolicyActive   PolicyStatus = "Active"
	PolicyInactive PolicyStatus = "Inactive"
)

// LedgerFields — производные поля, которыми владеет Remote Ledger Service.
// Для нас это непрозрачные значения: храним и отдаем как есть.
// Исключения: currentHealthPoints (нужен для сравнения) и isActive.
type LedgerFields struct {
	CoverageAmount      json.RawMessage `json:"coverageAmount,omitempty"`
	PremiumAmount       json.RawMessage `json:"premiumAmount,omitempty"`
	CurrentHealthPoints *HealthScore    `json:"currentHealthPoints,omitempty"`
	RollingAverage      json.RawMessage `json:"rollingAverage,omitempty"`
	KFactor             json.RawMessage `json:"k,omitempty"`
	IsActive            *bool           `json:"isActive,omitempty"`
}

// Merge перезаписывает поля, которые пришли в ответе реестра. Отсутствующие не трогаем.
func (f *LedgerFields) Merge(next LedgerFields) {
	if len(next.CoverageAmount) > 0 {
		f.CoverageAmount = next.CoverageAmount
	}
	if len(next.PremiumAmount) > 0 {
		f.PremiumAmount = next.PremiumAmount
	}
	if next.CurrentHealthPoints != nil {
		v := *next.CurrentHealthPoints
		f.CurrentHealthPoints = &v
	}
	if len(next.RollingAverage) > 0 {
		f.RollingAverage = next.RollingAverage
	}
	if len(next.KFactor) > 0 {
		f.KFactor = next.KFactor
	}
	if next.IsActive != nil {
		v := *next.IsActive
		f.IsActive = &v
	}
}

// LedgerPolicy — запись полиса в том виде, в котором ее отдает реестр.
type LedgerPolicy struct {
	PolicyID           string      `json:"policyId"`
	UserID             string      `json:"userId,omitempty"`
	UserWalletAddress  string      `json:"userWalletAddress,omitempty"`
	InitialHealthScore HealthScore `json:"initialHealthScore"`
	CoverageDuration   Months      `json:"coverageDuration"`
	CreatedAt          *time.Time  `json:"createdAt,omitempty"`
	LedgerFields
}

// PolicyPayload — содержимое поля data в конверте ответа Relay Server.
type PolicyPayload struct {
	Policy LedgerPolicy `json:"policy"`
}

// PolicyRecord — локальное представление полиса на клиенте (Policy Dashboard).
type PolicyRecord struct {
	ID                     string       `json:"id"` // локальный идентификатор
	PolicyID               string       `json:"policyId"`
	UserID                 string       `json:"userId"`
	UserWalletAddress      string       `json:"userWalletAddress"`
	InitialHealthScore     HealthScore  `json:"initialHealthScore"`
	CoverageDurationMonths Months       `json:"coverageDuration"`
	CreatedAt              time.Time    `json:"createdAt"`
	Status                 PolicyStatus `json:"status"`

	LedgerFields
}

// CreatePolicyRequest — тело POST /createPolicy.
// Указатели нужны, чтобы отличить "не передано" от нуля.
type CreatePolicyRequest struct {
	PolicyID           string       `json:"policyId"`
	UserID             string       `json:"userId"`
	UserWalletAddress  string       `json:"userWalletAddress"`
	InitialHealthScore *HealthScore `json:"initialHealthScore"`
	CoverageDuration   *Months      `json:"coverageDuration"`
}

func (r CreatePolicyRequest) Validate() error {
	var missing []string
	if strings.TrimSpace(r.PolicyID) == "" {
		missing = append(missing, "policyId")
	}
	if strings.TrimSpace(r.UserID) == "" {
		missing = append(missing, "userId")
	}
	if strings.TrimSpace(r.UserWalletAddress) == "" {
		missing = append(missing, "userWalletAddress")
	}
	if r.InitialHealthScore == nil {
		missing = append(missing, "initialHealthScore")
	}
	if r.CoverageDuration == nil {
		missing = append(missing, "coverageDuration")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	if *r.CoverageDuration <= 0 {
		return fmt.Errorf("%w: coverageDuration must be positive", ErrInvalidInput)
	}
	return nil
}

// UpdateHealthPointsRequest — тело POST /updateHealthPoints.
type UpdateHealthPointsRequest struct {
	PolicyID          string       `json:"policyId"`
	NewHealthPoints   *HealthScore `json:"newHealthPoints"`
	UserWalletAddress string       `json:"userWalletAddress"`
}

func (r UpdateHealthPointsRequest) Validate() error {
	var missing []string
	if strings.TrimSpace(r.PolicyID) == "" {
		missing = append(missing, "policyId")
	}
	if r.NewHealthPoints == nil {
		missing = append(missing, "newHealthPoints")
	}
	if strings.TrimSpace(r.UserWalletAddress) == "" {
		missing = append(missing, "userWalletAddress")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

// PolicyForm — сырые значения формы создания полиса (все строки, как ввел пользователь).
type PolicyForm struct {
	PolicyID           string
	UserID             string
	UserWalletAddress  string
	InitialHealthScore string
	CoverageDuration   string
}

// Request проверяет, что все пять полей заполнены, и разбирает числа.
func (f PolicyForm) Request() (CreatePolicyRequest, error) {
	if strings.TrimSpace(f.PolicyID) == "" ||
		strings.TrimSpace(f.UserID) == "" ||
		strings.TrimSpace(f.UserWalletAddress) == "" ||
		strings.TrimSpace(f.InitialHealthScore) == "" ||
		strings.TrimSpace(f.CoverageDuration) == "" {
		return CreatePolicyRequest{}, fmt.Errorf("%w: please fill all fields", ErrInvalidInput)
	}

	score, err := ParseHealthScore(f.InitialHealthScore)
	if err != nil {
		return CreatePolicyRequest{}, err
	}
	months, err := ParseMonths(f.CoverageDuration)
	if err != nil {
		return CreatePolicyRequest{}, err
	}

	return CreatePolicyRequest{
		PolicyID:           strings.TrimSpace(f.PolicyID),
		UserID:             strings.TrimSpace(f.UserID),
		UserWalletAddress:  strings.TrimSpace(f.UserWalletAddress),
		InitialHealthScore: &score,
		CoverageDuration:   &months,
	}, nil
}
