package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Envelope — единый конверт ответов Relay Server.
// Успех: {success: true, data}. Отказ: {success: false, message, error}.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   any    `json:"error,omitempty"`
}

// RawEnvelope — тот же конверт на стороне клиента, data разбирается позже.
type RawEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// MealEvaluationRequest — тело POST /evaluate-meal/ (ссылки на объекты в хранилище).
type MealEvaluationRequest struct {
	SavedFace string `json:"saved_face"`
	TestFace  string `json:"test_face"`
	Meal      string `json:"meal"`
}

func (r MealEvaluationRequest) Validate() error {
	var missing []string
	if strings.TrimSpace(r.SavedFace) == "" {
		missing = append(missing, "saved_face")
	}
	if strings.TrimSpace(r.TestFace) == "" {
		missing = append(missing, "test_face")
	}
	if strings.TrimSpace(r.Meal) == "" {
		missing = append(missing, "meal")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

// MealVerdict — интересующая клиента часть результата верификации.
type MealVerdict struct {
	Verified bool `json:"verified"`
}
