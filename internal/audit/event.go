package audit

import (
	"encoding/json"
	"time"
)

// CallEvent — одна запись журнала: входящий маршрут релея и исходящий вызов апстрима.
type CallEvent struct {
	ID       string `json:"id"`       // UUID события
	TraceID  string `json:"trace_id"` // Сквозной ID запроса
	Route    string `json:"route"`    // Маршрут релея, например /createPolicy
	Op       string `json:"op"`       // ledger.create, score.fetch ...
	Upstream string `json:"upstream"` // score-service / ledger-service

	// Ключ ресурса (policyId), если есть
	Resource string `json:"resource,omitempty"`

	// Результат
	Status     int             `json:"status"` // HTTP статус, отданный клиенту
	Fallback   bool            `json:"fallback,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"` // тело запроса к апстриму
	Timestamp  time.Time       `json:"timestamp"`
	DurationMs int64           `json:"duration_ms"`
	Error      string          `json:"error,omitempty"`
}
