package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/xela07ax/vitalpolicy-relay/internal/connectors"
	"github.com/xela07ax/vitalpolicy-relay/internal/domain"
	"github.com/xela07ax/vitalpolicy-relay/internal/infra"
	"github.com/xela07ax/vitalpolicy-relay/internal/relay/service"
)

const maxRequestBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, domain.Envelope{Success: true, Data: data})
}

// writeError: статус по типу ошибки, тело апстрима (если было) — в поле error
func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, message string, err error) {
	status := service.StatusOf(err, http.StatusInternalServerError)

	var detail any = err.Error()
	var rErr *connectors.RemoteError
	if errors.As(err, &rErr) {
		if d := rErr.Detail(); d != nil {
			detail = d
		}
	}

	if status >= http.StatusInternalServerError {
		logger.Error(message,
			zap.String("trace_id", infra.TraceID(r.Context())),
			zap.Int("status", status),
			zap.Error(err))
	}
	writeJSON(w, status, domain.Envelope{Success: false, Message: message, Error: detail})
}

// decodeBody: битый JSON — ErrInvalidInput, до апстрима дело не доходит
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// NotFound — конверт вместо текстового 404 роутера (в т.ч. /getPolicyDetails/ без id)
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, domain.Envelope{
		Success: false,
		Message: "Route not found",
		Error:   r.Method + " " + r.URL.Path,
	})
}

func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, domain.Envelope{
		Success: false,
		Message: "Method not allowed",
		Error:   r.Method + " " + r.URL.Path,
	})
}
