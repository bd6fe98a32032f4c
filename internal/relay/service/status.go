package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/xela07ax/vitalpolicy-relay/internal/audit"
	"github.com/xela07ax/vitalpolicy-relay/internal/connectors"
	"github.com/xela07ax/vitalpolicy-relay/internal/domain"
	"github.com/xela07ax/vitalpolicy-relay/internal/infra"
)

// StatusOf переводит ошибку сервиса в HTTP статус ответа релея.
// Ответ апстрима с не-2xx зеркалируется как есть; сбой транспорта и разбора — 500.
func StatusOf(err error, okStatus int) int {
	if err == nil {
		return okStatus
	}
	var rErr *connectors.RemoteError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInFlight):
		return http.StatusConflict
	case errors.As(err, &rErr):
		return rErr.Status
	default:
		return http.StatusInternalServerError
	}
}

// call — заготовка события журнала для одного исходящего вызова
type call struct {
	journal audit.Recorder
	event   audit.CallEvent
	start   time.Time
}

func newCall(ctx context.Context, journal audit.Recorder, route, op, upstream, resource string, body any) *call {
	c := &call{
		journal: journal,
		start:   time.Now(),
		event: audit.CallEvent{
			TraceID:  infra.TraceID(ctx),
			Route:    route,
			Op:       op,
			Upstream: upstream,
			Resource: resource,
		},
	}
	if body != nil {
		if b, err := json.Marshal(body); err == nil {
			c.event.Payload = b
		}
	}
	return c
}

func (c *call) done(err error, okStatus int) {
	c.event.DurationMs = time.Since(c.start).Milliseconds()
	c.event.Status = StatusOf(err, okStatus)
	if err != nil {
		c.event.Error = err.Error()
	}
	c.journal.Log(c.event)
}
