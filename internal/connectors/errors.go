package connectors

import (
	"encoding/json"
	"fmt"
	"time"
)

// ThrottleError — апстрим ответил 429, Retry-After уже разобран.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }

// RemoteError — апстрим ответил не-2xx. Статус и тело зеркалируются клиенту релея.
type RemoteError struct {
	Upstream string
	Status   int
	Body     []byte
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Upstream, e.Status)
}

// Retryable — 5xx можно повторить, 4xx нет
func (e *RemoteError) Retryable() bool {
	return e.Status >= 500
}

// Detail отдает тело ответа как JSON, если оно им является, иначе как строку.
func (e *RemoteError) Detail() any {
	if len(e.Body) == 0 {
		return nil
	}
	if json.Valid(e.Body) {
		return json.RawMessage(e.Body)
	}
	return string(e.Body)
}

// DecodeError — апстрим ответил 2xx, но тело не разбирается.
type DecodeError struct {
	Upstream string
	Cause    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: malformed response: %v", e.Upstream, e.Cause)
}

func (e *DecodeError) Unwrap() error { return e.Cause }
