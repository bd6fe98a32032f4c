package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/xela07ax/vitalpolicy-relay/internal/infra"
)

// maxBody — ограничение на размер ответа апстрима
const maxBody = 4 << 20

// Request — один исходящий вызов к внешнему сервису.
type Request struct {
	Op         string // имя операции для метрик и журнала, например "ledger.create"
	Method     string
	Path       string
	Body       any
	Idempotent bool // только такие вызовы можно повторять
}

// Doer выполняет исходящий вызов и возвращает тело успешного ответа.
type Doer interface {
	Do(ctx context.Context, req Request) ([]byte, error)
}

// HTTPAdapter — JSON поверх HTTP к одному апстриму.
type HTTPAdapter struct {
	name    string
	baseURL string
	client  *http.Client
	headers http.Header // статические заголовки (Authorization у клиента релея)
}

// NewHTTPAdapter создает адаптер. Таймаут применяется к каждому вызову целиком.
func NewHTTPAdapter(name, baseURL string, timeout time.Duration) *HTTPAdapter {
	return &HTTPAdapter{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// WithHeader добавляет заголовок ко всем вызовам адаптера
func (a *HTTPAdapter) WithHeader(key, value string) *HTTPAdapter {
	if a.headers == nil {
		a.headers = http.Header{}
	}
	a.headers.Set(key, value)
	return a
}

// Do реализует интерфейс Doer
func (a *HTTPAdapter) Do(ctx context.Context, req Request) ([]byte, error) {
	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to marshal payload: %w", a.name, err)
		}
		body = bytes.NewReader(b)
	}

	url := a.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build request: %w", a.name, err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range a.headers {
		httpReq.Header[k] = v
	}
	httpReq.Header.Set(infra.TraceHeader, infra.TraceID(ctx))

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", a.name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read response: %w", a.name, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &ThrottleError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Cause:      &RemoteError{Upstream: a.name, Status: resp.StatusCode, Body: data},
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RemoteError{Upstream: a.name, Status: resp.StatusCode, Body: data}
	}
	return data, nil
}

// parseRetryAfter понимает только секунды; дату и мусор трактуем как 1s
func parseRetryAfter(v string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return time.Second
}
