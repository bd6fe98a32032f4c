package engine

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/xela07ax/vitalpolicy-relay/internal/infra"
)

// TracingMiddleware инициализирует Trace-ID для каждого запроса
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 1. Пытаемся достать ID из заголовка (если пришел от клиента/прокси)
		traceID := r.Header.Get(infra.TraceHeader)

		// 2. Если его нет — генерируем новый
		if traceID == "" {
			traceID = uuid.New().String()
		}

		// 3. Кладем в контекст и отдаем клиенту
		ctx := infra.WithTraceID(r.Context(), traceID)
		w.Header().Set(infra.TraceHeader, traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// MetricsMiddleware считает трафик и латентность по шаблону маршрута chi
func MetricsMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			m.TotalRequests.WithLabelValues(route).Inc()
			m.RequestDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
		})
	}
}
