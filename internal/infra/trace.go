package infra

import "context"

// Тип для ключа в контексте (избегаем коллизий)
type ctxKey string

const traceIDKey ctxKey = "trace_id"

// TraceHeader — заголовок сквозного идентификатора запроса
const TraceHeader = "X-Trace-ID"

// ZeroTraceID — значение, когда запрос пришел в обход TracingMiddleware
const ZeroTraceID = "00000000-0000-0000-0000-000000000000"

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

// TraceID помогает безопасно достать ID в любом месте кода
func TraceID(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey).(string); ok && id != "" {
		return id
	}
	return ZeroTraceID
}
