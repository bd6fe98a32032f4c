package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xela07ax/vitalpolicy-relay/internal/connectors"
	"github.com/xela07ax/vitalpolicy-relay/internal/infra"
)

// ErrUpstreamUnavailable — предохранитель открыт или лимитер не пустил запрос.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// ReliabilityWrapper — Rate Limiter -> Circuit Breaker -> Retry вокруг одного апстрима.
// Повторяются только идемпотентные чтения; запись уходит ровно один раз.
type ReliabilityWrapper struct {
	upstream string
	next     connectors.Doer
	cb       *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	attempts uint
	timeout  time.Duration
	metrics  *Metrics
	logger   *zap.Logger
}

func NewReliabilityWrapper(upstream string, next connectors.Doer, cfg infra.EngineConfig, callTimeout time.Duration, metrics *Metrics, logger *zap.Logger) *ReliabilityWrapper {
	w := &ReliabilityWrapper{
		upstream: upstream,
		next:     next,
		attempts: cfg.RetryAttempts,
		timeout:  callTimeout,
		metrics:  metrics,
		logger:   logger.Named("reliability").With(zap.String("upstream", upstream)),
	}
	if w.attempts == 0 {
		w.attempts = 1
	}

	maxFailures := cfg.CBMaxFailures
	// Настройка предохранителя
	w.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        upstream,
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > maxFailures
		},
		// 4xx — это ответ сервиса, а не его отказ: предохранитель не трогаем
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var rErr *connectors.RemoteError
			return errors.As(err, &rErr) && !rErr.Retryable()
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			w.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			w.logger.Warn("circuit breaker state changed",
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	w.limiter = rate.NewLimiter(limit, max(cfg.RateBurst, 1))

	return w
}

// Do реализует connectors.Doer
func (w *ReliabilityWrapper) Do(ctx context.Context, req connectors.Request) ([]byte, error) {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		w.metrics.UpstreamErrors.WithLabelValues(w.upstream, "rate_limit").Inc()
		return nil, fmt.Errorf("%w: rate limit: %v", ErrUpstreamUnavailable, err)
	}

	// 2. Circuit Breaker
	res, err := w.cb.Execute(func() (interface{}, error) {
		if !req.Idempotent {
			return w.call(ctx, req)
		}
		return w.callWithRetry(ctx, req)
	})
	if err != nil {
		w.countError(err)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s: %v", ErrUpstreamUnavailable, w.upstream, err)
		}
		return nil, err
	}
	return res.([]byte), nil
}

func (w *ReliabilityWrapper) call(ctx context.Context, req connectors.Request) ([]byte, error) {
	tCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	return w.next.Do(tCtx, req)
}

func (w *ReliabilityWrapper) callWithRetry(ctx context.Context, req connectors.Request) ([]byte, error) {
	var data []byte

	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(w.attempts),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		// Умный расчет задержки
		retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
			// Апстрим сам сказал, сколько ждать (Retry-After)
			var tErr *connectors.ThrottleError
			if errors.As(err, &tErr) {
				return tErr.RetryAfter
			}
			// В остальных случаях (сетевой лаг, 5xx) — экспоненциальный бэкофф
			return retry.BackOffDelay(n, err, config)
		}),
		retry.OnRetry(func(n uint, err error) {
			w.logger.Debug("retrying upstream call",
				zap.String("op", req.Op), zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)

	err := r.Do(func() error {
		var callErr error
		data, callErr = w.call(ctx, req)
		return callErr
	})
	return data, err
}

// retryable: транспорт, 5xx и 429 — да; 4xx и битый JSON — нет
func retryable(err error) bool {
	var rErr *connectors.RemoteError
	if errors.As(err, &rErr) {
		var tErr *connectors.ThrottleError
		return rErr.Retryable() || errors.As(err, &tErr)
	}
	var dErr *connectors.DecodeError
	return !errors.As(err, &dErr)
}

func (w *ReliabilityWrapper) countError(err error) {
	var (
		tErr *connectors.ThrottleError
		rErr *connectors.RemoteError
		dErr *connectors.DecodeError
	)
	kind := "transport"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		kind = "breaker_open"
	case errors.As(err, &tErr):
		kind = "throttle"
	case errors.As(err, &rErr):
		kind = "remote"
	case errors.As(err, &dErr):
		kind = "decode"
	}
	w.metrics.UpstreamErrors.WithLabelValues(w.upstream, kind).Inc()
}
