package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько времени заняла обработка маршрута (включая апстрим)
	RequestDuration *prometheus.HistogramVec

	// Traffic: общее кол-во запросов по маршрутам
	TotalRequests *prometheus.CounterVec

	// Errors: отказы апстримов по типам
	UpstreamErrors *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker (0 - закрыт, 1 - полуоткрыт, 2 - открыт)
	CircuitBreakerState *prometheus.GaugeVec

	// Fallback: сколько раз клиенту отдали обнуленные баллы
	ScoreFallbacks prometheus.Counter

	// Journal: заполненность буфера журнала (backpressure)
	JournalBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - если реестр не передан, используем локальный, никуда не подключенный
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_request_duration_seconds",
			Help:    "Histogram of relay request latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"route", "status"}),

		TotalRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "relay_requests_total",
			Help: "Total number of relayed requests.",
		}, []string{"route"}),

		UpstreamErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "relay_upstream_errors_total",
			Help: "Total number of upstream errors by type.",
		}, []string{"upstream", "type"}), // типы: transport, remote, throttle, breaker_open, rate_limit

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "relay_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=half-open, 2=open).",
		}, []string{"upstream"}),

		ScoreFallbacks: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "relay_score_fallbacks_total",
			Help: "Zeroed health scores served because the score service failed.",
		}),

		JournalBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "relay_journal_buffer_utilization",
			Help: "Current number of events in the relay call journal buffer.",
		}),
	}
}
