package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: полный прогон аудита (fan-out + вердикт + сохранение)
	AuditDuration *prometheus.HistogramVec

	// Traffic: аудиты и ходы чата по исходу
	AuditsTotal *prometheus.CounterVec
	ChatTurns   *prometheus.CounterVec

	// Зонды: длительность по типу и исходу (OK, ABSENT, FAILED, PANIC)
	ProbeDuration *prometheus.HistogramVec

	// Reasoning: обращения к моделям по исходу (ok, error, empty, breaker_open)
	ModelCalls   *prometheus.CounterVec
	ModelLatency *prometheus.HistogramVec

	// Журнал: заполненность буфера (backpressure)
	TrailBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object: без регистратора метрики пишутся в локальный реестр, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		AuditDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prefracta_audit_duration_seconds",
			Help:    "Histogram of full audit run latencies.",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"outcome"}),

		AuditsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "prefracta_audits_total",
			Help: "Total number of audit runs by outcome.",
		}, []string{"outcome"}),

		ChatTurns: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "prefracta_chat_turns_total",
			Help: "Total number of chat turns by outcome.",
		}, []string{"outcome"}),

		ProbeDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prefracta_probe_duration_seconds",
			Help:    "Histogram of probe latencies.",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}, []string{"probe", "status"}),

		ModelCalls: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "prefracta_reasoning_calls_total",
			Help: "Reasoning model calls by outcome.",
		}, []string{"model", "outcome"}),

		ModelLatency: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prefracta_reasoning_call_duration_seconds",
			Help:    "Histogram of reasoning model call latencies.",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"model"}),

		TrailBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "prefracta_trail_buffer_utilization",
			Help: "Current number of events in the audit trail buffer.",
		}),
	}
}

// RecordModelCall реализует reasoning.CallRecorder.
func (m *Metrics) RecordModelCall(model, outcome string, took time.Duration) {
	m.ModelCalls.WithLabelValues(model, outcome).Inc()
	m.ModelLatency.WithLabelValues(model).Observe(took.Seconds())
}

// ObserveTrailFill подходит как audit.FillObserver.
func (m *Metrics) ObserveTrailFill(n int) {
	m.TrailBufferFill.Set(float64(n))
}
