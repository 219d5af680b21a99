// Package metrics exposes the pipeline's Prometheus collectors.
// All methods are safe on a nil *Metrics so components can run without metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const DefaultNamespace = "melidesk"

// Metrics implements the pipeline metrics using Prometheus.
type Metrics struct {
	webhooksReceivedTotal   *prometheus.CounterVec
	questionsProcessedTotal *prometheus.CounterVec
	upstreamRequestsTotal   *prometheus.CounterVec
	upstreamDuration        *prometheus.HistogramVec
	upstreamRetriesTotal    *prometheus.CounterVec
	dispatchDuration        *prometheus.HistogramVec
	cacheHitsTotal          *prometheus.CounterVec
	cacheMissesTotal        *prometheus.CounterVec
	batchPending            prometheus.Gauge
	batchAccounts           prometheus.Gauge
	realtimeErrorsTotal     *prometheus.CounterVec
}

// New creates and registers the collectors on reg.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Metrics{
		webhooksReceivedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_received_total",
			Help:      "Inbound marketplace webhooks by topic and intake outcome.",
		}, []string{"topic", "outcome"}),

		questionsProcessedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "questions_processed_total",
			Help:      "Question processor passes by final outcome.",
		}, []string{"outcome"}),

		upstreamRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Requests to the marketplace API by endpoint and status code.",
		}, []string{"endpoint", "code"}),

		upstreamDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Latency of marketplace API requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),

		upstreamRetriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_retries_total",
			Help:      "Retries against the marketplace API by endpoint and reason.",
		}, []string{"endpoint", "reason"}),

		dispatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "automation_dispatch_duration_seconds",
			Help:      "Latency of automation webhook deliveries.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120},
		}, []string{"result"}),

		cacheHitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits.",
		}, []string{"kind"}),

		cacheMissesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses.",
		}, []string{"kind"}),

		batchPending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_pending_webhooks",
			Help:      "Webhooks waiting in the batch processor.",
		}),

		batchAccounts: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_accounts",
			Help:      "Accounts with pending webhooks in the batch processor.",
		}),

		realtimeErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_emit_errors_total",
			Help:      "Failed real-time notifications by event.",
		}, []string{"event"}),
	}
}

func (m *Metrics) RecordWebhookReceived(topic, outcome string) {
	if m == nil {
		return
	}
	m.webhooksReceivedTotal.WithLabelValues(topic, outcome).Inc()
}

func (m *Metrics) RecordQuestionOutcome(outcome string) {
	if m == nil {
		return
	}
	m.questionsProcessedTotal.WithLabelValues(outcome).Inc()
}

// RecordUpstreamRequest records one marketplace call. code 0 means a transport error.
func (m *Metrics) RecordUpstreamRequest(endpoint string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	m.upstreamRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
	m.upstreamDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (m *Metrics) RecordUpstreamRetry(endpoint, reason string) {
	if m == nil {
		return
	}
	m.upstreamRetriesTotal.WithLabelValues(endpoint, reason).Inc()
}

func (m *Metrics) RecordDispatch(success bool, duration time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.dispatchDuration.WithLabelValues(result).Observe(duration.Seconds())
}

func (m *Metrics) RecordCacheHit(kind string) {
	if m == nil {
		return
	}
	m.cacheHitsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordCacheMiss(kind string) {
	if m == nil {
		return
	}
	m.cacheMissesTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetBatchBacklog(accounts, pending int) {
	if m == nil {
		return
	}
	m.batchAccounts.Set(float64(accounts))
	m.batchPending.Set(float64(pending))
}

func (m *Metrics) RecordRealtimeError(event string) {
	if m == nil {
		return
	}
	m.realtimeErrorsTotal.WithLabelValues(event).Inc()
}
