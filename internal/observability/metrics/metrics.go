package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config configures metric labels.
type Config struct {
	ServiceName string
	Environment string
}

// Metrics exposes engine-level Prometheus instruments. A nil *Metrics is a
// valid no-op so services can take it as an optional dependency.
type Metrics struct {
	ledgerEntries   *prometheus.CounterVec
	payments        *prometheus.CounterVec
	paymentVolume   *prometheus.CounterVec
	creditOutcomes  *prometheus.CounterVec
	predictions     *prometheus.CounterVec
	disputes        *prometheus.CounterVec
	outboxPublished *prometheus.CounterVec
	outboxBacklog   prometheus.Gauge
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New registers the engine instruments with registerer.
func New(cfg Config, registerer prometheus.Registerer) (*Metrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := constLabelsFor(cfg)

	m := &Metrics{
		ledgerEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "recurra_ledger_entries_total",
			Help:        "Ledger entries posted by source type.",
			ConstLabels: constLabels,
		}, []string{"source_type"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "recurra_payments_total",
			Help:        "Payment records appended by kind and outcome.",
			ConstLabels: constLabels,
		}, []string{"kind", "outcome"}),
		paymentVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "recurra_payment_volume_total",
			Help:        "Settled payment volume in minor units, by asset. Float precision only.",
			ConstLabels: constLabels,
		}, []string{"asset_type"}),
		creditOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "recurra_credit_outcomes_total",
			Help:        "Credit score adjustments by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "recurra_predictions_total",
			Help:        "Stored predictions by provenance and risk level.",
			ConstLabels: constLabels,
		}, []string{"provenance", "risk_level"}),
		disputes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "recurra_dispute_transitions_total",
			Help:        "Dispute lifecycle transitions.",
			ConstLabels: constLabels,
		}, []string{"action"}),
		outboxPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "recurra_outbox_published_total",
			Help:        "Outbox publish attempts by status.",
			ConstLabels: constLabels,
		}, []string{"status"}),
		outboxBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "recurra_outbox_backlog",
			Help:        "Unpublished outbox events seen by the last relay run.",
			ConstLabels: constLabels,
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "recurra_http_requests_total",
			Help:        "HTTP requests by method, route and status.",
			ConstLabels: constLabels,
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "recurra_http_request_duration_seconds",
			Help:        "HTTP request latency by route.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}, []string{"method", "route"}),
	}

	for _, c := range []prometheus.Collector{
		m.ledgerEntries,
		m.payments,
		m.paymentVolume,
		m.creditOutcomes,
		m.predictions,
		m.disputes,
		m.outboxPublished,
		m.outboxBacklog,
		m.httpRequests,
		m.httpDuration,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func constLabelsFor(cfg Config) prometheus.Labels {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "recurra"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	return prometheus.Labels{"service": serviceName, "env": environment}
}

// RecordLedgerEntry increments ledger entry counts.
func (m *Metrics) RecordLedgerEntry(sourceType string) {
	if m == nil {
		return
	}
	m.ledgerEntries.WithLabelValues(strings.TrimSpace(sourceType)).Inc()
}

// RecordPayment counts one appended payment record.
func (m *Metrics) RecordPayment(kind string, success bool, assetType string, amount float64) {
	if m == nil {
		return
	}
	outcome := "failed"
	if success {
		outcome = "succeeded"
		if amount > 0 {
			m.paymentVolume.WithLabelValues(strings.TrimSpace(assetType)).Add(amount)
		}
	}
	m.payments.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) RecordCreditOutcome(success bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if success {
		outcome = "succeeded"
	}
	m.creditOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordPrediction(provenance, riskLevel string) {
	if m == nil {
		return
	}
	m.predictions.WithLabelValues(provenance, riskLevel).Inc()
}

func (m *Metrics) RecordDisputeTransition(action string) {
	if m == nil {
		return
	}
	m.disputes.WithLabelValues(action).Inc()
}

func (m *Metrics) RecordOutboxPublish(status string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.outboxPublished.WithLabelValues(status).Add(float64(count))
}

func (m *Metrics) SetOutboxBacklog(n int) {
	if m == nil {
		return
	}
	m.outboxBacklog.Set(float64(n))
}

// ObserveHTTPRequest records one served request.
func (m *Metrics) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if strings.TrimSpace(route) == "" {
		route = "unknown"
	}
	m.httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
