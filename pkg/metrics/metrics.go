// Package metrics exposes Prometheus instrumentation for the poll,
// investigation, diagnosis, and webhook surfaces.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter/histogram rounds emits. Fields are
// exported so callers can record directly (`Metrics.PollCycles.Inc()`)
// without a layer of setter methods.
type Metrics struct {
	PollCycles            prometheus.Counter
	ErrorsFound           prometheus.Counter
	SignaturesCreated     prometheus.Counter
	InvestigationsRun     *prometheus.CounterVec
	DiagnosisCostUSD      prometheus.Counter
	DiagnosisDuration     *prometheus.HistogramVec
	WebhookRequestsTotal  *prometheus.CounterVec
	WebhookRequestLatency *prometheus.HistogramVec
}

// NewMetrics registers every metric against the default registerer.
func NewMetrics() *Metrics {
	return newMetrics(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry registers every metric against reg, for test
// isolation against a scratch *prometheus.Registry.
func NewMetricsWithRegistry(reg *prometheus.Registry) *Metrics {
	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PollCycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "rounds_poll_cycles_total",
			Help: "Total number of poll cycles executed.",
		}),
		ErrorsFound: factory.NewCounter(prometheus.CounterOpts{
			Name: "rounds_errors_found_total",
			Help: "Total number of error events observed across all poll cycles.",
		}),
		SignaturesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "rounds_signatures_created_total",
			Help: "Total number of new failure-pattern signatures created.",
		}),
		InvestigationsRun: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rounds_investigations_total",
			Help: "Total number of investigations run, labeled by outcome.",
		}, []string{"outcome"}),
		DiagnosisCostUSD: factory.NewCounter(prometheus.CounterOpts{
			Name: "rounds_diagnosis_cost_usd_total",
			Help: "Cumulative estimated USD cost of all diagnosis calls.",
		}),
		DiagnosisDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rounds_diagnosis_duration_seconds",
			Help:    "Diagnosis call latency in seconds, labeled by backend.",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend"}),
		WebhookRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rounds_webhook_requests_total",
			Help: "Total webhook requests, labeled by route and status class.",
		}, []string{"route", "status"}),
		WebhookRequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rounds_webhook_request_duration_seconds",
			Help:    "Webhook request latency in seconds, labeled by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}
