package meter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jobtrail/governor"
)

// PromMeter exports governor events as Prometheus metrics.
type PromMeter struct {
	admissions *prometheus.CounterVec
	denials    *prometheus.CounterVec
	results    *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	queueDepth prometheus.Gauge
	queueDrops prometheus.Counter
}

var _ governor.Meter = (*PromMeter)(nil)

// NewPromMeter registers the governor metrics with reg. If reg is nil, the
// default registerer is used.
func NewPromMeter(reg prometheus.Registerer) *PromMeter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PromMeter{
		admissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "governor_admissions_total",
			Help: "Total admitted calls per model",
		}, []string{"model"}),
		denials: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "governor_denials_total",
			Help: "Total denied admission checks per model",
		}, []string{"model"}),
		results: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "governor_results_total",
			Help: "Execution attempts per model and outcome",
		}, []string{"model", "outcome"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "governor_call_duration_seconds",
			Help:    "Upstream call duration per model",
			Buckets: prometheus.DefBuckets,
		}, []string{"model"}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "governor_queue_depth",
			Help: "Current number of items in the deferred queue",
		}),
		queueDrops: factory.NewCounter(prometheus.CounterOpts{
			Name: "governor_queue_drops_total",
			Help: "Queued items abandoned after exhausting retries",
		}),
	}
}

func (m *PromMeter) OnAdmission(e governor.AdmissionEvent) {
	if e.Allowed {
		m.admissions.WithLabelValues(e.Model).Inc()
	} else {
		m.denials.WithLabelValues(e.Model).Inc()
	}
}

func (m *PromMeter) OnResult(e governor.ResultEvent) {
	outcome := "success"
	if !e.Success {
		outcome = "error"
	}
	m.results.WithLabelValues(e.Model, outcome).Inc()
	m.latency.WithLabelValues(e.Model).Observe(e.Duration.Seconds())
}

func (m *PromMeter) OnQueue(e governor.QueueEvent) {
	m.queueDepth.Set(float64(e.Depth))
	if e.Kind == governor.QueueDropped {
		m.queueDrops.Inc()
	}
}
