package retrieval

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/siherrmann/graphrag/model"
)

// Metrics are the prometheus collectors of the orchestrator
type Metrics struct {
	queriesTotal    *prometheus.CounterVec
	phaseDuration   *prometheus.HistogramVec
	resultCount     *prometheus.HistogramVec
	adapterFailures *prometheus.CounterVec
	componentHealth *prometheus.GaugeVec
}

// NewMetrics registers the orchestrator collectors with reg. A nil reg
// uses the default registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		queriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Total number of retrieval queries by final state",
			},
			[]string{"state"},
		),
		phaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "phase_duration_seconds",
				Help:      "Duration of the query phases in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"phase"},
		),
		resultCount: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "modality_results",
				Help:      "Number of results returned per modality",
				Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
			},
			[]string{"modality"},
		),
		adapterFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "adapter_failures_total",
				Help:      "Total number of modality searches that degraded to an empty result",
			},
			[]string{"modality"},
		),
		componentHealth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "component_healthy",
				Help:      "Health of the backing components (1 healthy, 0 unhealthy)",
			},
			[]string{"component"},
		),
	}
}

func (m *Metrics) recordQuery(state model.QueryState, stats model.SearchStats) {
	if m == nil {
		return
	}
	m.queriesTotal.WithLabelValues(string(state)).Inc()
	if state != model.QueryStateDone {
		return
	}
	m.phaseDuration.WithLabelValues("search").Observe(stats.SearchTime.Seconds())
	m.phaseDuration.WithLabelValues("fusion").Observe(stats.FusionTime.Seconds())
	m.phaseDuration.WithLabelValues("context_build").Observe(stats.ContextBuildTime.Seconds())
	m.phaseDuration.WithLabelValues("total").Observe(stats.TotalTime.Seconds())
}

func (m *Metrics) recordSearch(modality model.Modality, count int, failed bool, searched bool) {
	if m == nil || !searched {
		return
	}
	m.resultCount.WithLabelValues(string(modality)).Observe(float64(count))
	if failed {
		m.adapterFailures.WithLabelValues(string(modality)).Inc()
	}
}

func (m *Metrics) recordHealth(name string, healthy bool) {
	if m == nil {
		return
	}
	if healthy {
		m.componentHealth.WithLabelValues(name).Set(1)
	} else {
		m.componentHealth.WithLabelValues(name).Set(0)
	}
}
