package metrics

import (
	"fmt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	KindMessage = "message"
	KindActive  = "active"
	KindTick    = "tick"
)

type BoardMetrics struct {
	sequenceGauge        prometheus.Gauge
	acceptedCount        *prometheus.CounterVec
	rejectedCount        *prometheus.CounterVec
	failedCount          *prometheus.CounterVec
	publishedTicksCount  prometheus.Counter
	publishFailuresCount prometheus.Counter
}

// NewBoardMetrics registers the board metrics with reg. Pass prometheus.DefaultRegisterer
// to expose them on the default metrics handler.
func NewBoardMetrics(namespace string, reg prometheus.Registerer) *BoardMetrics {
	factory := promauto.With(reg)
	m := BoardMetrics{
		sequenceGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_sequence", namespace),
			Help: "The current replay protection sequence",
		}),
		// per mutation kind
		acceptedCount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_accepted_mutation_count", namespace),
			Help: "The total number of accepted signed mutations",
		}, []string{"kind"}),
		rejectedCount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_rejected_mutation_count", namespace),
			Help: "The total number of mutations rejected as unauthorized",
		}, []string{"kind"}),
		failedCount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_failed_mutation_count", namespace),
			Help: "The total number of mutations that failed with a storage error",
		}, []string{"kind"}),
		// tick event publishing
		publishedTicksCount: factory.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_published_tick_count", namespace),
			Help: "The total number of published tick events",
		}),
		publishFailuresCount: factory.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_publish_failure_count", namespace),
			Help: "The total number of tick events that could not be published",
		}),
	}
	return &m
}

func (metrics *BoardMetrics) SetSequence(sequence uint64) {
	metrics.sequenceGauge.Set(float64(sequence))
}

func (metrics *BoardMetrics) IncAccepted(kind string) {
	metrics.acceptedCount.WithLabelValues(kind).Inc()
}

func (metrics *BoardMetrics) IncRejected(kind string) {
	metrics.rejectedCount.WithLabelValues(kind).Inc()
}

func (metrics *BoardMetrics) IncFailed(kind string) {
	metrics.failedCount.WithLabelValues(kind).Inc()
}

func (metrics *BoardMetrics) IncPublishedTicks() {
	metrics.publishedTicksCount.Inc()
}

func (metrics *BoardMetrics) IncPublishFailures() {
	metrics.publishFailuresCount.Inc()
}
