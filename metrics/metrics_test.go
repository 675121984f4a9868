package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestBoardMetrics(t *testing.T) {
	m := NewBoardMetrics("test", prometheus.NewRegistry())

	m.SetSequence(42)
	m.IncAccepted(KindMessage)
	m.IncAccepted(KindMessage)
	m.IncRejected(KindTick)
	m.IncFailed(KindActive)
	m.IncPublishedTicks()
	m.IncPublishFailures()

	assert.Equal(t, float64(42), testutil.ToFloat64(m.sequenceGauge))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.acceptedCount.WithLabelValues(KindMessage)))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.acceptedCount.WithLabelValues(KindTick)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.rejectedCount.WithLabelValues(KindTick)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.failedCount.WithLabelValues(KindActive)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.publishedTicksCount))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.publishFailuresCount))
}

func TestNewBoardMetrics_separateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewBoardMetrics("test", prometheus.NewRegistry())
		NewBoardMetrics("test", prometheus.NewRegistry())
	})
}
