package engine

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_RecordCacheSample_AccumulatesRatio(t *testing.T) {
	// GIVEN a fresh Metrics
	m := NewMetrics()

	// WHEN two prefill admissions report partial cache hits
	m.RecordCacheSample(4, 8)
	m.RecordCacheSample(0, 4)

	// THEN the cumulative hit ratio is cached/total across both samples
	assert.InDelta(t, 4.0/12.0, testutil.ToFloat64(m.KVCacheHitRatio), 1e-9)
}

func TestMetrics_RecordPreemption_IncrementsCounter(t *testing.T) {
	m := NewMetrics()

	m.RecordPreemption()
	m.RecordPreemption()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.PreemptionsTotal))
}

func TestNewMetrics_UsesOwnRegistry(t *testing.T) {
	// GIVEN two independently created Metrics (as when tests build multiple
	// Engines in the same process)
	a := NewMetrics()
	b := NewMetrics()

	// THEN each owns a distinct registry, so registering both never panics
	// on a duplicate collector name
	assert.NotSame(t, a.Registry, b.Registry)
}
