package engine

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors for scheduler/block-manager
// observability. Each Engine owns its own registry rather than
// registering into the global default one, so multiple engines (as in
// tests) never collide on collector names.
type Metrics struct {
	Registry *prometheus.Registry

	KVBlocksUsed     prometheus.Gauge
	KVCacheHitRatio  prometheus.Gauge
	PreemptionsTotal prometheus.Counter
	BatchSize        prometheus.Histogram
	PrefillTicks     prometheus.Counter
	DecodeTicks      prometheus.Counter

	cumulativeCached int64
	cumulativeTokens int64
}

// NewMetrics creates and registers the pool-occupancy, cache-hit, and
// batching collectors an Engine reports.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		KVBlocksUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pagedinfer_kv_blocks_used",
			Help: "Number of KV cache blocks currently in use.",
		}),
		KVCacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pagedinfer_kv_cache_hit_ratio",
			Help: "Cumulative fraction of prefill tokens served from cached blocks.",
		}),
		PreemptionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pagedinfer_preemptions_total",
			Help: "Total number of sequence preemptions.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pagedinfer_batch_size",
			Help:    "Distribution of per-tick batch sizes.",
			Buckets: prometheus.LinearBuckets(0, 16, 10),
		}),
		PrefillTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pagedinfer_prefill_ticks_total",
			Help: "Total number of ticks that produced a prefill batch.",
		}),
		DecodeTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pagedinfer_decode_ticks_total",
			Help: "Total number of ticks that produced a decode batch.",
		}),
	}
	m.Registry.MustRegister(m.KVBlocksUsed, m.KVCacheHitRatio, m.PreemptionsTotal, m.BatchSize, m.PrefillTicks, m.DecodeTicks)
	return m
}

// observeTick updates the collectors after a Schedule() call: pool
// occupancy and the batch's phase and size. Cache-hit ratio and preemption
// counts are updated directly by the Scheduler as they happen (see
// RecordCacheSample/RecordPreemption).
func (m *Metrics) observeTick(sch *Scheduler, isPrefill bool, batchSize int) {
	m.KVBlocksUsed.Set(float64(sch.blockManager.UsedCount()))
	m.BatchSize.Observe(float64(batchSize))
	if isPrefill {
		m.PrefillTicks.Inc()
	} else {
		m.DecodeTicks.Inc()
	}
}

// RecordPreemption increments the preemption counter. Called by Scheduler.
func (m *Metrics) RecordPreemption() {
	m.PreemptionsTotal.Inc()
}

// RecordCacheSample folds a prefill admission's cached/total token counts
// into the cumulative hit-ratio gauge.
func (m *Metrics) RecordCacheSample(cachedTokens, totalTokens int64) {
	m.cumulativeCached += cachedTokens
	m.cumulativeTokens += totalTokens
	if m.cumulativeTokens > 0 {
		m.KVCacheHitRatio.Set(float64(m.cumulativeCached) / float64(m.cumulativeTokens))
	}
}
