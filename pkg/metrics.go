package cache

// metrics.go defines a thin Prometheus abstraction: a metricsSink interface
// with a no-op and a real implementation, chosen by whether the caller
// supplied a registry via WithMetrics. There is no sharding in this engine,
// so every collector is a single unlabeled set rather than labeled per-shard.
//
// ┌───────────────────────────┐
// │ Metric                │ Type │
// ├────────────────────────┼──────┤
// │ slabcache_hits_total   │ Ctr  │
// │ slabcache_misses_total │ Ctr  │
// │ slabcache_drains_total │ Ctr  │
// │ slabcache_evicts_total │ Ctr  │
// │ slabcache_items        │ Gge  │
// └───────────────────────────┘

import "github.com/prometheus/client_golang/prometheus"

type metricsSink interface {
	incHit()
	incMiss()
	incDrain()
	incEvict()
	setItems(n float64)
}

type noopMetrics struct{}

func (noopMetrics) incHit()          {}
func (noopMetrics) incMiss()         {}
func (noopMetrics) incDrain()        {}
func (noopMetrics) incEvict()        {}
func (noopMetrics) setItems(float64) {}

type promMetrics struct {
	hits   prometheus.Counter
	misses prometheus.Counter
	drains prometheus.Counter
	evicts prometheus.Counter
	items  prometheus.Gauge
}

func newPromMetrics(reg *prometheus.Registry) *promMetrics {
	pm := &promMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slabcache", Name: "hits_total", Help: "Number of item index hits.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slabcache", Name: "misses_total", Help: "Number of item index misses.",
		}),
		drains: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slabcache", Name: "drains_total", Help: "Number of full memory slabs written through to disk.",
		}),
		evicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slabcache", Name: "evicts_total", Help: "Number of disk slabs reclaimed under LRU pressure.",
		}),
		items: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "slabcache", Name: "items", Help: "Live items currently indexed.",
		}),
	}
	reg.MustRegister(pm.hits, pm.misses, pm.drains, pm.evicts, pm.items)
	return pm
}

func (m *promMetrics) incHit()           { m.hits.Inc() }
func (m *promMetrics) incMiss()          { m.misses.Inc() }
func (m *promMetrics) incDrain()         { m.drains.Inc() }
func (m *promMetrics) incEvict()         { m.evicts.Inc() }
func (m *promMetrics) setItems(n float64) { m.items.Set(n) }

func newMetricsSink(reg *prometheus.Registry) metricsSink {
	if reg == nil {
		return noopMetrics{}
	}
	return newPromMetrics(reg)
}
