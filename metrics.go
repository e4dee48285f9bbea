package rastercache

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by a Cache.
type Metrics struct {
	Hits         prometheus.Counter
	Misses       prometheus.Counter
	Evictions    prometheus.Counter
	Writebacks   prometheus.Counter
	DecodeErrors prometheus.Counter
	WriteErrors  prometheus.Counter
	BytesUsed    prometheus.Gauge
	BytesMax     prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rastercache_block_hits_total",
			Help: "Block lookups served from resident blocks",
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rastercache_block_misses_total",
			Help: "Block lookups that required a decode",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rastercache_block_evictions_total",
			Help: "Blocks removed to make room for new ones",
		}),
		Writebacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rastercache_block_writebacks_total",
			Help: "Dirty blocks persisted to their store",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rastercache_decode_errors_total",
			Help: "Block decodes that failed",
		}),
		WriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rastercache_write_errors_total",
			Help: "Block writes that failed",
		}),
		BytesUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rastercache_bytes_used",
			Help: "Bytes occupied by resident blocks",
		}),
		BytesMax: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rastercache_bytes_max",
			Help: "Configured cache budget in bytes",
		}),
	}
	reg.MustRegister(m.Hits, m.Misses, m.Evictions, m.Writebacks,
		m.DecodeErrors, m.WriteErrors, m.BytesUsed, m.BytesMax)
	return m
}

// Stats is a snapshot of the activity of a Cache
type Stats struct {
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Writebacks uint64
	Blocks     int
	Dirty      int
	BytesUsed  int64
	BytesMax   int64
}

// counters are the always-on in-process counterparts of Metrics
type counters struct {
	hits, misses, evictions, writebacks atomic.Uint64
}

func (c *Cache) hit() {
	c.counters.hits.Add(1)
	if c.metrics != nil {
		c.metrics.Hits.Inc()
	}
}

func (c *Cache) miss() {
	c.counters.misses.Add(1)
	if c.metrics != nil {
		c.metrics.Misses.Inc()
	}
}

func (c *Cache) evicted() {
	c.counters.evictions.Add(1)
	if c.metrics != nil {
		c.metrics.Evictions.Inc()
	}
}

func (c *Cache) wroteBack() {
	c.counters.writebacks.Add(1)
	if c.metrics != nil {
		c.metrics.Writebacks.Inc()
	}
}

func (c *Cache) decodeFailed() {
	if c.metrics != nil {
		c.metrics.DecodeErrors.Inc()
	}
}

func (c *Cache) writeFailed() {
	if c.metrics != nil {
		c.metrics.WriteErrors.Inc()
	}
}

// REQUIRES: caller holds c.mu
func (c *Cache) gauges() {
	if c.metrics != nil {
		c.metrics.BytesUsed.Set(float64(c.used))
		c.metrics.BytesMax.Set(float64(c.max))
	}
}
