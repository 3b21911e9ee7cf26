package database

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports pool statistics. It reports nothing while the pool is
// not started.
type Collector struct {
	pool *Pool

	totalConns    *prometheus.Desc
	idleConns     *prometheus.Desc
	acquiredConns *prometheus.Desc
	acquireCount  *prometheus.Desc
	retiredConns  *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector for p. Register it with a prometheus
// registry.
func NewCollector(p *Pool) *Collector {
	return &Collector{
		pool: p,
		totalConns: prometheus.NewDesc("ferry_db_pool_connections",
			"Number of open connections in the pool", nil, nil),
		idleConns: prometheus.NewDesc("ferry_db_pool_idle_connections",
			"Number of idle connections in the pool", nil, nil),
		acquiredConns: prometheus.NewDesc("ferry_db_pool_acquired_connections",
			"Number of connections currently in use", nil, nil),
		acquireCount: prometheus.NewDesc("ferry_db_pool_acquires_total",
			"Total number of successful connection acquisitions", nil, nil),
		retiredConns: prometheus.NewDesc("ferry_db_pool_retired_connections_total",
			"Total number of connections closed after reaching the query limit", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalConns
	ch <- c.idleConns
	ch <- c.acquiredConns
	ch <- c.acquireCount
	ch <- c.retiredConns
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.retiredConns, prometheus.CounterValue, float64(c.pool.Retired()))

	stat := c.pool.Stat()
	if stat == nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.totalConns, prometheus.GaugeValue, float64(stat.TotalConns()))
	ch <- prometheus.MustNewConstMetric(c.idleConns, prometheus.GaugeValue, float64(stat.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.acquiredConns, prometheus.GaugeValue, float64(stat.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(c.acquireCount, prometheus.CounterValue, float64(stat.AcquireCount()))
}
