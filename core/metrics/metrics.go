// Package metrics wraps a dedicated prometheus.Registry for the indexing
// pipeline and RPC server: histograms and counters for block parsing, an
// RPC latency histogram, and a script-hash subscriptions gauge.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry collects every metric the core emits behind one dedicated
// prometheus.Registry rather than the global default registry.
type Registry struct {
	reg *prometheus.Registry

	ParseDuration *prometheus.HistogramVec // labels: step=read|parse|index|sort
	ParseBlocks   *prometheus.CounterVec   // labels: type=indexed|duplicate|skipped
	BytesRead     prometheus.Histogram

	RPCLatency    *prometheus.HistogramVec // labels: method
	Subscriptions prometheus.Gauge
}

// New constructs and registers every metric.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		ParseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "parse_duration_seconds",
			Help: "blk*.dat parsing duration by step",
		}, []string{"step"}),
		ParseBlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parse_blocks_total",
			Help: "number of blocks parsed from blk*.dat, by outcome",
		}, []string{"type"}),
		BytesRead: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "parse_bytes_read_bytes",
			Help: "bytes read per blk*.dat file",
		}),
		RPCLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "electrum_rpc_latency_seconds",
			Help: "Electrum RPC handler latency",
		}, []string{"method"}),
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "electrum_subscriptions",
			Help: "number of active Electrum script-hash subscriptions",
		}),
	}
	reg.MustRegister(r.ParseDuration, r.ParseBlocks, r.BytesRead, r.RPCLatency, r.Subscriptions)
	return r
}

// Handler exposes the registry over HTTP for the admin mux.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
