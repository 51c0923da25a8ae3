package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the gateway's collectors on a dedicated registry.
type Metrics struct {
	Registry *prometheus.Registry

	RPCCalls      *prometheus.CounterVec
	NodeDemotions *prometheus.CounterVec
	CacheServes   *prometheus.CounterVec
	HTTPRequests  *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		Registry: reg,
		RPCCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rpc_calls_total",
			Help: "Chain RPC calls by chain, method and outcome.",
		}, []string{"chain", "method", "outcome"}),
		NodeDemotions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "node_demotions_total",
			Help: "Node pool head demotions by chain.",
		}, []string{"chain"}),
		CacheServes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_serves_total",
			Help: "Snapshot cache blobs served by dataset.",
		}, []string{"dataset"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
	}
	reg.MustRegister(m.RPCCalls, m.NodeDemotions, m.CacheServes, m.HTTPRequests)
	return m
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
