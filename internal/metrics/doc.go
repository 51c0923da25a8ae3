// Package metrics defines the gateway's Prometheus instrumentation.
//
// Collectors:
//   - rpc_calls_total{chain, method, outcome}
//   - node_demotions_total{chain}
//   - cache_serves_total{dataset}
//   - http_requests_total{route, code}
package metrics
