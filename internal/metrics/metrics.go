// Package metrics defines the Prometheus collectors exported by the server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Balance sources reported with every balance response.
const (
	SourceCache  = "cache"
	SourceServer = "server"
	SourceLocal  = "local"
)

// Metrics holds the server's collectors.
type Metrics struct {
	RPCRequests      *prometheus.CounterVec
	RPCDuration      *prometheus.HistogramVec
	BalanceSource    *prometheus.CounterVec
	BalanceMismatch  prometheus.Counter
	EventPublishFail *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. Tests pass a fresh
// prometheus.NewRegistry so runs do not collide on the global registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RPCRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "splitledger",
			Name:      "rpc_requests_total",
			Help:      "RPC requests by procedure and result code",
		}, []string{"procedure", "code"}),
		RPCDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "splitledger",
			Name:      "rpc_duration_seconds",
			Help:      "RPC latency by procedure",
			Buckets:   prometheus.DefBuckets,
		}, []string{"procedure"}),
		BalanceSource: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "splitledger",
			Name:      "balance_computations_total",
			Help:      "Balance reads by the source that answered them",
		}, []string{"source"}),
		BalanceMismatch: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "splitledger",
			Name:      "balance_mismatches_total",
			Help:      "Server-side balances that disagreed with the local engine",
		}),
		EventPublishFail: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "splitledger",
			Name:      "event_publish_failures_total",
			Help:      "Ledger events that could not be published",
		}, []string{"type"}),
	}
}
