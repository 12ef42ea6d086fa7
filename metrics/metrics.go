// Package metrics registers the engine's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	OpsAdmitted *prometheus.CounterVec
	OpsDropped  *prometheus.CounterVec
	Indications *prometheus.CounterVec
	Trades      prometheus.Counter
	TradedVol   prometheus.Counter
	Errors      *prometheus.CounterVec

	Books      prometheus.Gauge
	LiveOrders prometheus.Gauge
	ArenaCap   prometheus.Gauge
	Reclaimed  prometheus.Counter
	ArenaGrown prometheus.Counter

	JournalAppends prometheus.Counter
	OutboxDepth    prometheus.Gauge
	SnapshotSeq    prometheus.Gauge
}

// New builds and registers every collector on reg. Pass
// prometheus.DefaultRegisterer in main, a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		OpsAdmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matchd",
			Name:      "operations_admitted_total",
			Help:      "Operations that passed the gateway sequence gate, by message type.",
		}, []string{"msg"}),
		OpsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matchd",
			Name:      "operations_dropped_total",
			Help:      "Operations dropped by the gateway sequence gate, by verdict.",
		}, []string{"reason"}),
		Indications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matchd",
			Name:      "indications_total",
			Help:      "Indications emitted, by message type.",
		}, []string{"msg"}),
		Trades: f.NewCounter(prometheus.CounterOpts{
			Namespace: "matchd",
			Name:      "trades_total",
			Help:      "Matches executed.",
		}),
		TradedVol: f.NewCounter(prometheus.CounterOpts{
			Namespace: "matchd",
			Name:      "traded_volume_total",
			Help:      "Total volume crossed.",
		}),
		Errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matchd",
			Name:      "operation_errors_total",
			Help:      "Error indications emitted, by code.",
		}, []string{"code"}),
		Books: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "matchd",
			Name:      "books",
			Help:      "Books registered.",
		}),
		LiveOrders: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "matchd",
			Name:      "live_orders",
			Help:      "Orders currently resting across all books.",
		}),
		ArenaCap: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "matchd",
			Name:      "arena_capacity_slots",
			Help:      "Order arena capacity in slots.",
		}),
		Reclaimed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "matchd",
			Name:      "arena_slots_reclaimed_total",
			Help:      "Retired slots returned to the free list by idle reclamation.",
		}),
		ArenaGrown: f.NewCounter(prometheus.CounterOpts{
			Namespace: "matchd",
			Name:      "arena_growth_total",
			Help:      "Times the arena doubled because allocation outran reclamation.",
		}),
		JournalAppends: f.NewCounter(prometheus.CounterOpts{
			Namespace: "matchd",
			Name:      "journal_appends_total",
			Help:      "Operation records appended to the journal.",
		}),
		OutboxDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "matchd",
			Name:      "outbox_last_seq",
			Help:      "Highest sequence appended to the indication outbox.",
		}),
		SnapshotSeq: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "matchd",
			Name:      "snapshot_seq",
			Help:      "Engine sequence covered by the latest snapshot.",
		}),
	}
}
