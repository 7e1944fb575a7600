package ingester

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	received     prometheus.Counter
	rejected     *prometheus.CounterVec
	ignored      prometheus.Counter
	applied      prometheus.Counter
	stale        prometheus.Counter
	superseded   prometheus.Counter
	failed       prometheus.Counter
	edgesAdded   prometheus.Counter
	edgesRemoved prometheus.Counter
}

func newMetrics() *metrics {
	return &metrics{
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nostrdb_events_received_total",
			Help: "Events handed to ProcessEvent",
		}),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nostrdb_events_rejected_total",
				Help: "Events rejected before reaching the graph",
			},
			[]string{"reason"},
		),
		ignored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nostrdb_events_ignored_total",
			Help: "Valid events of kinds that do not touch the graph",
		}),
		applied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nostrdb_contact_lists_applied_total",
			Help: "Contact lists committed to the graph",
		}),
		stale: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nostrdb_contact_lists_stale_total",
			Help: "Contact lists not newer than the stored one",
		}),
		superseded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nostrdb_contact_lists_superseded_total",
			Help: "Queued contact lists dropped because a newer one of the same author was queued",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nostrdb_contact_lists_failed_total",
			Help: "Contact lists dropped after a storage failure",
		}),
		edgesAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nostrdb_edges_added_total",
			Help: "Follow edges inserted",
		}),
		edgesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nostrdb_edges_removed_total",
			Help: "Follow edges deleted",
		}),
	}
}

func (m *metrics) register(reg prometheus.Registerer, extra ...prometheus.Collector) error {
	collectors := []prometheus.Collector{
		m.received, m.rejected, m.ignored, m.applied, m.stale,
		m.superseded, m.failed, m.edgesAdded, m.edgesRemoved,
	}
	for _, c := range append(collectors, extra...) {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
