package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors are registered on the default registry and exposed on /metrics.
var (
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "classnet",
		Name:      "connections_active",
		Help:      "Number of registered client connections.",
	})

	EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classnet",
		Name:      "events_emitted_total",
		Help:      "Emit requests handled, by outcome.",
	}, []string{"outcome"})

	PresenceQueries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "classnet",
		Name:      "presence_queries_total",
		Help:      "check-online queries served.",
	})
)
