// Package metrics exposes prometheus counters for the engine's hot paths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IntentsAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "garou_intents_accepted_total",
		Help: "Intents that passed validation and committed.",
	}, []string{"verb"})

	IntentsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "garou_intents_rejected_total",
		Help: "Intents rejected at precondition check.",
	}, []string{"verb", "reason"})

	MutationsCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "garou_mutations_committed_total",
		Help: "Atomic mutations committed to the store.",
	})

	WalAppends = promauto.NewCounter(prometheus.CounterOpts{
		Name: "garou_wal_appends_total",
		Help: "WAL records appended.",
	})

	StoreRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "garou_store_retries_total",
		Help: "Store transaction retries after transient failures.",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "garou_events_dropped_total",
		Help: "Bus events dropped because a subscriber queue was full.",
	})

	GamesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "garou_games_active",
		Help: "Games currently held in the registry.",
	})

	TimersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "garou_timers_active",
		Help: "Armed sub-phase timers.",
	})
)
