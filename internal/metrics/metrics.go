// Package metrics exposes Prometheus counters for the delivery core.
//
// Counters are registered on the default registry through promauto, so the
// daemon only has to mount Handler on its metrics listener.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "alarm_klaxon"

//nolint:gochecknoglobals // promauto collectors are package-level by convention.
var (
	// StaleEvents counts fire events dropped by the staleness guard.
	StaleEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stale_events_total",
		Help:      "Fire events dropped because they were too far past their scheduled time.",
	})

	// MalformedEvents counts alarm payloads that could not be decoded.
	MalformedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "malformed_events_total",
		Help:      "Alarm payloads that could not be decoded.",
	})

	// Kills counts playback sessions that stopped without user action.
	Kills = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "playback_kills_total",
		Help:      "Playback sessions stopped by timeout, call interruption or replacement.",
	}, []string{"reason"})

	// AudioOutcomes counts how audio started for each playback session.
	AudioOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audio_outcomes_total",
		Help:      "Audio start outcome per playback session.",
	}, []string{"outcome"})

	// Transitions counts delivery state transitions.
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "delivery_transitions_total",
		Help:      "Delivery state machine transitions.",
	}, []string{"from", "to"})

	// CallbackPanics counts panics recovered at timer and mailbox boundaries.
	CallbackPanics = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "callback_panics_total",
		Help:      "Panics recovered in timer callbacks and event handlers.",
	}, []string{"component"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
