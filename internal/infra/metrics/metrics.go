// Package metrics exposes prometheus instrumentation for the playback
// core and the control surface.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StateTransitions counts canonical state transitions by edge.
	StateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radiod_state_transitions_total",
		Help: "Playback state transitions by source and target state",
	}, []string{"from", "to"})

	// CommandsTotal counts commands received on the control surface.
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radiod_commands_total",
		Help: "Commands handled by the playback machine",
	}, []string{"command"})

	// FocusChanges counts audio focus level changes.
	FocusChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radiod_focus_changes_total",
		Help: "Audio focus level changes by resulting level",
	}, []string{"level"})

	// PrepareDuration tracks the time the engine spends preparing a
	// stream until it is ready to produce audio.
	PrepareDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "radiod_prepare_duration_seconds",
		Help:    "Stream prepare latency until the engine is ready",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13, 20, 30},
	}, []string{"ok"})

	// BackendErrors counts engine errors surfaced to the machine.
	BackendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radiod_backend_errors_total",
		Help: "Engine errors forcing a full stop",
	})

	// EventSubscribers tracks the number of active event stream
	// subscribers.
	EventSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "radiod_event_subscribers",
		Help: "Active status event subscribers",
	})
)

// RecordTransition records a state transition edge.
func RecordTransition(from, to string) {
	StateTransitions.WithLabelValues(from, to).Inc()
}

// RecordCommand records a handled command.
func RecordCommand(command string) {
	CommandsTotal.WithLabelValues(command).Inc()
}

// RecordFocus records a focus level change.
func RecordFocus(level string) {
	FocusChanges.WithLabelValues(level).Inc()
}

// ObservePrepare records a prepare completion.
func ObservePrepare(ok bool, d time.Duration) {
	PrepareDuration.WithLabelValues(strconv.FormatBool(ok)).Observe(d.Seconds())
}
