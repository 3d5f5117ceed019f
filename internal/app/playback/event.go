package playback

import "github.com/returnzero/radiod/internal/domain/station"

// EventType represents an outbound status notification type.
type EventType int

const (
	EventStatusPlaying EventType = iota // canonical state settled into playing
	EventStatusPaused                   // canonical state settled into paused or stopped
	EventError                          // user-visible transient playback error
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventStatusPlaying:
		return "status_playing"
	case EventStatusPaused:
		return "status_paused"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is broadcast to the presentation layer whenever the canonical
// state settles.
type Event struct {
	Type    EventType
	State   State
	Station station.Station // bound stream target (zero if never bound)
	Message string          // diagnostic text, set for EventError
}

// Notifier is the external notification surface the machine drives.
// Broadcast must not block the calling trigger; the foreground calls
// toggle the foreground-presentation lease synchronously.
type Notifier interface {
	Broadcast(Event)
	StartForeground(text string)
	UpdateForeground(text string)
	StopForeground()
}
