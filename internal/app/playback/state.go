// Package playback holds the canonical playback state machine for the
// radio stream and the resource-arbitration policy around it.
package playback

// State represents the canonical playback state. It transitions only
// through the Machine's public entry points.
type State int

const (
	StateStopped   State = iota // engine stopped and not prepared to play
	StatePreparing              // engine is preparing the stream
	StatePlaying                // playback active; the engine may actually be paused here while focus is lost, so that regaining focus knows to resume
	StatePaused                 // playback paused (engine ready)
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePreparing:
		return "preparing"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// PauseReason records why playback was paused. Only meaningful while
// the state is StatePaused.
type PauseReason int

const (
	PauseUserRequest PauseReason = iota // paused by user request
	PauseFocusLoss                      // paused because audio focus was lost
)

// String returns the string representation of the pause reason.
func (r PauseReason) String() string {
	switch r {
	case PauseUserRequest:
		return "user_request"
	case PauseFocusLoss:
		return "focus_loss"
	default:
		return "unknown"
	}
}

// FocusLevel represents the audio focus currently held. It is an axis
// independent from State; both feed the reconciliation in
// configureAndStart.
type FocusLevel int

const (
	FocusNoneNoDuck  FocusLevel = iota // no focus, not allowed to duck
	FocusNoneCanDuck                   // no focus, may play at a low volume ("ducking")
	FocusFull                          // full audio focus
)

// String returns the string representation of the focus level.
func (f FocusLevel) String() string {
	switch f {
	case FocusNoneNoDuck:
		return "none_no_duck"
	case FocusNoneCanDuck:
		return "none_can_duck"
	case FocusFull:
		return "full"
	default:
		return "unknown"
	}
}
