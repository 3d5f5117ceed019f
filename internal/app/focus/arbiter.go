// Package focus arbitrates exclusive audio-output rights with the host
// audio subsystem.
package focus

import zlog "github.com/rs/zerolog/log"

// Host is the host audio subsystem capability. RequestFocus asks for
// transient-with-ducking-allowed focus; both calls report whether the
// operation took effect. The host delivers real focus changes
// asynchronously through the machine's focus entry points, never by
// mutating state itself.
type Host interface {
	RequestFocus() bool
	AbandonFocus() bool
}

// Arbiter wraps an optional Host. Without one it degrades to always
// holding full focus and never queries anything.
type Arbiter struct {
	host Host
}

// NewArbiter creates an arbiter. A nil host is valid.
func NewArbiter(host Host) *Arbiter {
	if host == nil {
		zlog.Debug().Msg("focus: no host capability, degrading to always-full focus")
	}
	return &Arbiter{host: host}
}

// RequestFocus asks the host for focus and reports whether full focus
// is now held.
func (a *Arbiter) RequestFocus() bool {
	if a.host == nil {
		return true
	}
	return a.host.RequestFocus()
}

// AbandonFocus releases focus and reports whether abandonment
// succeeded.
func (a *Arbiter) AbandonFocus() bool {
	if a.host == nil {
		return true
	}
	return a.host.AbandonFocus()
}
