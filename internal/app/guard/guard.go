// Package guard owns the scoped device resources tied to active
// playback: the wake lock that keeps the CPU from sleeping and the
// keepalive that keeps the network path to the stream warm.
package guard

import (
	"sync"

	zlog "github.com/rs/zerolog/log"
)

// Lease is a scoped resource hold. Implementations must tolerate
// repeated Acquire and Release calls.
type Lease interface {
	Acquire() error
	Release() error
}

// Guard acquires the wake and keepalive leases together on entering
// preparing and releases them together on entering stopped. Lease
// failures are logged and ignored; playback proceeds best effort.
type Guard struct {
	mu        sync.Mutex
	wake      Lease
	keepalive Lease

	wakeHeld      bool
	keepaliveHeld bool
}

// New creates a guard. Either lease may be nil when the capability is
// unavailable on the host; the held flags are tracked regardless.
func New(wake, keepalive Lease) *Guard {
	return &Guard{wake: wake, keepalive: keepalive}
}

// Acquire takes both leases. Idempotent.
func (g *Guard) Acquire() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.wakeHeld {
		if g.wake != nil {
			if err := g.wake.Acquire(); err != nil {
				zlog.Warn().Err(err).Msg("guard: wake lock unavailable")
			}
		}
		g.wakeHeld = true
	}
	if !g.keepaliveHeld {
		if g.keepalive != nil {
			if err := g.keepalive.Acquire(); err != nil {
				zlog.Warn().Err(err).Msg("guard: network keepalive unavailable")
			}
		}
		g.keepaliveHeld = true
	}
}

// Release drops both leases. Idempotent.
func (g *Guard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.wakeHeld {
		if g.wake != nil {
			if err := g.wake.Release(); err != nil {
				zlog.Warn().Err(err).Msg("guard: wake lock release failed")
			}
		}
		g.wakeHeld = false
	}
	if g.keepaliveHeld {
		if g.keepalive != nil {
			if err := g.keepalive.Release(); err != nil {
				zlog.Warn().Err(err).Msg("guard: network keepalive release failed")
			}
		}
		g.keepaliveHeld = false
	}
}

// Held reports the current lease flags.
func (g *Guard) Held() (wake, keepalive bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.wakeHeld, g.keepaliveHeld
}
