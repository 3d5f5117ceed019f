package playback

import (
	"sync"

	zlog "github.com/rs/zerolog/log"

	"github.com/returnzero/radiod/internal/app/backend"
	"github.com/returnzero/radiod/internal/app/focus"
	"github.com/returnzero/radiod/internal/app/guard"
	"github.com/returnzero/radiod/internal/domain/station"
	"github.com/returnzero/radiod/internal/infra/metrics"
)

// Config holds machine configuration.
type Config struct {
	DuckVolume     float64         // output gain while ducked
	DefaultStation station.Station // played when a play command carries no target
}

// Status is a read-only snapshot of the machine.
type Status struct {
	State       State
	PauseReason PauseReason
	Focus       FocusLevel
	Station     station.Station
}

// Machine is the playback state machine. Every trigger, command or
// event, runs to completion under one mutex before the next is
// accepted; triggers arrive from the control surface, the engine's
// prepare goroutine and the host focus callbacks.
type Machine struct {
	mu sync.Mutex

	state       State
	pauseReason PauseReason
	focusLevel  FocusLevel
	current     station.Station

	prepareGen uint64 // generation of the in-flight prepare, 0 when none

	backend  *backend.Adapter
	arbiter  *focus.Arbiter
	guard    *guard.Guard
	notifier Notifier

	cfg Config

	done     chan struct{}
	doneOnce sync.Once
}

// New creates the machine and registers it as the backend's event
// sink. The machine starts stopped with the default station bound.
func New(cfg Config, b *backend.Adapter, a *focus.Arbiter, g *guard.Guard, n Notifier) *Machine {
	m := &Machine{
		state:      StateStopped,
		focusLevel: FocusNoneNoDuck,
		current:    cfg.DefaultStation,
		backend:    b,
		arbiter:    a,
		guard:      g,
		notifier:   n,
		cfg:        cfg,
		done:       make(chan struct{}),
	}
	b.SetEvents(m)
	return m
}

// Done is closed when a stop settles the machine into stopped,
// signaling the hosting process that it may terminate once idle. The
// machine stays usable afterwards.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

// Snapshot returns the current canonical state.
func (m *Machine) Snapshot() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		State:       m.state,
		PauseReason: m.pauseReason,
		Focus:       m.focusLevel,
		Station:     m.current,
	}
}

// TogglePlayback behaves as Play when paused or stopped, otherwise as
// Pause.
func (m *Machine) TogglePlayback(target *station.Station) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics.RecordCommand("toggle")
	if m.state == StatePaused || m.state == StateStopped {
		m.playLocked(target)
		return
	}
	m.pauseLocked()
}

// Play starts or resumes playback. A non-nil target replaces the bound
// station wholesale; nil keeps the current binding (or the configured
// default). No-op while already playing or preparing; the resulting
// canonical state is always re-broadcast.
func (m *Machine) Play(target *station.Station) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics.RecordCommand("play")
	m.playLocked(target)
}

// Pause pauses playback by user request. Effective only while playing:
// the engine stays prepared and the keepalive lease is retained so
// resuming needs no reprepare, and focus is not relinquished.
func (m *Machine) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics.RecordCommand("pause")
	m.pauseLocked()
}

// Stop stops playback and releases every resource. Effective while
// playing or paused, or in any state when force is set.
func (m *Machine) Stop(force bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics.RecordCommand("stop")
	m.stopLocked(force)
}

// UpdateStatus re-broadcasts the current canonical state without
// mutating anything.
func (m *Machine) UpdateStatus() {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics.RecordCommand("update_status")
	m.broadcastLocked()
}

// BackendPrepared handles the engine's prepared event. Valid only
// while preparing and only for the current generation; anything else
// is a late callback from a prepare that a stop already invalidated.
func (m *Machine) BackendPrepared(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StatePreparing || gen != m.prepareGen {
		zlog.Debug().Uint64("gen", gen).Stringer("state", m.state).
			Msg("playback: ignoring stale prepared event")
		return
	}
	m.prepareGen = 0

	m.setStateLocked(StatePlaying)
	m.notifier.UpdateForeground("Playing: " + m.current.Title)
	m.configureAndStartLocked()
	m.broadcastLocked()
}

// BackendError handles an engine error in any state: a user-visible
// error notification is emitted once and a forced stop releases every
// resource. The error is always considered handled; it never
// propagates as a fault to the hosting process.
func (m *Machine) BackendError(gen uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateStopped && gen != m.prepareGen {
		zlog.Debug().Uint64("gen", gen).Err(err).
			Msg("playback: ignoring stale engine error after stop")
		return
	}

	zlog.Error().Uint64("gen", gen).Err(err).Msg("playback: engine error, resetting")
	metrics.BackendErrors.Inc()

	m.notifier.Broadcast(Event{
		Type:    EventError,
		State:   m.state,
		Station: m.current,
		Message: err.Error(),
	})
	m.stopLocked(true)
}

// FocusGained handles the host granting full audio focus. While
// playing, the reconciliation restores full-volume output, covering
// the case where ducking or a focus pause had been applied.
func (m *Machine) FocusGained() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setFocusLocked(FocusFull)
	if m.state == StatePlaying {
		m.configureAndStartLocked()
	}
}

// FocusLost handles the host revoking focus. The canonical state
// deliberately stays playing even when the engine is silently paused:
// that is what lets FocusGained resume automatically without a
// separate "was playing" flag. The pause reason is not touched here.
func (m *Machine) FocusLost(canDuck bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if canDuck {
		m.setFocusLocked(FocusNoneCanDuck)
	} else {
		m.setFocusLocked(FocusNoneNoDuck)
	}
	if m.backend.Playing() {
		m.configureAndStartLocked()
	}
}

func (m *Machine) playLocked(target *station.Station) {
	m.tryAcquireFocusLocked()

	if target != nil {
		m.current = *target
	}

	switch m.state {
	case StateStopped:
		m.startColdLocked()

	case StatePaused:
		m.setStateLocked(StatePlaying)
		m.notifier.StartForeground("Playing: " + m.current.Title)
		m.configureAndStartLocked()
		m.broadcastLocked()

	default:
		// Already playing or preparing: nothing to do, but the caller
		// still gets the canonical state re-announced.
		m.broadcastLocked()
	}
}

// startColdLocked performs a cold start out of stopped: binds the
// target, kicks off the asynchronous prepare and takes the leases. The
// transition to preparing happens only once the engine accepted the
// source; a rejected source is logged and leaves the machine stopped.
func (m *Machine) startColdLocked() {
	if m.current.IsZero() {
		zlog.Warn().Msg("playback: play requested with no station bound")
		return
	}

	gen, err := m.backend.Prepare(m.current.URI)
	if err != nil {
		zlog.Error().Err(err).Str("uri", m.current.URI).
			Msg("playback: engine rejected stream source")
		return
	}
	m.prepareGen = gen

	m.setStateLocked(StatePreparing)
	m.notifier.StartForeground("Loading: " + m.current.Title)
	m.guard.Acquire()
	m.broadcastLocked()
}

func (m *Machine) pauseLocked() {
	if m.state != StatePlaying {
		return
	}

	m.setStateLocked(StatePaused)
	m.pauseReason = PauseUserRequest
	if err := m.backend.Pause(); err != nil {
		zlog.Warn().Err(err).Msg("playback: engine pause failed")
	}
	// The engine and keepalive lease are retained so that resuming
	// needs no reprepare; only the foreground presentation is dropped.
	// Focus is not relinquished either.
	m.notifier.StopForeground()
	m.broadcastLocked()
}

func (m *Machine) stopLocked(force bool) {
	if m.state != StatePlaying && m.state != StatePaused && !force {
		return
	}

	m.setStateLocked(StateStopped)
	m.prepareGen = 0
	m.broadcastLocked()

	m.relaxLocked()
	m.giveUpFocusLocked()

	m.doneOnce.Do(func() { close(m.done) })
}

// relaxLocked releases everything tied to active playback: the
// foreground presentation, the engine instance and both guard leases.
func (m *Machine) relaxLocked() {
	m.notifier.StopForeground()
	m.backend.Release()
	m.guard.Release()
}

// configureAndStartLocked reconciles the engine against the focus
// level while the canonical state is playing. Idempotent: repeating it
// under an unchanged (state, focus) pair issues at most a gain re-set.
func (m *Machine) configureAndStartLocked() {
	switch m.focusLevel {
	case FocusNoneNoDuck:
		// No focus and no ducking allowed: silence the engine but stay
		// in the playing state so regaining focus resumes playback.
		if m.backend.Playing() {
			if err := m.backend.Pause(); err != nil {
				zlog.Warn().Err(err).Msg("playback: focus pause failed")
			}
		}
		return
	case FocusNoneCanDuck:
		if err := m.backend.SetVolume(m.cfg.DuckVolume); err != nil {
			zlog.Warn().Err(err).Msg("playback: duck volume failed")
		}
	default:
		if err := m.backend.SetVolume(1.0); err != nil {
			zlog.Warn().Err(err).Msg("playback: full volume failed")
		}
	}

	if !m.backend.Playing() {
		if err := m.backend.Start(); err != nil {
			zlog.Warn().Err(err).Msg("playback: engine start failed")
		}
	}
}

func (m *Machine) tryAcquireFocusLocked() {
	if m.focusLevel != FocusFull && m.arbiter.RequestFocus() {
		m.setFocusLocked(FocusFull)
	}
}

func (m *Machine) giveUpFocusLocked() {
	if m.focusLevel == FocusFull && m.arbiter.AbandonFocus() {
		m.setFocusLocked(FocusNoneNoDuck)
	}
}

func (m *Machine) setStateLocked(to State) {
	if m.state == to {
		return
	}
	zlog.Info().Stringer("from", m.state).Stringer("to", to).
		Str("station", m.current.Title).Msg("playback: state transition")
	metrics.RecordTransition(m.state.String(), to.String())
	m.state = to
}

func (m *Machine) setFocusLocked(to FocusLevel) {
	if m.focusLevel == to {
		return
	}
	zlog.Debug().Stringer("from", m.focusLevel).Stringer("to", to).
		Msg("playback: focus change")
	metrics.RecordFocus(to.String())
	m.focusLevel = to
}

// broadcastLocked announces the canonical state: status_playing when
// it settled into playing, status_paused for paused, stopped and
// preparing.
func (m *Machine) broadcastLocked() {
	ev := Event{State: m.state, Station: m.current}
	if m.state == StatePlaying {
		ev.Type = EventStatusPlaying
	} else {
		ev.Type = EventStatusPaused
	}
	m.notifier.Broadcast(ev)
}
