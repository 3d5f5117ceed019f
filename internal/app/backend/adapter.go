// Package backend owns the opaque decode/render engine instance and
// enforces its lifecycle contract: the engine is created at most once
// per cold start, reset rather than recreated for a new source, never
// started before a prepare has completed, and unusable after release.
package backend

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/returnzero/radiod/internal/infra/metrics"
)

// Errors
var (
	ErrReleased    = errors.New("backend: engine released")
	ErrNotPrepared = errors.New("backend: engine not prepared")
	ErrNoSink      = errors.New("backend: no event sink registered")
)

// Engine is the opaque decode/render engine. Prepare blocks until the
// stream is ready to produce audio or the context is done; the adapter
// runs it asynchronously. Err reports a terminal runtime fault of a
// prepared engine (a dropped stream, a dead render chain) and returns
// nil while healthy; the adapter polls it.
type Engine interface {
	SetSource(uri string) error
	Prepare(ctx context.Context) error
	Start() error
	Pause() error
	SetVolume(gain float64) error
	Playing() bool
	Err() error
	Reset() error
	Close() error
}

// Factory creates a fresh engine instance for a cold start.
type Factory func() (Engine, error)

// Events receives completion callbacks for asynchronous prepares. The
// generation identifies the Prepare call a callback belongs to; the
// adapter never dispatches callbacks for a stale generation.
type Events interface {
	BackendPrepared(gen uint64)
	BackendError(gen uint64, err error)
}

// watchInterval is how often a prepared engine is polled for a
// terminal runtime fault.
const watchInterval = 500 * time.Millisecond

// Adapter serializes access to the engine and tracks its lifecycle.
type Adapter struct {
	mu         sync.Mutex
	factory    Factory
	timeout    time.Duration
	watchEvery time.Duration
	events     Events

	engine    Engine
	gen       uint64
	prepared  bool
	preparing bool
}

// NewAdapter creates an adapter around the given engine factory. A
// prepareTimeout of zero disables the prepare deadline.
func NewAdapter(factory Factory, prepareTimeout time.Duration) *Adapter {
	return &Adapter{factory: factory, timeout: prepareTimeout, watchEvery: watchInterval}
}

// SetEvents registers the sink for prepare completions. Must be called
// before the first Prepare.
func (a *Adapter) SetEvents(ev Events) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = ev
}

// Prepare binds the source and starts an asynchronous prepare,
// returning its generation. The engine is created on first use and
// reset on subsequent prepares; a released engine is recreated.
func (a *Adapter) Prepare(uri string) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.events == nil {
		return 0, ErrNoSink
	}
	if err := a.ensureEngineLocked(); err != nil {
		return 0, err
	}
	if err := a.engine.SetSource(uri); err != nil {
		return 0, errors.Wrap(err, "backend: set source")
	}

	a.gen++
	a.prepared = false
	a.preparing = true

	gen := a.gen
	eng := a.engine
	go a.runPrepare(eng, gen)

	return gen, nil
}

func (a *Adapter) runPrepare(eng Engine, gen uint64) {
	ctx := context.Background()
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	err := eng.Prepare(ctx)

	a.mu.Lock()
	if gen != a.gen || a.engine != eng {
		a.mu.Unlock()
		zlog.Debug().Uint64("gen", gen).Msg("backend: discarding stale prepare completion")
		return
	}
	a.preparing = false
	a.prepared = err == nil
	ev := a.events
	a.mu.Unlock()

	metrics.ObservePrepare(err == nil, time.Since(start))

	if err != nil {
		ev.BackendError(gen, errors.Wrap(err, "backend: prepare"))
		return
	}
	ev.BackendPrepared(gen)

	// A prepared engine can still die at any point: the stream drops,
	// the render chain fails. Watch it for the rest of its generation.
	go a.watch(eng, gen)
}

func (a *Adapter) watch(eng Engine, gen uint64) {
	ticker := time.NewTicker(a.watchEvery)
	defer ticker.Stop()

	for range ticker.C {
		a.mu.Lock()
		if gen != a.gen || a.engine != eng {
			a.mu.Unlock()
			return
		}
		err := eng.Err()
		ev := a.events
		a.mu.Unlock()

		if err != nil {
			ev.BackendError(gen, errors.Wrap(err, "backend: engine failed"))
			return
		}
	}
}

// Start starts audible output. Callers must have observed a prepared
// event for the current generation first.
func (a *Adapter) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.engine == nil {
		return ErrReleased
	}
	if !a.prepared {
		return ErrNotPrepared
	}
	return a.engine.Start()
}

// Pause pauses audible output. No-op error if nothing was prepared.
func (a *Adapter) Pause() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.engine == nil {
		return ErrReleased
	}
	if !a.prepared {
		return ErrNotPrepared
	}
	return a.engine.Pause()
}

// SetVolume sets the output gain. Safe to repeat in any prepared state.
func (a *Adapter) SetVolume(gain float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.engine == nil {
		return ErrReleased
	}
	return a.engine.SetVolume(gain)
}

// Playing reports whether the engine is currently producing sound.
func (a *Adapter) Playing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.engine != nil && a.prepared && a.engine.Playing()
}

// Prepared reports whether the current engine has completed a prepare.
func (a *Adapter) Prepared() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.engine != nil && a.prepared
}

// Exists reports whether an engine instance is currently held.
func (a *Adapter) Exists() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.engine != nil
}

// Release resets and discards the engine instance. Any in-flight
// prepare becomes stale and its completion is dropped. The next
// Prepare creates a fresh instance.
func (a *Adapter) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.gen++ // invalidate in-flight prepares
	a.prepared = false
	a.preparing = false

	if a.engine == nil {
		return
	}
	if err := a.engine.Reset(); err != nil {
		zlog.Warn().Err(err).Msg("backend: engine reset failed during release")
	}
	if err := a.engine.Close(); err != nil {
		zlog.Warn().Err(err).Msg("backend: engine close failed during release")
	}
	a.engine = nil
}

func (a *Adapter) ensureEngineLocked() error {
	if a.engine != nil {
		// Existing instance is reused for a new source.
		if err := a.engine.Reset(); err != nil {
			return errors.Wrap(err, "backend: reset engine")
		}
		a.prepared = false
		return nil
	}
	eng, err := a.factory()
	if err != nil {
		return errors.Wrap(err, "backend: create engine")
	}
	a.engine = eng
	return nil
}
