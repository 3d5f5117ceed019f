package engine

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
)

// Null is a silent engine for headless hosts: it honors the full
// lifecycle contract without touching an audio device.
type Null struct {
	mu       sync.Mutex
	uri      string
	prepared bool
	playing  bool
	gain     float64
	released bool
}

// NewNull creates a null engine.
func NewNull() *Null {
	return &Null{gain: 1.0}
}

// SetSource binds the stream URI.
func (e *Null) SetSource(uri string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return errors.New("engine: released")
	}
	if uri == "" {
		return errors.New("engine: empty source")
	}
	e.uri = uri
	e.prepared = false
	return nil
}

// Prepare completes immediately.
func (e *Null) Prepare(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return errors.New("engine: released")
	}
	if e.uri == "" {
		return errors.New("engine: no source bound")
	}
	e.prepared = true
	return nil
}

// Start begins silent "playback".
func (e *Null) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.prepared {
		return errors.New("engine: not prepared")
	}
	e.playing = true
	return nil
}

// Pause suspends it.
func (e *Null) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.prepared {
		return errors.New("engine: not prepared")
	}
	e.playing = false
	return nil
}

// SetVolume records the gain.
func (e *Null) SetVolume(gain float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return errors.New("engine: released")
	}
	e.gain = gain
	return nil
}

// Playing reports the playing flag.
func (e *Null) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// Err never reports a fault; the null engine cannot fail at runtime.
func (e *Null) Err() error {
	return nil
}

// Reset returns the instance to its unbound state.
func (e *Null) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.uri = ""
	e.prepared = false
	e.playing = false
	e.gain = 1.0
	return nil
}

// Close makes the instance unusable.
func (e *Null) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prepared = false
	e.playing = false
	e.released = true
	return nil
}
