package backend

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEngine struct {
	mu   sync.Mutex
	gate chan error // non-nil: Prepare blocks

	prepareErr error
	runtimeErr error
	source     string
	prepared   bool
	playing    bool
	closed     bool
	resets     int
}

func (e *stubEngine) SetSource(uri string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.source = uri
	return nil
}

func (e *stubEngine) Prepare(ctx context.Context) error {
	e.mu.Lock()
	gate := e.gate
	prepErr := e.prepareErr
	e.mu.Unlock()

	if gate != nil {
		select {
		case err := <-gate:
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if prepErr != nil {
		return prepErr
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.prepared = true
	return nil
}

func (e *stubEngine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = true
	return nil
}

func (e *stubEngine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = false
	return nil
}

func (e *stubEngine) SetVolume(float64) error { return nil }

func (e *stubEngine) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

func (e *stubEngine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runtimeErr
}

func (e *stubEngine) setRuntimeErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runtimeErr = err
}

func (e *stubEngine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resets++
	e.source = ""
	e.prepared = false
	e.playing = false
	return nil
}

func (e *stubEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// sinkCall records one dispatched event.
type sinkCall struct {
	gen uint64
	err error
}

type stubSink struct {
	prepared chan sinkCall
	failed   chan sinkCall
}

func newStubSink() *stubSink {
	return &stubSink{
		prepared: make(chan sinkCall, 4),
		failed:   make(chan sinkCall, 4),
	}
}

func (s *stubSink) BackendPrepared(gen uint64) {
	s.prepared <- sinkCall{gen: gen}
}

func (s *stubSink) BackendError(gen uint64, err error) {
	s.failed <- sinkCall{gen: gen, err: err}
}

func waitCall(t *testing.T, ch chan sinkCall) sinkCall {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event dispatch")
		return sinkCall{}
	}
}

func assertNoCall(t *testing.T, ch chan sinkCall) {
	t.Helper()
	select {
	case c := <-ch:
		t.Fatalf("unexpected event dispatch: %+v", c)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAdapter_PrepareRequiresSink(t *testing.T) {
	a := NewAdapter(func() (Engine, error) { return &stubEngine{}, nil }, 0)

	_, err := a.Prepare("http://radio.example.net/a.mp3")
	assert.ErrorIs(t, err, ErrNoSink)
}

func TestAdapter_PrepareDispatchesWithGeneration(t *testing.T) {
	eng := &stubEngine{}
	sink := newStubSink()
	a := NewAdapter(func() (Engine, error) { return eng, nil }, 0)
	a.SetEvents(sink)

	gen, err := a.Prepare("http://radio.example.net/a.mp3")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)

	got := waitCall(t, sink.prepared)
	assert.Equal(t, gen, got.gen)
	assert.True(t, a.Prepared())

	require.NoError(t, a.Start())
	assert.True(t, a.Playing())
}

func TestAdapter_EngineCreatedOnceAndReset(t *testing.T) {
	created := 0
	engines := []*stubEngine{}
	factory := func() (Engine, error) {
		created++
		e := &stubEngine{}
		engines = append(engines, e)
		return e, nil
	}
	sink := newStubSink()
	a := NewAdapter(factory, 0)
	a.SetEvents(sink)

	_, err := a.Prepare("http://radio.example.net/a.mp3")
	require.NoError(t, err)
	waitCall(t, sink.prepared)

	// Second prepare reuses the instance via reset.
	gen, err := a.Prepare("http://radio.example.net/b.mp3")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), gen)
	waitCall(t, sink.prepared)

	assert.Equal(t, 1, created)
	assert.Equal(t, 1, engines[0].resets)

	// After release the instance is gone and recreated on demand.
	a.Release()
	assert.True(t, engines[0].closed)
	assert.False(t, a.Exists())

	_, err = a.Prepare("http://radio.example.net/c.mp3")
	require.NoError(t, err)
	waitCall(t, sink.prepared)
	assert.Equal(t, 2, created)
}

func TestAdapter_StartLifecycleGuards(t *testing.T) {
	eng := &stubEngine{gate: make(chan error, 1)}
	sink := newStubSink()
	a := NewAdapter(func() (Engine, error) { return eng, nil }, 0)
	a.SetEvents(sink)

	assert.ErrorIs(t, a.Start(), ErrReleased)

	_, err := a.Prepare("http://radio.example.net/a.mp3")
	require.NoError(t, err)

	// Prepare still in flight: not startable yet.
	assert.ErrorIs(t, a.Start(), ErrNotPrepared)
	assert.ErrorIs(t, a.Pause(), ErrNotPrepared)
	assert.False(t, a.Playing())

	eng.gate <- nil
	waitCall(t, sink.prepared)
	require.NoError(t, a.Start())

	a.Release()
	assert.ErrorIs(t, a.Start(), ErrReleased)
	assert.ErrorIs(t, a.SetVolume(1.0), ErrReleased)
}

func TestAdapter_ReleaseDropsInFlightPrepare(t *testing.T) {
	eng := &stubEngine{gate: make(chan error, 1)}
	sink := newStubSink()
	a := NewAdapter(func() (Engine, error) { return eng, nil }, 0)
	a.SetEvents(sink)

	_, err := a.Prepare("http://radio.example.net/a.mp3")
	require.NoError(t, err)

	a.Release()
	eng.gate <- nil

	assertNoCall(t, sink.prepared)
	assertNoCall(t, sink.failed)
	assert.False(t, a.Prepared())
}

func TestAdapter_NewPrepareInvalidatesOldGeneration(t *testing.T) {
	eng := &stubEngine{gate: make(chan error, 2)}
	sink := newStubSink()
	a := NewAdapter(func() (Engine, error) { return eng, nil }, 0)
	a.SetEvents(sink)

	gen1, err := a.Prepare("http://radio.example.net/a.mp3")
	require.NoError(t, err)
	gen2, err := a.Prepare("http://radio.example.net/b.mp3")
	require.NoError(t, err)
	require.NotEqual(t, gen1, gen2)

	// Both in-flight prepares complete; only the newest generation may
	// be dispatched.
	eng.gate <- nil
	eng.gate <- nil

	got := waitCall(t, sink.prepared)
	assert.Equal(t, gen2, got.gen)
	assertNoCall(t, sink.prepared)
}

func TestAdapter_PrepareErrorDispatched(t *testing.T) {
	eng := &stubEngine{prepareErr: errors.New("stream unreachable")}
	sink := newStubSink()
	a := NewAdapter(func() (Engine, error) { return eng, nil }, 0)
	a.SetEvents(sink)

	gen, err := a.Prepare("http://radio.example.net/a.mp3")
	require.NoError(t, err)

	got := waitCall(t, sink.failed)
	assert.Equal(t, gen, got.gen)
	assert.ErrorContains(t, got.err, "stream unreachable")
	assert.False(t, a.Prepared())
}

func TestAdapter_PrepareTimeout(t *testing.T) {
	eng := &stubEngine{gate: make(chan error)} // never fed: blocks until ctx
	sink := newStubSink()
	a := NewAdapter(func() (Engine, error) { return eng, nil }, 30*time.Millisecond)
	a.SetEvents(sink)

	gen, err := a.Prepare("http://radio.example.net/a.mp3")
	require.NoError(t, err)

	got := waitCall(t, sink.failed)
	assert.Equal(t, gen, got.gen)
	assert.ErrorIs(t, got.err, context.DeadlineExceeded)
}

func TestAdapter_RuntimeFailureDispatched(t *testing.T) {
	eng := &stubEngine{}
	sink := newStubSink()
	a := NewAdapter(func() (Engine, error) { return eng, nil }, 0)
	a.watchEvery = 10 * time.Millisecond
	a.SetEvents(sink)

	gen, err := a.Prepare("http://radio.example.net/a.mp3")
	require.NoError(t, err)
	waitCall(t, sink.prepared)
	require.NoError(t, a.Start())

	// The stream dies long after the prepare completed.
	eng.setRuntimeErr(errors.New("stream dropped"))

	got := waitCall(t, sink.failed)
	assert.Equal(t, gen, got.gen)
	assert.ErrorContains(t, got.err, "stream dropped")
}

func TestAdapter_ReleaseStopsRuntimeWatch(t *testing.T) {
	eng := &stubEngine{}
	sink := newStubSink()
	a := NewAdapter(func() (Engine, error) { return eng, nil }, 0)
	a.watchEvery = 10 * time.Millisecond
	a.SetEvents(sink)

	_, err := a.Prepare("http://radio.example.net/a.mp3")
	require.NoError(t, err)
	waitCall(t, sink.prepared)

	a.Release()
	eng.setRuntimeErr(errors.New("stream dropped"))

	assertNoCall(t, sink.failed)
}

func TestAdapter_FactoryErrorSurfacesSynchronously(t *testing.T) {
	a := NewAdapter(func() (Engine, error) {
		return nil, errors.New("no audio device")
	}, 0)
	a.SetEvents(newStubSink())

	_, err := a.Prepare("http://radio.example.net/a.mp3")
	assert.ErrorContains(t, err, "no audio device")
	assert.False(t, a.Exists())
}
