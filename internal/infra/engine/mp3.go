package engine

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	mp3 "github.com/hajimehoshi/go-mp3"
	oto "github.com/hajimehoshi/oto/v2"
	zlog "github.com/rs/zerolog/log"
)

// MP3Settings holds the mp3 engine settings from the engine config
// block.
type MP3Settings struct {
	UserAgent         string `mapstructure:"user_agent"`
	ConnectTimeoutSec int    `mapstructure:"connect_timeout_sec"`
}

const (
	defaultUserAgent      = "radiod/1.0"
	defaultConnectTimeout = 10 * time.Second
)

// The host audio device is opened once per process; the first prepared
// stream fixes the output sample rate.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoRate int
	otoErr  error
)

func otoContext(sampleRate int) (*oto.Context, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(sampleRate, 2, 2)
		if err != nil {
			otoErr = errors.Wrap(err, "engine: open audio device")
			return
		}
		<-ready
		otoCtx = ctx
		otoRate = sampleRate
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if sampleRate != otoRate {
		// The device keeps the first rate; a mismatched stream plays
		// at a shifted pitch rather than failing.
		zlog.Warn().Int("device", otoRate).Int("stream", sampleRate).
			Msg("engine: stream sample rate differs from audio device")
	}
	return otoCtx, nil
}

// MP3 streams an MP3 radio source over HTTP and renders it through the
// host audio device.
type MP3 struct {
	mu       sync.Mutex
	settings MP3Settings
	client   *http.Client

	uri      string
	body     io.ReadCloser
	player   oto.Player
	released bool
}

// NewMP3 creates an mp3 engine. Zero-value settings get defaults.
func NewMP3(settings MP3Settings) *MP3 {
	if settings.UserAgent == "" {
		settings.UserAgent = defaultUserAgent
	}
	connectTimeout := defaultConnectTimeout
	if settings.ConnectTimeoutSec > 0 {
		connectTimeout = time.Duration(settings.ConnectTimeoutSec) * time.Second
	}
	return &MP3{
		settings: settings,
		client: &http.Client{
			// No overall client timeout: the response body is a live
			// stream. Dial and header phases are bounded instead.
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: connectTimeout}).DialContext,
				ResponseHeaderTimeout: connectTimeout,
			},
		},
	}
}

// SetSource binds the stream URI. No I/O happens until Prepare.
func (e *MP3) SetSource(uri string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return errors.New("engine: released")
	}
	e.uri = uri
	return nil
}

type prepared struct {
	body io.ReadCloser
	dec  *mp3.Decoder
	err  error
}

// Prepare connects to the stream and builds the decode/render chain.
// It blocks until the stream is ready or ctx is done; an abandoned
// connection attempt is closed once it eventually completes.
func (e *MP3) Prepare(ctx context.Context) error {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return errors.New("engine: released")
	}
	uri := e.uri
	e.mu.Unlock()

	if uri == "" {
		return errors.New("engine: no source bound")
	}

	ch := make(chan prepared, 1)
	go func() {
		ch <- e.connect(uri)
	}()

	select {
	case <-ctx.Done():
		go func() {
			if p := <-ch; p.body != nil {
				_ = p.body.Close()
			}
		}()
		return errors.Wrap(ctx.Err(), "engine: prepare aborted")

	case p := <-ch:
		if p.err != nil {
			return p.err
		}
		octx, err := otoContext(p.dec.SampleRate())
		if err != nil {
			_ = p.body.Close()
			return err
		}

		e.mu.Lock()
		defer e.mu.Unlock()
		if e.released {
			_ = p.body.Close()
			return errors.New("engine: released during prepare")
		}
		e.dropStreamLocked()
		e.body = p.body
		e.player = octx.NewPlayer(p.dec)
		return nil
	}
}

func (e *MP3) connect(uri string) prepared {
	req, err := http.NewRequest(http.MethodGet, uri, nil)
	if err != nil {
		return prepared{err: errors.Wrap(err, "engine: build stream request")}
	}
	req.Header.Set("User-Agent", e.settings.UserAgent)
	req.Header.Set("Icy-MetaData", "0")

	resp, err := e.client.Do(req)
	if err != nil {
		return prepared{err: errors.Wrap(err, "engine: connect to stream")}
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return prepared{err: errors.Newf("engine: stream returned status %d", resp.StatusCode)}
	}

	dec, err := mp3.NewDecoder(resp.Body)
	if err != nil {
		_ = resp.Body.Close()
		return prepared{err: errors.Wrap(err, "engine: decode stream header")}
	}
	return prepared{body: resp.Body, dec: dec}
}

// Start begins audible output.
func (e *MP3) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.player == nil {
		return errors.New("engine: not prepared")
	}
	e.player.Play()
	return nil
}

// Pause suspends audible output; the stream connection stays open.
func (e *MP3) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.player == nil {
		return errors.New("engine: not prepared")
	}
	e.player.Pause()
	return nil
}

// SetVolume sets the output gain in [0, 1].
func (e *MP3) SetVolume(gain float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.player == nil {
		return errors.New("engine: not prepared")
	}
	e.player.SetVolume(gain)
	return nil
}

// Playing reports whether sound is currently being produced.
func (e *MP3) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.player != nil && e.player.IsPlaying()
}

// Err reports a terminal fault of the render chain. The player
// surfaces both device errors and read errors from the stream body.
func (e *MP3) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.player == nil {
		return nil
	}
	if err := e.player.Err(); err != nil {
		return errors.Wrap(err, "engine: render chain failed")
	}
	return nil
}

// Reset tears down the stream and render chain, keeping the instance
// usable for another SetSource/Prepare.
func (e *MP3) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dropStreamLocked()
	e.uri = ""
	return nil
}

// Close makes the instance unusable.
func (e *MP3) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dropStreamLocked()
	e.released = true
	return nil
}

func (e *MP3) dropStreamLocked() {
	if e.player != nil {
		if err := e.player.Close(); err != nil {
			zlog.Debug().Err(err).Msg("engine: player close")
		}
		e.player = nil
	}
	if e.body != nil {
		_ = e.body.Close()
		e.body = nil
	}
}
