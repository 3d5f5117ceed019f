// Package netkeep keeps the network path to the stream host warm while
// playback is active, so a paused stream can resume without a
// reconnection.
package netkeep

import (
	"context"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

const probeTimeout = 5 * time.Second

// Keepalive implements guard.Lease with a periodic reachability probe
// of the stream host. The probe traffic keeps power-managed network
// interfaces from idling out between stream reads.
type Keepalive struct {
	mu       sync.Mutex
	hostport string
	interval time.Duration
	cancel   context.CancelFunc
}

// New derives the probe target from the stream URI.
func New(streamURI string, interval time.Duration) (*Keepalive, error) {
	u, err := url.Parse(streamURI)
	if err != nil {
		return nil, errors.Wrap(err, "netkeep: parse stream URI")
	}
	host := u.Hostname()
	if host == "" {
		return nil, errors.Newf("netkeep: stream URI has no host: %s", streamURI)
	}
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "https":
			port = "443"
		default:
			port = "80"
		}
	}
	return &Keepalive{
		hostport: net.JoinHostPort(host, port),
		interval: interval,
	}, nil
}

// Acquire starts the probe loop. Idempotent.
func (k *Keepalive) Acquire() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	k.cancel = cancel
	go k.loop(ctx)
	return nil
}

// Release stops the probe loop. Idempotent.
func (k *Keepalive) Release() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.cancel == nil {
		return nil
	}
	k.cancel()
	k.cancel = nil
	return nil
}

func (k *Keepalive) loop(ctx context.Context) {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn, err := net.DialTimeout("tcp", k.hostport, probeTimeout)
			if err != nil {
				zlog.Debug().Err(err).Str("host", k.hostport).
					Msg("netkeep: probe failed")
				continue
			}
			_ = conn.Close()
		}
	}
}
