// Package notify fans playback status out to subscribers and drives
// the foreground presentation.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/returnzero/radiod/internal/app/playback"
	"github.com/returnzero/radiod/internal/infra/metrics"
)

// sendTimeout bounds how long a single subscriber may delay a
// broadcast.
const sendTimeout = 500 * time.Millisecond

// Stream receives broadcast events for one subscriber.
type Stream interface {
	Send(playback.Event) error
}

// Presenter renders the persistent foreground presentation. May be
// absent on headless hosts.
type Presenter interface {
	Show(title, text string) error
	Clear() error
}

// subscription represents a subscriber's registration.
type subscription struct {
	id     string
	stream Stream
}

// Manager implements playback.Notifier. Broadcasts run in parallel
// with a per-subscriber timeout so a stuck subscriber never blocks a
// trigger; foreground calls flip the presentation lease synchronously.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription

	appTitle  string
	presenter Presenter

	fgMu       sync.Mutex
	foreground bool
}

// NewManager creates a manager. A nil presenter degrades the
// foreground presentation to log-only.
func NewManager(appTitle string, presenter Presenter) *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
		appTitle:      appTitle,
		presenter:     presenter,
	}
}

// Subscribe adds a subscriber and returns its subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{id: id, stream: stream}
	metrics.EventSubscribers.Inc()
	return id
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.subscriptions[subscriptionID]; ok {
		delete(m.subscriptions, subscriptionID)
		metrics.EventSubscribers.Dec()
	}
}

// Broadcast sends the event to all subscribers. Send errors are left
// to the subscriber's own teardown; a slow stream is abandoned after
// the send timeout.
func (m *Manager) Broadcast(ev playback.Event) {
	m.mu.RLock()
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	for _, sub := range subs {
		go func(s *subscription) {
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(ev)
			}()

			select {
			case err := <-done:
				if err != nil {
					zlog.Debug().Err(err).Str("subscription", s.id).
						Msg("notify: subscriber send failed")
				}
			case <-ctx.Done():
				zlog.Debug().Str("subscription", s.id).
					Msg("notify: subscriber send timed out")
			}
		}(sub)
	}
}

// StartForeground activates the foreground presentation with the given
// text.
func (m *Manager) StartForeground(text string) {
	m.fgMu.Lock()
	defer m.fgMu.Unlock()

	m.foreground = true
	m.showLocked(text)
}

// UpdateForeground replaces the presentation text. No-op while the
// foreground presentation is inactive.
func (m *Manager) UpdateForeground(text string) {
	m.fgMu.Lock()
	defer m.fgMu.Unlock()

	if !m.foreground {
		return
	}
	m.showLocked(text)
}

// StopForeground deactivates the foreground presentation. Idempotent.
func (m *Manager) StopForeground() {
	m.fgMu.Lock()
	defer m.fgMu.Unlock()

	if !m.foreground {
		return
	}
	m.foreground = false
	if m.presenter == nil {
		return
	}
	if err := m.presenter.Clear(); err != nil {
		zlog.Warn().Err(err).Msg("notify: clearing presentation failed")
	}
}

// ForegroundActive reports the foreground-presentation lease flag.
func (m *Manager) ForegroundActive() bool {
	m.fgMu.Lock()
	defer m.fgMu.Unlock()
	return m.foreground
}

func (m *Manager) showLocked(text string) {
	if m.presenter == nil {
		zlog.Info().Str("text", text).Msg("notify: presentation")
		return
	}
	if err := m.presenter.Show(m.appTitle, text); err != nil {
		zlog.Warn().Err(err).Msg("notify: presentation update failed")
	}
}
