// Package desktop renders the foreground presentation through the
// freedesktop notification service.
package desktop

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/godbus/dbus/v5"
)

const (
	notifyBusName    = "org.freedesktop.Notifications"
	notifyObjectPath = "/org/freedesktop/Notifications"
	notifyMethod     = "org.freedesktop.Notifications.Notify"
	closeMethod      = "org.freedesktop.Notifications.CloseNotification"
	notifyIcon       = "audio-x-generic"
)

// Presenter shows a single persistent notification and replaces it in
// place on updates, mirroring an ongoing playback indicator.
type Presenter struct {
	mu      sync.Mutex
	conn    *dbus.Conn
	appName string
	lastID  uint32
}

// NewPresenter connects to the session bus.
func NewPresenter(appName string) (*Presenter, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, errors.Wrap(err, "desktop: connect to session bus")
	}
	return &Presenter{conn: conn, appName: appName}, nil
}

// Show displays or replaces the playback notification.
func (p *Presenter) Show(title, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	obj := p.conn.Object(notifyBusName, dbus.ObjectPath(notifyObjectPath))
	call := obj.Call(notifyMethod, 0,
		p.appName,
		p.lastID, // replaces the previous notification
		notifyIcon,
		title,
		text,
		[]string{},
		map[string]dbus.Variant{"resident": dbus.MakeVariant(true)},
		int32(0), // no expiry
	)
	if call.Err != nil {
		return errors.Wrap(call.Err, "desktop: notify")
	}
	if err := call.Store(&p.lastID); err != nil {
		return errors.Wrap(err, "desktop: notify reply")
	}
	return nil
}

// Clear withdraws the playback notification. Idempotent.
func (p *Presenter) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lastID == 0 {
		return nil
	}
	obj := p.conn.Object(notifyBusName, dbus.ObjectPath(notifyObjectPath))
	if call := obj.Call(closeMethod, 0, p.lastID); call.Err != nil {
		return errors.Wrap(call.Err, "desktop: close notification")
	}
	p.lastID = 0
	return nil
}

// Close releases the bus connection.
func (p *Presenter) Close() error {
	return p.conn.Close()
}
