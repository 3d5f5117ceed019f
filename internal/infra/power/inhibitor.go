// Package power holds a system wake lock through the logind inhibitor
// API, preventing the machine from sleeping while audio is active.
package power

import (
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/godbus/dbus/v5"
)

const (
	login1BusName    = "org.freedesktop.login1"
	login1ObjectPath = "/org/freedesktop/login1"
	inhibitMethod    = "org.freedesktop.login1.Manager.Inhibit"
	inhibitWhat      = "sleep:idle"
	inhibitMode      = "block"
)

// Inhibitor implements guard.Lease. The lock is represented by a file
// descriptor handed out by logind; closing it releases the lock.
type Inhibitor struct {
	mu   sync.Mutex
	conn *dbus.Conn
	who  string
	why  string
	fd   *os.File
}

// NewInhibitor connects to the system bus.
func NewInhibitor(who, why string) (*Inhibitor, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, errors.Wrap(err, "power: connect to system bus")
	}
	return &Inhibitor{conn: conn, who: who, why: why}, nil
}

// Acquire takes the inhibitor lock. Idempotent.
func (i *Inhibitor) Acquire() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.fd != nil {
		return nil
	}
	obj := i.conn.Object(login1BusName, dbus.ObjectPath(login1ObjectPath))
	var fd dbus.UnixFD
	if err := obj.Call(inhibitMethod, 0, inhibitWhat, i.who, i.why, inhibitMode).Store(&fd); err != nil {
		return errors.Wrap(err, "power: inhibit")
	}
	i.fd = os.NewFile(uintptr(fd), "radiod-inhibitor")
	return nil
}

// Release drops the inhibitor lock. Idempotent.
func (i *Inhibitor) Release() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.fd == nil {
		return nil
	}
	err := i.fd.Close()
	i.fd = nil
	if err != nil {
		return errors.Wrap(err, "power: release inhibitor")
	}
	return nil
}
