// Package client is the client-side library named in the overview: it
// hides the D-Bus mechanics behind opaque Handle values and typed
// callbacks, so callers never construct a method call or parse a signal
// themselves.
package client

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	busName       = "org.rdkfwupdater.Service"
	objectPath    = dbus.ObjectPath("/org/rdkfwupdater/Service")
	interfaceName = "org.rdkfwupdater.Interface"
)

// busObject is the narrow slice of dbus.BusObject the client needs, so
// tests can substitute a recording fake instead of a real bus connection.
type busObject interface {
	Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// Handle is an opaque registration id returned by Register. It is the
// identity passed back into every subsequent call.
type Handle uint64

// Client is a connected session to the daemon (§6). One Client may hold
// several registered Handles at once; each Handle gets its own set of
// callbacks.
type Client struct {
	conn *dbus.Conn
	obj  busObject

	sigCh chan *dbus.Signal

	mu        sync.Mutex
	callbacks map[Handle]*handleCallbacks
}

type handleCallbacks struct {
	onCheckComplete    func(CheckResult)
	onDownloadProgress func(pct uint32, status, message string)
	onDownloadError    func(status, message string)
	onUpdateProgress   func(UpdateProgress)
}

// Connect dials the system bus and subscribes to this daemon's signals.
func Connect() (*Client, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}
	return newClient(conn)
}

// ConnectSessionBus dials the session bus instead of the system bus, for
// development against a daemon started with --session-bus.
func ConnectSessionBus() (*Client, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect to session bus: %w", err)
	}
	return newClient(conn)
}

func newClient(conn *dbus.Conn) (*Client, error) {
	rule := fmt.Sprintf("type='signal',interface='%s'", interfaceName)
	if call := conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule); call.Err != nil {
		return nil, fmt.Errorf("subscribe to %s signals: %w", interfaceName, call.Err)
	}

	c := &Client{
		conn:      conn,
		obj:       conn.Object(busName, objectPath),
		sigCh:     make(chan *dbus.Signal, 32),
		callbacks: make(map[Handle]*handleCallbacks),
	}
	conn.Signal(c.sigCh)
	go c.dispatchLoop()
	return c, nil
}

// Close unsubscribes and closes the underlying bus connection.
func (c *Client) Close() error {
	c.conn.RemoveSignal(c.sigCh)
	close(c.sigCh)
	return c.conn.Close()
}

func (c *Client) callbacksFor(h Handle) *handleCallbacks {
	c.mu.Lock()
	defer c.mu.Unlock()
	cb, ok := c.callbacks[h]
	if !ok {
		cb = &handleCallbacks{}
		c.callbacks[h] = cb
	}
	return cb
}

func (c *Client) forget(h Handle) {
	c.mu.Lock()
	delete(c.callbacks, h)
	c.mu.Unlock()
}
