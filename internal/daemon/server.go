// Package daemon implements the Event Bus Adapter (§4.G): the D-Bus-facing
// surface that turns component outputs into wire signals and routes
// inbound method calls to the Handle Registry, Update Coordinator, Download
// State Machine, and Flash State Machine. It never runs component logic
// itself; every exported method here is a thin translation layer, playing
// the same role the teacher's daemon package plays between its REST Command
// table and the overlord state engine, now over D-Bus instead of HTTP.
package daemon

import (
	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/rdkcentral/rdkfwupdater-sub002/internal/coordinator"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/download"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/flash"
)

// Bus service identity, per §6.
const (
	BusName       = "org.rdkfwupdater.Service"
	ObjectPath    = dbus.ObjectPath("/org/rdkfwupdater/Service")
	InterfaceName = "org.rdkfwupdater.Interface"
)

// Registry is the subset of handleregistry.Registry the adapter dispatches
// to (§4.A).
type Registry interface {
	Register(processName, version, callerIdentity string) (uint64, error)
	Unregister(handleID uint64) bool
}

// Coordinator is the subset of coordinator.Coordinator the adapter
// dispatches to (§4.C).
type Coordinator interface {
	CheckForUpdate(handleID uint64) (coordinator.CheckResult, bool, error)
}

// Downloader is the subset of download.Manager the adapter dispatches to
// (§4.E).
type Downloader interface {
	Start(req download.Request) (bool, error)
}

// FlashStarter is the subset of flash.Manager the adapter dispatches to
// (§4.F).
type FlashStarter interface {
	Start(req flash.Request) (bool, error)
}

// busConn is the narrow slice of *dbus.Conn the adapter needs to emit
// signals, so tests substitute a recording fake instead of a real bus
// connection.
type busConn interface {
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
}

// Server is the Event Bus Adapter (§4.G). Its exported methods are the ones
// handed to (*dbus.Conn).Export; its Emit* methods are handed to the
// component constructors as their onComplete/onProgress/onTerminal
// callbacks (§9: "jobs emit through a one-way event sink provided by the
// adapter").
type Server struct {
	log      *zap.SugaredLogger
	conn     busConn
	registry Registry
	coord    Coordinator
	download Downloader
	flash    FlashStarter
}

func NewServer(log *zap.SugaredLogger, conn *dbus.Conn, registry Registry, coord Coordinator, downloader Downloader, flasher FlashStarter) *Server {
	return &Server{
		log:      log,
		conn:     conn,
		registry: registry,
		coord:    coord,
		download: downloader,
		flash:    flasher,
	}
}

// Export publishes the interface and requests the well-known bus name
// (§6). Callers use the real *dbus.Conn here, not the narrow busConn the
// Server itself holds, since Export/RequestName aren't needed post-startup.
func Export(conn *dbus.Conn, s *Server) error {
	if err := conn.Export(s, ObjectPath, InterfaceName); err != nil {
		return err
	}
	reply, err := conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return &nameInUseError{name: BusName}
	}
	return nil
}

type nameInUseError struct{ name string }

func (e *nameInUseError) Error() string { return "bus name already owned: " + e.name }
