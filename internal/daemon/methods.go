package daemon

import (
	"errors"
	"strconv"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"

	"github.com/rdkcentral/rdkfwupdater-sub002/internal/download"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/flash"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/model"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/rfwerr"
)

// RegisterProcess implements §6's RegisterProcess(ss) -> (t). The trailing
// dbus.Sender parameter is populated by godbus with the caller's unique bus
// name and never appears in the exported method's wire signature; it is
// how "caller identity is supplied by the bus" (§4.G) reaches the registry.
// requestID exists only for log correlation: before a handle id is minted
// there is nothing else to key a RegisterProcess call's log lines on.
func (s *Server) RegisterProcess(processName, libVersion string, sender dbus.Sender) (uint64, *dbus.Error) {
	requestID := uuid.NewString()
	s.log.Debugw("RegisterProcess called", "requestId", requestID, "processName", processName, "sender", string(sender))

	handleID, err := s.registry.Register(processName, libVersion, string(sender))
	if err != nil {
		return 0, toDbusError(err)
	}
	return handleID, nil
}

// UnregisterProcess implements §6's UnregisterProcess(t) -> (b).
func (s *Server) UnregisterProcess(handleID uint64) (bool, *dbus.Error) {
	return s.registry.Unregister(handleID), nil
}

// CheckForUpdate implements §6's CheckForUpdate(s) -> (ssssi). The input is
// the handle id encoded as a decimal string, matching the method table's
// literal `handleIdStr` parameter name.
func (s *Server) CheckForUpdate(handleIDStr string) (string, string, string, string, int32, *dbus.Error) {
	handleID, perr := parseHandleID(handleIDStr)
	if perr != nil {
		return "", "", "", "", model.StatusFirmwareCheckError, perr
	}

	result, _, err := s.coord.CheckForUpdate(handleID)
	if err != nil {
		return "", "", "", "", model.StatusFirmwareCheckError, toDbusError(err)
	}
	return result.CurrentVersion, result.AvailableVersion, result.UpdateDetails, result.StatusMessage, result.StatusCode, nil
}

// DownloadFirmware implements §6's DownloadFirmware(ssss) -> (sss).
func (s *Server) DownloadFirmware(handleIDStr, firmwareName, url, typeOfFirmware string) (string, string, string, *dbus.Error) {
	handleID, perr := parseHandleID(handleIDStr)
	if perr != nil {
		return "FAILURE", "ERROR", perr.Error(), perr
	}

	_, err := s.download.Start(download.Request{
		HandleID:       handleID,
		FirmwareName:   firmwareName,
		DownloadURL:    url,
		URLProvided:    url != "",
		TypeOfFirmware: model.TypeOfFirmware(typeOfFirmware),
	})
	if err != nil {
		return "FAILURE", "ERROR", err.Error(), toDbusError(err)
	}
	return "SUCCESS", "ACCEPTED", "download job started", nil
}

// UpdateFirmware implements §6's UpdateFirmware(sssss) -> (sss).
func (s *Server) UpdateFirmware(handleIDStr, firmwareName, typeOfFirmware, location, rebootFlag string) (string, string, string, *dbus.Error) {
	handleID, perr := parseHandleID(handleIDStr)
	if perr != nil {
		return "FAILURE", "ERROR", perr.Error(), perr
	}

	_, err := s.flash.Start(flash.Request{
		HandleID:          handleID,
		FirmwareName:      firmwareName,
		TypeOfFirmware:    model.TypeOfFirmware(typeOfFirmware),
		Location:          location,
		RebootImmediately: rebootFlag == "true",
	})
	if err != nil {
		return "FAILURE", "ERROR", err.Error(), toDbusError(err)
	}
	return "SUCCESS", "ACCEPTED", "flash job started", nil
}

func parseHandleID(s string) (uint64, *dbus.Error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dbus.NewError(InterfaceName+".Error.InvalidArgs", []interface{}{"handleId must be a decimal integer"})
	}
	return id, nil
}

// toDbusError maps the internal error taxonomy (§7) onto a named D-Bus
// error, since dbus.Error carries a symbolic name the client library
// matches against rather than a Go type.
func toDbusError(err error) *dbus.Error {
	name := InterfaceName + ".Error."
	switch {
	case errors.As(err, new(*rfwerr.InvalidArgsError)):
		name += "InvalidArgs"
	case errors.As(err, new(*rfwerr.NotRegisteredError)):
		name += "NotRegistered"
	case errors.As(err, new(*rfwerr.AlreadyRegisteredError)):
		name += "AlreadyRegistered"
	case errors.As(err, new(*rfwerr.AlreadyInProgressError)):
		name += "AlreadyInProgress"
	case errors.As(err, new(*rfwerr.PlatformError)):
		name += "Platform"
	case errors.As(err, new(*rfwerr.CacheError)):
		name += "Cache"
	default:
		name += "Internal"
	}
	return dbus.NewError(name, []interface{}{err.Error()})
}
