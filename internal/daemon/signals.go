package daemon

import (
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/coordinator"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/model"
)

// These Emit* methods are handed to the component constructors as their
// onComplete/onProgress/onTerminal/onError callbacks (§9's one-way event
// sink). They never get called from within this package itself.

// EmitCheckForUpdateComplete satisfies coordinator.CompleteFunc, publishing
// §13's chosen `(t i i s s s s)` encoding. `result` is a coarse 0=ok/1=error
// summary of statusCode, kept distinct from statusCode itself since §6 lists
// both fields and the spec does not otherwise define "result" — documented
// here as the adapter's interpretation.
func (s *Server) EmitCheckForUpdateComplete(handleID uint64, result coordinator.CheckResult) {
	outcome := int32(0)
	if result.StatusCode == model.StatusFirmwareCheckError {
		outcome = 1
	}
	if err := s.conn.Emit(ObjectPath, InterfaceName+".CheckForUpdateComplete",
		handleID, outcome, result.StatusCode, result.CurrentVersion, result.AvailableVersion, result.UpdateDetails, result.StatusMessage,
	); err != nil {
		s.log.Warnw("failed to emit CheckForUpdateComplete", "handleId", handleID, "err", err)
	}
}

// EmitDownloadProgress satisfies download.ProgressFunc, publishing §6's
// `DownloadProgress(t s u s s)`. download.Manager reports its own terminal
// success this way too (pct=100), so status/message are derived from pct
// rather than carried separately.
func (s *Server) EmitDownloadProgress(handleID uint64, firmwareName string, pct int) {
	status, message := "IN_PROGRESS", ""
	if pct >= 100 {
		status, message = "COMPLETED", "OK"
	}
	if err := s.conn.Emit(ObjectPath, InterfaceName+".DownloadProgress",
		handleID, firmwareName, uint32(pct), status, message,
	); err != nil {
		s.log.Warnw("failed to emit DownloadProgress", "handleId", handleID, "err", err)
	}
}

// EmitDownloadError satisfies download.ErrorFunc, publishing §6's
// `DownloadError(t s s s)`.
func (s *Server) EmitDownloadError(handleID uint64, firmwareName, status, message string) {
	if err := s.conn.Emit(ObjectPath, InterfaceName+".DownloadError",
		handleID, firmwareName, status, message,
	); err != nil {
		s.log.Warnw("failed to emit DownloadError", "handleId", handleID, "err", err)
	}
}

// EmitUpdateProgress satisfies flash.ProgressFunc, publishing §6's
// `UpdateProgress(t s i i s)` for a mid-flight (non-terminal) update.
func (s *Server) EmitUpdateProgress(handleID uint64, firmwareName string, pct int) {
	if err := s.conn.Emit(ObjectPath, InterfaceName+".UpdateProgress",
		handleID, firmwareName, int32(pct), int32(-1), "",
	); err != nil {
		s.log.Warnw("failed to emit UpdateProgress", "handleId", handleID, "err", err)
	}
}

// EmitUpdateTerminal satisfies flash.TerminalFunc, publishing the terminal
// `UpdateProgress` carrying a real statusCode (§6: "progress >= 0 is
// normal; a negative progress indicates terminal error" -- this
// implementation additionally signals error via statusCode, since
// flash.TerminalFunc's pct is always the real final percentage rather than
// a sentinel negative value).
func (s *Server) EmitUpdateTerminal(handleID uint64, firmwareName string, pct int, statusCode int32, message string) {
	reportedPct := pct
	if statusCode == model.UpdateStatusError {
		reportedPct = -1
	}
	if err := s.conn.Emit(ObjectPath, InterfaceName+".UpdateProgress",
		handleID, firmwareName, int32(reportedPct), statusCode, message,
	); err != nil {
		s.log.Warnw("failed to emit UpdateProgress(terminal)", "handleId", handleID, "err", err)
	}
}
