// Package rfwerr defines the error taxonomy shared by every component of
// the firmware update daemon. Each error kind carries enough structure for
// callers to recover it with errors.As/errors.Is instead of matching on
// formatted strings, and the bus adapter maps each kind onto a stable wire
// encoding (an immediate-reply error string or a terminal-signal status
// code).
package rfwerr

import "fmt"

// InvalidArgsError reports a NULL/empty required field, an out-of-range
// enum, or a value that would overflow a fixed-size destination buffer.
type InvalidArgsError struct {
	Field  string
	Reason string
}

func (e *InvalidArgsError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid argument: %s", e.Field)
	}
	return fmt.Sprintf("invalid argument %s: %s", e.Field, e.Reason)
}

func (e *InvalidArgsError) Is(target error) bool {
	_, ok := target.(*InvalidArgsError)
	return ok
}

// NotRegisteredError reports an unknown handle id, or a handle owned by a
// different caller than the one presenting it.
type NotRegisteredError struct {
	HandleID uint64
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("handle %d is not registered", e.HandleID)
}

func (e *NotRegisteredError) Is(target error) bool {
	_, ok := target.(*NotRegisteredError)
	return ok
}

// AlreadyRegisteredError reports a process-name collision from a different
// caller identity (see 4.A).
type AlreadyRegisteredError struct {
	ProcessName string
}

func (e *AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("process %q is already registered by another caller", e.ProcessName)
}

func (e *AlreadyRegisteredError) Is(target error) bool {
	_, ok := target.(*AlreadyRegisteredError)
	return ok
}

// AlreadyInProgressError reports that a download or flash job is already
// active, either globally (one active job per device) or for this handle.
type AlreadyInProgressError struct {
	Kind string // "download" or "flash"
}

func (e *AlreadyInProgressError) Error() string {
	return fmt.Sprintf("%s already in progress", e.Kind)
}

func (e *AlreadyInProgressError) Is(target error) bool {
	_, ok := target.(*AlreadyInProgressError)
	return ok
}

// NetworkError is the umbrella for transport-level failures. At most one of
// the Tls/Http/Timeout/ConnectionRefused fields is populated; none is for a
// failure that fits no class (only Message is set).
type NetworkError struct {
	TlsCurlCode       int  // non-zero when this is a TLS-class failure
	HttpStatus        int  // non-zero when this is a non-2xx HTTP response
	Timeout           bool // true on a deadline exceeded
	ConnectionRefused bool // true on ECONNREFUSED-class failures
	Message           string
}

func (e *NetworkError) Error() string {
	switch {
	case e.TlsCurlCode != 0:
		return fmt.Sprintf("tls error (curl code %d): %s", e.TlsCurlCode, e.Message)
	case e.HttpStatus != 0:
		return fmt.Sprintf("http error %d: %s", e.HttpStatus, e.Message)
	case e.Timeout:
		return fmt.Sprintf("network timeout: %s", e.Message)
	case e.ConnectionRefused:
		return fmt.Sprintf("connection refused: %s", e.Message)
	default:
		return fmt.Sprintf("network error: %s", e.Message)
	}
}

func (e *NetworkError) Is(target error) bool {
	_, ok := target.(*NetworkError)
	return ok
}

// IsTlsClass reports whether the curl code is one of the codes §4.C
// requires the coordinator to consult the policy engine about.
func (e *NetworkError) IsTlsClass() bool {
	if e.TlsCurlCode == 0 {
		return false
	}
	switch e.TlsCurlCode {
	case 35, 51, 53, 54, 58, 59, 60, 64, 66, 77, 80, 82, 83, 90, 91, 495:
		return true
	default:
		return false
	}
}

// PlatformError reports a non-zero flasher exit, a crashed child process, or
// a missing device property.
type PlatformError struct {
	Op      string
	ExitErr error
}

func (e *PlatformError) Error() string {
	if e.ExitErr != nil {
		return fmt.Sprintf("platform error during %s: %v", e.Op, e.ExitErr)
	}
	return fmt.Sprintf("platform error during %s", e.Op)
}

func (e *PlatformError) Is(target error) bool {
	_, ok := target.(*PlatformError)
	return ok
}

func (e *PlatformError) Unwrap() error {
	return e.ExitErr
}

// CacheError reports a corrupt cache artifact or a cache write failure. Per
// §7 this is always recoverable: corrupt reads are treated as a miss and
// trigger a refetch; write failures are logged and the in-memory result is
// used as-is.
type CacheError struct {
	Path string
	Err  error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache error at %s: %v", e.Path, e.Err)
}

func (e *CacheError) Is(target error) bool {
	_, ok := target.(*CacheError)
	return ok
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

// FatalError reports uncorrectable resource exhaustion at startup; the
// daemon exits 1 after logging it.
type FatalError struct {
	Reason string
	Err    error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fatal: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("fatal: %s", e.Reason)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}
