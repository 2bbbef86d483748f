// Package policy implements the Policy Engine (§4.H): a set of stateless
// predicates consulted by the coordinator, download, and flash state
// machines. Every predicate is a pure function of on-disk flag files, device
// properties, or explicit arguments — the engine itself holds no mutable
// state beyond the paths it was configured with, matching §4.H's "stateless
// predicates" framing.
package policy

import (
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
)

// DeviceProperties is the read-only key/value device property store (§6).
type DeviceProperties interface {
	Get(key string) (string, bool)
}

// Config bundles every flag-file path and toggle the Policy Engine consults.
type Config struct {
	StateRedFlagPath     string
	DirectBlockPath      string
	DirectBlockAge       time.Duration // 24h per §4.E
	CbBlockPath          string
	CbBlockAge           time.Duration // 30min per §4.E
	MaintOptOutPath      string
	PdriEnabledPropKey   string // device property key, e.g. "PDRI_ENABLED"
	StateRedSupported    bool
	OcspEnabled          bool
	ThrottleEnabled      bool
	MaintenanceEnabled   bool
	ConnectivityCheckURL string
}

// RequestType names the resource whose block-file-driven throttling is
// being queried (§4.H "is_download_blocked(request_type)").
type RequestType string

const (
	RequestDirect  RequestType = "direct"
	RequestCodebig RequestType = "codebig"
)

// Engine is the Policy Engine.
type Engine struct {
	cfg   Config
	props DeviceProperties
	log   *zap.SugaredLogger

	// httpHEAD is overridden in tests to avoid real network calls.
	httpHEAD func(url string) error
}

func New(cfg Config, props DeviceProperties, log *zap.SugaredLogger) *Engine {
	e := &Engine{cfg: cfg, props: props, log: log}
	e.httpHEAD = func(url string) error {
		client := http.Client{Timeout: 5 * time.Second}
		resp, err := client.Head(url)
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	}
	return e
}

// IsPdriEnabled reads the PDRI_ENABLED device property.
func (e *Engine) IsPdriEnabled() bool {
	v, ok := e.props.Get(e.cfg.PdriEnabledPropKey)
	return ok && v == "true"
}

func (e *Engine) IsStateRedSupported() bool {
	return e.cfg.StateRedSupported
}

// IsInStateRed reports whether the state-red flag file is present.
func (e *Engine) IsInStateRed() bool {
	_, err := os.Stat(e.cfg.StateRedFlagPath)
	return err == nil
}

func (e *Engine) IsOcspEnabled() bool {
	return e.cfg.OcspEnabled
}

// IsThrottleEnabled implements §4.H's throttle predicate: only meaningful
// when video is playing (appMode) and the caller did not request an
// immediate reboot.
func (e *Engine) IsThrottleEnabled(deviceName string, rebootFlag bool, appMode string) bool {
	if !e.cfg.ThrottleEnabled {
		return false
	}
	return appMode == "video-playing" && !rebootFlag
}

// IsConnectedToInternet performs a lightweight reachability check against
// the configured URL. Failures are treated as "not connected".
func (e *Engine) IsConnectedToInternet() bool {
	if e.cfg.ConnectivityCheckURL == "" {
		return true
	}
	if err := e.httpHEAD(e.cfg.ConnectivityCheckURL); err != nil {
		e.log.Debugw("connectivity check failed", "err", err)
		return false
	}
	return true
}

// IsDownloadBlocked implements the two block-file age windows of §4.E.
func (e *Engine) IsDownloadBlocked(reqType RequestType) bool {
	var path string
	var maxAge time.Duration
	switch reqType {
	case RequestDirect:
		path, maxAge = e.cfg.DirectBlockPath, e.cfg.DirectBlockAge
	case RequestCodebig:
		path, maxAge = e.cfg.CbBlockPath, e.cfg.CbBlockAge
	default:
		return false
	}
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) < maxAge
}

// MarkBlocked writes (touches) the block file for reqType, called after a
// download failure on that path so the next Resolving phase prefers the
// alternate path (§12 supplemented feature).
func (e *Engine) MarkBlocked(reqType RequestType) error {
	var path string
	switch reqType {
	case RequestDirect:
		path = e.cfg.DirectBlockPath
	case RequestCodebig:
		path = e.cfg.CbBlockPath
	default:
		return nil
	}
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

// IsDelayWindowRequired implements §4.H's delay-window predicate: a
// positive delay is only honored outside maintenance windows, and only for
// the scheduled ("2") trigger type, matching the canary/maintenance
// exemptions used in §4.F.5.
func (e *Engine) IsDelayWindowRequired(delayMinutes int, maint bool, triggerType int) bool {
	if delayMinutes <= 0 {
		return false
	}
	if maint {
		return false
	}
	return triggerType == 2
}

// EnterStateRedOnTlsError implements §4.H's TLS-triggered state-red entry.
// It writes the flag file only when the curl code belongs to the TLS class
// and state red is supported (state red has no "undo" besides a successful
// PostFlash clearing it, per §13), and returns whether it entered state
// red.
func (e *Engine) EnterStateRedOnTlsError(curlCode int) (entered bool, err error) {
	if !isTlsCurlCode(curlCode) {
		return false, nil
	}
	if !e.cfg.StateRedSupported {
		return false, nil
	}
	f, ferr := os.OpenFile(e.cfg.StateRedFlagPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if ferr != nil {
		return false, ferr
	}
	if cerr := f.Close(); cerr != nil {
		return false, cerr
	}
	e.log.Errorw("entering state red due to TLS failure", "curlCode", curlCode)
	return true, nil
}

// ClearStateRed removes the state-red flag file. Called only from the
// Flash State Machine's successful PostFlash phase (§4.F.4, §13).
func (e *Engine) ClearStateRed() error {
	err := os.Remove(e.cfg.StateRedFlagPath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func isTlsCurlCode(code int) bool {
	switch code {
	case 35, 51, 53, 54, 58, 59, 60, 64, 66, 77, 80, 82, 83, 90, 91, 495:
		return true
	default:
		return false
	}
}
