// Package flash implements the Flash State Machine (§4.F):
// Idle → Validating → Gating → Flashing → PostFlash → RebootPolicy →
// Completed | Error. It shares the Worker Pool of internal/jobs with the
// download side so the "one active job globally per kind" invariant (§3)
// naturally also gives Gating its "no DownloadJob active" check for free.
package flash

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/tomb.v2"

	"github.com/rdkcentral/rdkfwupdater-sub002/internal/handleregistry"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/jobs"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/model"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/platform"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/policy"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/rfwerr"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/statuswriter"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/xconfcache"
)

// Trigger type values §4.F's RebootPolicy and §4.H's delay-window predicate
// reason about. The spec never enumerates the full set; these two are the
// only ones either section names explicitly.
const (
	TriggerScheduled = 2
	TriggerCanary    = 3
)

// Request is the update_firmware entry point's argument set (§4.F).
type Request struct {
	HandleID          uint64
	FirmwareName      string
	TypeOfFirmware    model.TypeOfFirmware
	Location          string // optional override of DIFW_PATH
	RebootImmediately bool
	TriggerType       int
	AppMode           string // e.g. "video-playing", for the throttle predicate
	DeviceName        string
}

// FirmwareInfo reports the firmware identity actually running, for the
// Gating phase's upgrade-validity checks.
type FirmwareInfo interface {
	Version() string
	PdriVersion() string
}

// DeviceProperties is the subset of §6's read-only property store this
// state machine consults: DIFW_PATH, DEVICE_TYPE (PLATCO/media-client
// classification), MAINTENANCE_ENABLED, STAGE2LOCKFILE, XCONF_CHECK_NOW.
type DeviceProperties interface {
	Get(key string) (string, bool)
}

// EventEmitter publishes the platform system-state-bus events named in
// §4.F (IMAGE_FWDNLD_FLASH_INPROGRESS, IMAGE_FWDNLD_FLASH_COMPLETE,
// DEFER_CANARY_REBOOT, FW_STATE_CRITICAL_REBOOT, MAINT_REBOOT_REQUIRED,
// RebootPendingNotification).
type EventEmitter interface {
	Emit(event string, attrs map[string]string)
}

// PowerStateProvider reports whether the device is currently powered on,
// for the CANARY reboot-deferral check (§4.F.5).
type PowerStateProvider interface {
	IsOn() bool
}

// TelemetryUploader uploads the report CANARY reboot requires before it
// may proceed (§4.F.5).
type TelemetryUploader interface {
	UploadReport(ctx context.Context) error
}

// ProgressFunc reports UpdateProgress (§4.F/§4.G).
type ProgressFunc func(handleID uint64, firmwareName string, pct int)

// TerminalFunc reports the terminal UpdateProgress carrying a status code
// and message (§4.F/§4.G).
type TerminalFunc func(handleID uint64, firmwareName string, pct int, statusCode int32, message string)

// Manager drives the Flash State Machine.
type Manager struct {
	log            *zap.SugaredLogger
	registry       *handleregistry.Registry
	pool           *jobs.Pool
	cache          *xconfcache.Cache
	policy         *policy.Engine
	props          DeviceProperties
	flasher        *platform.Flasher
	rebooter       *platform.Rebooter
	bundleMgr      *platform.BundleManager
	rdmVersionPath string // persists the last rdm_catalogue_version applied, for §12's "only invoke when the version changed" check
	status         *statuswriter.Writer
	events         EventEmitter
	power          PowerStateProvider
	telemetry      TelemetryUploader
	running        FirmwareInfo
	optOutPath     string

	criticalRebootDelay time.Duration // 600s per §4.F.5, overridable for tests
	rebootDelay         time.Duration // 2s per §4.F.5, overridable for tests

	onProgress ProgressFunc
	onTerminal TerminalFunc
}

type Option func(*Manager)

func WithRebootDelays(critical, normal time.Duration) Option {
	return func(m *Manager) {
		m.criticalRebootDelay = critical
		m.rebootDelay = normal
	}
}

func WithBundleManager(b *platform.BundleManager, rdmVersionPath string) Option {
	return func(m *Manager) {
		m.bundleMgr = b
		m.rdmVersionPath = rdmVersionPath
	}
}

func New(
	log *zap.SugaredLogger,
	registry *handleregistry.Registry,
	pool *jobs.Pool,
	cache *xconfcache.Cache,
	policyEngine *policy.Engine,
	props DeviceProperties,
	flasher *platform.Flasher,
	rebooter *platform.Rebooter,
	status *statuswriter.Writer,
	events EventEmitter,
	power PowerStateProvider,
	telemetry TelemetryUploader,
	running FirmwareInfo,
	optOutPath string,
	onProgress ProgressFunc,
	onTerminal TerminalFunc,
	opts ...Option,
) *Manager {
	m := &Manager{
		log:                 log,
		registry:            registry,
		pool:                pool,
		cache:               cache,
		policy:              policyEngine,
		props:               props,
		flasher:             flasher,
		rebooter:            rebooter,
		status:              status,
		events:              events,
		power:               power,
		telemetry:           telemetry,
		running:             running,
		optOutPath:          optOutPath,
		criticalRebootDelay: 600 * time.Second,
		rebootDelay:         2 * time.Second,
		onProgress:          onProgress,
		onTerminal:          onTerminal,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start implements update_firmware (§4.F). The returned bool reports
// whether a terminal UpdateProgress signal will later arrive for this
// handle; err is non-nil for an immediate Validating-phase rejection.
func (m *Manager) Start(req Request) (bool, error) {
	location, err := m.validate(req)
	if err != nil {
		return false, err
	}

	gateResult, gateErr := m.gate(req)
	if gateErr != nil {
		return false, gateErr
	}
	if gateResult != nil {
		// Gating resolved the job itself (no-op upgrade, or throttle defer):
		// report the terminal signal synchronously without ever starting a
		// worker (§4.F step 2).
		m.recordAndReport(req, gateResult)
		return true, nil
	}

	if isMediaClient(m.props) {
		m.events.Emit("IMAGE_FWDNLD_FLASH_INPROGRESS", map[string]string{"firmwareName": req.FirmwareName})
	}

	job := model.FlashJob{
		HandleID:          req.HandleID,
		FirmwareName:      req.FirmwareName,
		TypeOfFirmware:    req.TypeOfFirmware,
		SourceLocation:    location,
		RebootImmediately: req.RebootImmediately,
		Status:            model.FlashInProgress,
	}

	_, err = m.pool.Start(jobs.KindFlash, req.HandleID, req.FirmwareName,
		func(t *tomb.Tomb, setProgress func(pct int)) error {
			return m.runFlash(t, job, setProgress)
		},
		func(pct int) { m.onProgress(req.HandleID, req.FirmwareName, pct) },
		func(finalPct int, err error) { m.onFlashTerminal(req, job, finalPct, err) },
	)
	if err != nil {
		return false, err
	}
	return true, nil
}

// validate implements §4.F step 1.
func (m *Manager) validate(req Request) (location string, err error) {
	if err := m.registry.Validate(req.HandleID); err != nil {
		return "", err
	}
	if req.FirmwareName == "" {
		return "", &rfwerr.InvalidArgsError{Field: "firmwareName", Reason: "must not be empty"}
	}
	if !req.TypeOfFirmware.Valid() {
		return "", &rfwerr.InvalidArgsError{Field: "typeOfFirmware", Reason: "must be PCI, PDRI or PERIPHERAL"}
	}

	location = req.Location
	if location == "" {
		difwPath, ok := m.props.Get("DIFW_PATH")
		if !ok || difwPath == "" {
			return "", &rfwerr.PlatformError{Op: "resolve DIFW_PATH"}
		}
		location = difwPath
	}

	fullPath := filepath.Join(location, req.FirmwareName)
	if _, err := os.Stat(fullPath); err != nil {
		return "", &rfwerr.InvalidArgsError{Field: "location", Reason: "firmware file not present at " + fullPath}
	}
	return location, nil
}

// gateOutcome is non-nil when Gating resolves the request without ever
// entering Flashing (no-upgrade no-op, or a throttle/optout defer).
type gateOutcome struct {
	pct        int
	statusCode int32
	message    string
}

// gate implements §4.F step 2. A non-nil error means the request is
// rejected outright (e.g. a DownloadJob is active); a non-nil gateOutcome
// with a nil error means the job ends without flashing, either as a no-op
// (no upgrade required) or deferred (throttle or delay window), as its
// status code says.
func (m *Manager) gate(req Request) (*gateOutcome, error) {
	if _, busy := m.pool.Active(jobs.KindDownload); busy {
		return nil, &rfwerr.AlreadyInProgressError{Kind: "download"}
	}

	resp, outcome, _ := m.cache.Read()
	haveXconf := outcome == xconfcache.Hit

	switch req.TypeOfFirmware {
	case model.TypePCI:
		if haveXconf && !checkForValidPCIUpgrade(m.running.Version(), resp.FirmwareVersion) {
			return &gateOutcome{pct: 100, statusCode: model.UpdateStatusNoUpgradeRequired, message: "no upgrade required"}, nil
		}
	case model.TypePDRI:
		if haveXconf && !checkPDRIUpgrade(m.running.PdriVersion(), resp.PdriVersion) {
			return &gateOutcome{pct: 100, statusCode: model.UpdateStatusNoUpgradeRequired, message: "no upgrade required"}, nil
		}
	}

	if m.policy.IsThrottleEnabled(req.DeviceName, req.RebootImmediately, req.AppMode) {
		return &gateOutcome{pct: 0, statusCode: model.UpdateStatusDeferred, message: "On-Hold for Optout / Throttle"}, nil
	}

	maintenanceEnabled, _ := m.props.Get("MAINTENANCE_ENABLED")
	if haveXconf && m.policy.IsDelayWindowRequired(resp.DelayDownloadMinutes, maintenanceEnabled == "true", req.TriggerType) {
		return &gateOutcome{pct: 0, statusCode: model.UpdateStatusDeferred, message: "deferred by configured delay window"}, nil
	}

	return nil, nil
}

// checkForValidPCIUpgrade implements §4.F.2's PCI upgrade check: an upgrade
// is valid whenever the cached XConf version differs from what's running.
func checkForValidPCIUpgrade(runningVersion, xconfVersion string) bool {
	return xconfVersion != "" && xconfVersion != runningVersion
}

// checkPDRIUpgrade implements §4.F.2's PDRI upgrade check.
func checkPDRIUpgrade(runningPdri, xconfPdri string) bool {
	return xconfPdri != "" && xconfPdri != runningPdri
}

// isMediaClient classifies the device via DEVICE_TYPE (§6's property list);
// "mediaclient" is the value this implementation treats as a media client.
func isMediaClient(props DeviceProperties) bool {
	v, ok := props.Get("DEVICE_TYPE")
	return ok && v == "mediaclient"
}

// isPlatco reports whether DEVICE_TYPE marks this device as a PLATCO unit
// (§4.F.4/§4.F.5's PLATCO-specific branches).
func isPlatco(props DeviceProperties) bool {
	v, ok := props.Get("DEVICE_TYPE")
	return ok && v == "PLATCO"
}

// runFlash implements §4.F step 3: invoke the platform flasher and report
// best-effort progress, since the flasher exposes no finer granularity
// (§4.F.3: "emit 0%->50% on start, 50% mid-run, 100% on success").
func (m *Manager) runFlash(t *tomb.Tomb, job model.FlashJob, setProgress func(pct int)) error {
	select {
	case <-t.Dying():
		return t.Err()
	default:
	}
	setProgress(0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-t.Dying():
			cancel()
		case <-ctx.Done():
		}
	}()

	setProgress(50)

	rebootFlag := "false"
	if job.RebootImmediately {
		rebootFlag = "true"
	}
	proto := "http"
	if err := m.flasher.Flash(ctx, proto, "", job.SourceLocation, job.FirmwareName, rebootFlag, job.TypeOfFirmware); err != nil {
		return err
	}

	setProgress(100)
	return nil
}

func (m *Manager) onFlashTerminal(req Request, job model.FlashJob, finalPct int, err error) {
	if err != nil {
		m.status.Append(model.FwDownloadStatusRecord{
			Method:        "flash",
			Status:        "FAILED",
			FailureReason: err.Error(),
			DnldVersn:     job.FirmwareName,
			FwUpdateState: "Error",
		}, job.TypeOfFirmware == model.TypePDRI)
		m.onTerminal(req.HandleID, req.FirmwareName, finalPct, model.UpdateStatusError, err.Error())
		return
	}

	m.postFlash(req, job)

	if job.TypeOfFirmware == model.TypePCI && req.RebootImmediately {
		m.rebootPolicy(req)
	}

	m.status.Append(model.FwDownloadStatusRecord{
		Method:        "flash",
		Status:        "COMPLETED",
		DnldVersn:     job.FirmwareName,
		FwUpdateState: "Completed",
	}, job.TypeOfFirmware == model.TypePDRI)
	m.onTerminal(req.HandleID, req.FirmwareName, 100, model.UpdateStatusCompleted, "OK")
}

// postFlash implements §4.F.4, success-only and PCI-only.
func (m *Manager) postFlash(req Request, job model.FlashJob) {
	if job.TypeOfFirmware != model.TypePCI {
		return
	}

	m.events.Emit("IMAGE_FWDNLD_FLASH_COMPLETE", map[string]string{"firmwareName": req.FirmwareName})

	firmwarePath := filepath.Join(job.SourceLocation, req.FirmwareName)
	if err := os.Remove(firmwarePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.log.Warnw("failed to remove downloaded firmware artifact", "path", firmwarePath, "err", err)
	}
	headerPath := firmwarePath + ".sha256"
	if err := os.Remove(headerPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.log.Warnw("failed to remove firmware header artifact", "path", headerPath, "err", err)
	}

	if isPlatco(m.props) {
		if lockPath, ok := m.props.Get("STAGE2LOCKFILE"); ok && lockPath != "" {
			if _, err := os.Stat(lockPath); errors.Is(err, os.ErrNotExist) {
				if werr := touchFile(lockPath); werr != nil {
					m.log.Errorw("failed to program stage 2 security artifact", "err", werr)
				}
			}
		}
	}

	if err := m.policy.ClearStateRed(); err != nil {
		m.log.Warnw("failed to clear state red after successful flash", "err", err)
	}

	m.maybeInvokeRdmBundleManager()
}

// maybeInvokeRdmBundleManager implements SPEC_FULL.md §12's supplemented
// RDM bundle manager hook: invoked only when the cached XConf response
// carries an rdm_catalogue_version different from the last one this daemon
// applied, persisted via the same atomic-rename discipline as the XConf
// cache itself.
func (m *Manager) maybeInvokeRdmBundleManager() {
	if m.bundleMgr == nil || m.rdmVersionPath == "" {
		return
	}
	resp, outcome, _ := m.cache.Read()
	if outcome != xconfcache.Hit || resp.RdmCatalogueVersion == "" {
		return
	}

	persisted, _ := os.ReadFile(m.rdmVersionPath)
	if string(persisted) == resp.RdmCatalogueVersion {
		return
	}

	if err := m.bundleMgr.Invoke(context.Background(), "main", resp.RdmCatalogueVersion); err != nil {
		m.log.Errorw("rdm bundle manager invocation failed", "version", resp.RdmCatalogueVersion, "err", err)
		return
	}

	if err := writeFileAtomic(m.rdmVersionPath, []byte(resp.RdmCatalogueVersion)); err != nil {
		m.log.Warnw("failed to persist applied rdm catalogue version", "err", err)
	}
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// rebootPolicy implements §4.F.5, success-only, PCI-only, reboot_immediately
// true.
func (m *Manager) rebootPolicy(req Request) {
	ctx := context.Background()
	checkNow, _ := m.props.Get("XCONF_CHECK_NOW")

	if checkNow == "CANARY" && req.TriggerType == TriggerCanary {
		if m.power != nil && m.power.IsOn() {
			m.events.Emit("DEFER_CANARY_REBOOT", map[string]string{"firmwareName": req.FirmwareName})
			return
		}
		if m.telemetry != nil {
			if err := m.telemetry.UploadReport(ctx); err != nil {
				m.log.Errorw("telemetry upload failed, aborting canary reboot", "err", err)
				return
			}
		}
		if err := m.rebooter.Reboot(ctx, "CANARY_Update", "scheduled canary reboot"); err != nil {
			m.log.Errorw("canary reboot failed", "err", err)
		}
		return
	}

	maintenanceEnabled, _ := m.props.Get("MAINTENANCE_ENABLED")
	if maintenanceEnabled == "true" {
		if isPlatco(m.props) {
			m.events.Emit("FW_STATE_CRITICAL_REBOOT", map[string]string{"firmwareName": req.FirmwareName})
			time.Sleep(m.criticalRebootDelay)
			if err := m.rebooter.Reboot(ctx, "critical_maintenance", "critical reboot timer elapsed"); err != nil {
				m.log.Errorw("critical maintenance reboot failed", "err", err)
			}
			return
		}
		m.events.Emit("MAINT_REBOOT_REQUIRED", map[string]string{"firmwareName": req.FirmwareName})
		if err := m.enforceOptOut(); err != nil {
			m.log.Errorw("failed to rewrite opt-out file", "err", err)
		}
		return
	}

	m.events.Emit("RebootPendingNotification", map[string]string{"firmwareName": req.FirmwareName})
	time.Sleep(m.rebootDelay)
	if err := m.rebooter.Reboot(ctx, "firmware_update", "post-flash reboot"); err != nil {
		m.log.Errorw("post-flash reboot failed", "err", err)
	}
}

// enforceOptOut rewrites the opt-out file's softwareoptout value from
// BYPASS_OPTOUT to ENFORCE_OPTOUT (§4.F.5), using the same
// write-temp-then-rename discipline as every other on-disk artifact in
// this daemon.
func (m *Manager) enforceOptOut() error {
	if m.optOutPath == "" {
		return nil
	}
	data, err := os.ReadFile(m.optOutPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	rewritten := replaceOptOutValue(string(data), "ENFORCE_OPTOUT")
	return writeFileAtomic(m.optOutPath, []byte(rewritten))
}

// replaceOptOutValue rewrites a "softwareoptout=BYPASS_OPTOUT" line's value
// to to, leaving every other line (including any other softwareoptout
// value) untouched.
func replaceOptOutValue(content, to string) string {
	const prefix = "softwareoptout="
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == prefix+"BYPASS_OPTOUT" {
			lines[i] = prefix + to
		}
	}
	return strings.Join(lines, "\n")
}

func touchFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

func (m *Manager) recordAndReport(req Request, outcome *gateOutcome) {
	m.status.Append(model.FwDownloadStatusRecord{
		Method:        "flash",
		Status:        statusLabel(outcome.statusCode),
		DnldVersn:     req.FirmwareName,
		FwUpdateState: statusLabel(outcome.statusCode),
	}, req.TypeOfFirmware == model.TypePDRI)
	m.onTerminal(req.HandleID, req.FirmwareName, outcome.pct, outcome.statusCode, outcome.message)
}

func statusLabel(code int32) string {
	switch code {
	case model.UpdateStatusNoUpgradeRequired:
		return "NO_UPGRADE_REQUIRED"
	case model.UpdateStatusDeferred:
		return "Deferred"
	case model.UpdateStatusCompleted:
		return "Completed"
	default:
		return fmt.Sprintf("status_%d", code)
	}
}
