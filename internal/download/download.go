// Package download implements the Download State Machine (§4.E):
// Idle → Validating → Resolving → Downloading → Completed | Error. It rides
// the Worker Pool of internal/jobs for its worker/monitor pair and the
// chunked io.CopyN-with-progress discipline the teacher uses for staged
// uploads (internals/overlord/fwstate/handler.go's doRefreshUpload), adapted
// here to a GET instead of a PUT.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/tomb.v2"

	"github.com/rdkcentral/rdkfwupdater-sub002/internal/handleregistry"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/jobs"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/model"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/policy"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/rfwerr"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/statuswriter"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/xconfcache"
)

// maxStagingPathLen bounds DIFW_PATH/firmware_name the way the original
// daemon's fixed-size path buffer did; a longer result is rejected rather
// than silently truncated (§4.E, §9).
const maxStagingPathLen = 255

const chunkSize = 64 * 1024

// Request is the download_firmware entry point's argument set (§4.E).
type Request struct {
	HandleID       uint64
	FirmwareName   string
	DownloadURL    string // empty + !URLProvided means "use XConf"
	URLProvided    bool
	TypeOfFirmware model.TypeOfFirmware
}

// DeviceProperties exposes the read-only property lookups this state
// machine needs (§6: DIFW_PATH).
type DeviceProperties interface {
	Get(key string) (string, bool)
}

// ProgressFunc reports DownloadProgress (§4.E step 3/4).
type ProgressFunc func(handleID uint64, firmwareName string, pct int)

// ErrorFunc reports a terminal DownloadError (§4.E step 4).
type ErrorFunc func(handleID uint64, firmwareName, status, message string)

// Manager drives the Download State Machine.
type Manager struct {
	log      *zap.SugaredLogger
	registry *handleregistry.Registry
	pool     *jobs.Pool
	cache    *xconfcache.Cache
	policy   *policy.Engine
	props    DeviceProperties
	status   *statuswriter.Writer
	client   *http.Client

	onProgress ProgressFunc
	onError    ErrorFunc
	onFatal    func()
}

func New(
	log *zap.SugaredLogger,
	registry *handleregistry.Registry,
	pool *jobs.Pool,
	cache *xconfcache.Cache,
	policyEngine *policy.Engine,
	props DeviceProperties,
	status *statuswriter.Writer,
	onProgress ProgressFunc,
	onError ErrorFunc,
	onFatal func(),
) *Manager {
	return &Manager{
		log:        log,
		registry:   registry,
		pool:       pool,
		cache:      cache,
		policy:     policyEngine,
		props:      props,
		status:     status,
		client:     &http.Client{},
		onProgress: onProgress,
		onError:    onError,
		onFatal:    onFatal,
	}
}

// Start implements download_firmware (§4.E). The returned bool reports
// whether a terminal signal will later arrive for this handle/firmware.
func (m *Manager) Start(req Request) (bool, error) {
	stagingPath, sourceURL, err := m.validateAndResolve(req)
	if err != nil {
		return false, err
	}

	job := model.DownloadJob{
		HandleID:       req.HandleID,
		FirmwareName:   req.FirmwareName,
		SourceURL:      sourceURL,
		TypeOfFirmware: req.TypeOfFirmware,
		StagingPath:    stagingPath,
		Status:         model.DownloadInProgress,
	}

	usedPath := m.resolvePathKind(sourceURL)

	_, err = m.pool.Start(jobs.KindDownload, req.HandleID, req.FirmwareName,
		func(t *tomb.Tomb, setProgress func(pct int)) error {
			return m.runTransfer(t, job, setProgress)
		},
		func(pct int) {
			m.onProgress(req.HandleID, req.FirmwareName, pct)
		},
		func(finalPct int, err error) {
			m.onTerminal(job, usedPath, finalPct, err)
		},
	)
	if err != nil {
		return false, err
	}
	return true, nil
}

// validateAndResolve implements §4.E steps 1-2 synchronously.
func (m *Manager) validateAndResolve(req Request) (stagingPath, sourceURL string, err error) {
	if err := m.registry.Validate(req.HandleID); err != nil {
		return "", "", err
	}
	if req.FirmwareName == "" {
		return "", "", &rfwerr.InvalidArgsError{Field: "firmwareName", Reason: "must not be empty"}
	}
	if !req.TypeOfFirmware.Valid() {
		return "", "", &rfwerr.InvalidArgsError{Field: "typeOfFirmware", Reason: "must be PCI, PDRI or PERIPHERAL"}
	}
	if req.URLProvided && req.DownloadURL == "" {
		return "", "", &rfwerr.InvalidArgsError{Field: "downloadUrl", Reason: "must not be empty when supplied"}
	}

	difwPath, ok := m.props.Get("DIFW_PATH")
	if !ok || difwPath == "" {
		return "", "", &rfwerr.PlatformError{Op: "resolve DIFW_PATH"}
	}
	stagingPath = filepath.Join(difwPath, req.FirmwareName)
	if len(stagingPath) > maxStagingPathLen {
		return "", "", &rfwerr.InvalidArgsError{Field: "firmwareName", Reason: "staging path would exceed the maximum length"}
	}

	if req.URLProvided {
		return stagingPath, req.DownloadURL, nil
	}

	resp, outcome, _ := m.cache.Read()
	if outcome != xconfcache.Hit {
		return "", "", &rfwerr.InvalidArgsError{Field: "downloadUrl", Reason: "no URL supplied and no cached XConf response to resolve one from"}
	}
	sourceURL = strings.TrimRight(resp.FirmwareLocation, "/") + "/" + resp.FirmwareFile
	return stagingPath, sourceURL, nil
}

// resolvePathKind implements the direct/codebig choice of §4.E step 2,
// consulting the block-file policy so a recently failed path is avoided.
func (m *Manager) resolvePathKind(sourceURL string) policy.RequestType {
	if m.policy.IsDownloadBlocked(policy.RequestDirect) && !m.policy.IsDownloadBlocked(policy.RequestCodebig) {
		return policy.RequestCodebig
	}
	return policy.RequestDirect
}

// runTransfer implements §4.E step 3: GET sourceURL and stream it to
// StagingPath in chunks, reporting progress and honoring cooperative
// cancellation at every chunk boundary (§5).
func (m *Manager) runTransfer(t *tomb.Tomb, job model.DownloadJob, setProgress func(pct int)) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-t.Dying():
			cancel()
		case <-ctx.Done():
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.SourceURL, nil)
	if err != nil {
		return &rfwerr.NetworkError{Message: err.Error()}
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return rfwerr.ClassifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &rfwerr.NetworkError{HttpStatus: resp.StatusCode, Message: fmt.Sprintf("unexpected download status %d", resp.StatusCode)}
	}

	contentLength := resp.ContentLength

	dir := filepath.Dir(job.StagingPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &rfwerr.PlatformError{Op: "create staging directory", ExitErr: err}
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(job.StagingPath)+".part-*")
	if err != nil {
		return &rfwerr.PlatformError{Op: "create staging temp file", ExitErr: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	hasher := sha256.New()
	writer := io.MultiWriter(tmp, hasher)

	var written int64
	for {
		select {
		case <-t.Dying():
			tmp.Close()
			return t.Err()
		default:
		}

		n, cerr := io.CopyN(writer, resp.Body, chunkSize)
		written += n
		if contentLength > 0 {
			setProgress(int(written * 100 / contentLength))
		}
		if cerr != nil {
			if cerr == io.EOF {
				break
			}
			tmp.Close()
			return &rfwerr.NetworkError{Message: "reading download body: " + cerr.Error()}
		}
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &rfwerr.PlatformError{Op: "sync staged firmware", ExitErr: err}
	}
	if err := tmp.Close(); err != nil {
		return &rfwerr.PlatformError{Op: "close staged firmware", ExitErr: err}
	}

	if err := verifyChecksum(job.StagingPath, hex.EncodeToString(hasher.Sum(nil))); err != nil {
		return err
	}

	if err := os.Rename(tmpName, job.StagingPath); err != nil {
		return &rfwerr.PlatformError{Op: "commit staged firmware", ExitErr: err}
	}

	setProgress(100)
	return nil
}

// verifyChecksum implements the optional header-file checksum check of
// §4.E's failure list: a sidecar "<staging_path>.sha256" file, if present,
// must match the bytes just staged.
func verifyChecksum(stagingPath, actual string) error {
	header := stagingPath + ".sha256"
	data, err := os.ReadFile(header)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return &rfwerr.PlatformError{Op: "read checksum header", ExitErr: err}
	}
	expected := strings.TrimSpace(strings.Fields(string(data))[0])
	if !strings.EqualFold(expected, actual) {
		return &rfwerr.PlatformError{Op: "checksum mismatch", ExitErr: fmt.Errorf("expected %s, got %s", expected, actual)}
	}
	return nil
}

func (m *Manager) onTerminal(job model.DownloadJob, usedPath policy.RequestType, finalPct int, err error) {
	if err == nil {
		m.status.Append(model.FwDownloadStatusRecord{
			Method:        "download",
			Status:        "COMPLETED",
			DnldVersn:     job.FirmwareName,
			DnldFile:      job.StagingPath,
			DnldUrl:       job.SourceURL,
			FwUpdateState: "Completed",
		}, job.TypeOfFirmware == model.TypePDRI)
		m.onProgress(job.HandleID, job.FirmwareName, 100)
		return
	}

	var netErr *rfwerr.NetworkError
	if errors.As(err, &netErr) {
		if netErr.IsTlsClass() {
			entered, perr := m.policy.EnterStateRedOnTlsError(netErr.TlsCurlCode)
			if perr != nil {
				m.log.Errorw("failed to enter state red", "err", perr)
			}
			if entered && m.onFatal != nil {
				defer m.onFatal()
			}
		} else {
			if merr := m.policy.MarkBlocked(usedPath); merr != nil {
				m.log.Warnw("failed to mark download path blocked", "path", usedPath, "err", merr)
			}
		}
	}

	m.status.Append(model.FwDownloadStatusRecord{
		Method:        "download",
		Status:        "FAILED",
		FailureReason: err.Error(),
		DnldVersn:     job.FirmwareName,
		DnldFile:      job.StagingPath,
		DnldUrl:       job.SourceURL,
		FwUpdateState: "Error",
	}, job.TypeOfFirmware == model.TypePDRI)

	m.onError(job.HandleID, job.FirmwareName, strconv.Itoa(finalPct), err.Error())
}
