// Package coordinator implements the Update Coordinator (§4.C): a
// single-flight XConf fetch with piggyback waiters. Its locking discipline
// directly answers the known bug flagged in §9.1 — the source's
// IsCheckUpdateInProgress flag was read and written without synchronization;
// here in_flight and waiters are only ever touched while c.mu is held.
package coordinator

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rdkcentral/rdkfwupdater-sub002/internal/handleregistry"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/model"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/policy"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/rfwerr"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/xconfcache"
)

// CompleteFunc delivers the CheckForUpdateComplete signal for one waiter.
// The bus adapter supplies this; the coordinator never touches the bus
// directly (§9: router/coordinator talk through a one-way event sink).
type CompleteFunc func(handleID uint64, result CheckResult)

// Coordinator implements §4.C.
type Coordinator struct {
	log      *zap.SugaredLogger
	cache    *xconfcache.Cache
	registry *handleregistry.Registry
	policy   *policy.Engine
	fetcher  Fetcher
	meta     DeviceMetadataProvider
	running  RunningFirmware
	onFatal  func() // invoked when state-red forces a daemon shutdown (§4.C step 3 failure path)

	onComplete CompleteFunc

	mu       sync.Mutex
	inFlight bool
	waiters  []uint64 // arrival order
}

type Option func(*Coordinator)

func WithOnFatal(f func()) Option {
	return func(c *Coordinator) { c.onFatal = f }
}

func New(
	log *zap.SugaredLogger,
	cache *xconfcache.Cache,
	registry *handleregistry.Registry,
	policyEngine *policy.Engine,
	fetcher Fetcher,
	meta DeviceMetadataProvider,
	running RunningFirmware,
	onComplete CompleteFunc,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		log:        log,
		cache:      cache,
		registry:   registry,
		policy:     policyEngine,
		fetcher:    fetcher,
		meta:       meta,
		running:    running,
		onComplete: onComplete,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// pendingResult is the immediate reply used both for a cold miss and for a
// piggybacking waiter (§4.C step 2).
func pendingResult() CheckResult {
	return CheckResult{
		StatusMessage: "pending",
		StatusCode:    model.StatusFirmwareCheckError,
	}
}

// CheckForUpdate implements §4.C's public operation. The returned bool
// reports whether a terminal CheckForUpdateComplete signal will later
// arrive for handleID.
func (c *Coordinator) CheckForUpdate(handleID uint64) (CheckResult, bool, error) {
	if err := c.registry.Validate(handleID); err != nil {
		return CheckResult{}, false, err
	}

	c.mu.Lock()

	resp, outcome, _ := c.cache.Read()
	if outcome == xconfcache.Hit {
		c.mu.Unlock()
		return c.buildResult(resp), false, nil
	}

	if outcome == xconfcache.Corrupt {
		// Corrupt is treated as Miss; optionally unlink so later readers
		// don't repeatedly pay the parse-failure cost (§4.B).
		_ = c.cache.Invalidate()
	}

	if c.inFlight {
		c.waiters = append(c.waiters, handleID)
		c.mu.Unlock()
		return pendingResult(), true, nil
	}

	c.inFlight = true
	c.waiters = append(c.waiters, handleID)
	c.mu.Unlock()

	go c.runFetchCycle()

	return pendingResult(), true, nil
}

// runFetchCycle is the single fetch worker of §4.C step 3. At most one
// instance ever runs at a time because it is only launched by the caller
// that moved in_flight from false to true under c.mu (the goroutine itself
// starts after that lock is released).
func (c *Coordinator) runFetchCycle() {
	cycleID := uuid.NewString()
	c.log.Infow("starting xconf fetch cycle", "cycleId", cycleID)
	defer c.log.Infow("xconf fetch cycle finished", "cycleId", cycleID)

	meta, metaErr := c.meta.Gather()
	if metaErr != nil {
		c.completeCycle(CheckResult{
			StatusMessage: "cannot gather device metadata: " + metaErr.Error(),
			StatusCode:    model.StatusFirmwareCheckError,
		}, nil)
		return
	}

	if !c.policy.IsConnectedToInternet() {
		c.completeCycle(CheckResult{
			StatusMessage: "not connected to internet",
			StatusCode:    model.StatusFirmwareCheckError,
		}, nil)
		return
	}

	resp, err := c.fetcher.Fetch(meta)
	if err != nil {
		c.handleFetchFailure(err)
		return
	}

	if werr := c.cache.Write(resp); werr != nil {
		c.log.Warnw("xconf cache write failed, proceeding with in-memory result", "err", werr)
	}

	c.completeCycle(c.buildResult(resp), nil)
}

func (c *Coordinator) handleFetchFailure(err error) {
	var netErr *rfwerr.NetworkError
	if errors.As(err, &netErr) && netErr.IsTlsClass() {
		entered, perr := c.policy.EnterStateRedOnTlsError(netErr.TlsCurlCode)
		if perr != nil {
			c.log.Errorw("failed to enter state red", "err", perr)
		}
		if entered {
			c.log.Errorw("entered state red, terminating fetch cycle", "curlCode", netErr.TlsCurlCode)
			if c.onFatal != nil {
				defer c.onFatal()
			}
		}
	}

	c.completeCycle(CheckResult{
		StatusMessage: err.Error(),
		StatusCode:    model.StatusFirmwareCheckError,
	}, err)
}

// completeCycle clears single-flight state and fans out the terminal
// signal to every waiter in stable arrival order (§4.C, §8: "no waiter is
// ever skipped").
func (c *Coordinator) completeCycle(result CheckResult, _ error) {
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.inFlight = false
	c.mu.Unlock()

	for _, handleID := range waiters {
		c.onComplete(handleID, result)
	}
}

// buildResult applies the status-code mapping table of §4.C to a cached or
// freshly fetched XConf response.
func (c *Coordinator) buildResult(resp *model.XConfResponse) CheckResult {
	current := c.running.Version()
	available := resp.FirmwareVersion

	if !strings.Contains(resp.FirmwareFile, c.running.ModelToken()) {
		return CheckResult{
			CurrentVersion:   current,
			AvailableVersion: available,
			UpdateDetails:    resp.FirmwareFile,
			StatusMessage:    "update not allowed: image does not match device model",
			StatusCode:       model.StatusUpdateNotAllowed,
		}
	}

	if available == current || available == c.running.LastDownloadedVersion() {
		return CheckResult{
			CurrentVersion:   current,
			AvailableVersion: available,
			UpdateDetails:    resp.FirmwareFile,
			StatusMessage:    "OK",
			StatusCode:       model.StatusFirmwareNotAvailable,
		}
	}

	return CheckResult{
		CurrentVersion:   current,
		AvailableVersion: available,
		UpdateDetails:    resp.FirmwareFile,
		StatusMessage:    "OK",
		StatusCode:       model.StatusFirmwareAvailable,
	}
}
