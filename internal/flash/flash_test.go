package flash

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/tomb.v2"

	"github.com/rdkcentral/rdkfwupdater-sub002/internal/handleregistry"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/jobs"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/model"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/platform"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/policy"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/statuswriter"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/xconfcache"
)

type fakeProps struct {
	mu     sync.Mutex
	values map[string]string
}

func (f *fakeProps) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok
}

type fakeRunning struct {
	version string
	pdri    string
}

func (f fakeRunning) Version() string     { return f.version }
func (f fakeRunning) PdriVersion() string { return f.pdri }

type fakeEvents struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeEvents) Emit(event string, attrs map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeEvents) has(event string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e == event {
			return true
		}
	}
	return false
}

type terminalCall struct {
	handleID     uint64
	firmwareName string
	pct          int
	statusCode   int32
	message      string
}

type harness struct {
	mgr       *Manager
	reg       *handleregistry.Registry
	pool      *jobs.Pool
	cache     *xconfcache.Cache
	props     *fakeProps
	events    *fakeEvents
	difwDir   string
	terminals chan terminalCall
}

func newHarness(t *testing.T, policyCfg policy.Config) *harness {
	t.Helper()
	log := zap.NewNop().Sugar()
	reg := handleregistry.New(log, nil)
	pool := jobs.New(log, 5*time.Millisecond, 5*time.Millisecond)
	cache := xconfcache.New(filepath.Join(t.TempDir(), "xconf.json"), time.Hour, log)
	props := &fakeProps{values: map[string]string{}}
	policyCfg.StateRedFlagPath = filepath.Join(t.TempDir(), "state_red")
	pol := policy.New(policyCfg, props, log)
	status := statuswriter.New(statuswriter.Paths{Normal: filepath.Join(t.TempDir(), "status.log")}, log)
	events := &fakeEvents{}

	difwDir := t.TempDir()
	props.values["DIFW_PATH"] = difwDir

	flasherScript := filepath.Join(t.TempDir(), "flasher.sh")
	writeScript(t, flasherScript, "#!/bin/sh\nexit 0\n")
	rebooterScript := filepath.Join(t.TempDir(), "reboot.sh")
	writeScript(t, rebooterScript, "#!/bin/sh\nexit 0\n")

	h := &harness{
		reg:       reg,
		pool:      pool,
		cache:     cache,
		props:     props,
		events:    events,
		difwDir:   difwDir,
		terminals: make(chan terminalCall, 16),
	}

	h.mgr = New(
		log, reg, pool, cache, pol, props,
		platform.NewFlasher(flasherScript),
		platform.NewRebooter(rebooterScript),
		status, events, nil, nil,
		fakeRunning{version: "1.0", pdri: "1.0"},
		"",
		func(handleID uint64, firmwareName string, pct int) {},
		func(handleID uint64, firmwareName string, pct int, statusCode int32, message string) {
			h.terminals <- terminalCall{handleID, firmwareName, pct, statusCode, message}
		},
		WithRebootDelays(10*time.Millisecond, 10*time.Millisecond),
	)
	return h
}

func writeScript(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o755))
}

func stageFirmwareFile(t *testing.T, h *harness, name string) string {
	t.Helper()
	p := filepath.Join(h.difwDir, name)
	require.NoError(t, os.WriteFile(p, []byte("fw"), 0o644))
	return p
}

func TestFlashSuccessReportsCompletion(t *testing.T) {
	h := newHarness(t, policy.Config{})
	id, err := h.reg.Register("app", "1.0", "caller")
	require.NoError(t, err)

	firmwarePath := stageFirmwareFile(t, h, "image.bin")

	willSignal, err := h.mgr.Start(Request{
		HandleID:       id,
		FirmwareName:   "image.bin",
		TypeOfFirmware: model.TypePCI,
	})
	require.NoError(t, err)
	assert.True(t, willSignal)

	select {
	case term := <-h.terminals:
		assert.Equal(t, model.UpdateStatusCompleted, term.statusCode)
		assert.Equal(t, 100, term.pct)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for terminal signal")
	}

	assert.True(t, h.events.has("IMAGE_FWDNLD_FLASH_COMPLETE"))
	_, err = os.Stat(firmwarePath)
	assert.True(t, os.IsNotExist(err), "firmware artifact should be removed after PostFlash")
}

func TestFlashRejectsMissingFirmwareFile(t *testing.T) {
	h := newHarness(t, policy.Config{})
	id, err := h.reg.Register("app", "1.0", "caller")
	require.NoError(t, err)

	_, err = h.mgr.Start(Request{HandleID: id, FirmwareName: "missing.bin", TypeOfFirmware: model.TypePCI})
	assert.Error(t, err)
}

func TestFlashRejectsWhileDownloadActive(t *testing.T) {
	h := newHarness(t, policy.Config{})
	id, err := h.reg.Register("app", "1.0", "caller")
	require.NoError(t, err)
	stageFirmwareFile(t, h, "image.bin")

	block := make(chan struct{})
	defer close(block)
	_, err = h.pool.Start(jobs.KindDownload, id, "other.bin",
		func(tmb *tomb.Tomb, setProgress func(pct int)) error {
			<-block
			return nil
		},
		func(pct int) {}, func(finalPct int, err error) {})
	require.NoError(t, err)

	_, err = h.mgr.Start(Request{HandleID: id, FirmwareName: "image.bin", TypeOfFirmware: model.TypePCI})
	assert.Error(t, err)
}

func TestFlashNoUpgradeRequiredIsSuccessfulNoOp(t *testing.T) {
	h := newHarness(t, policy.Config{})
	id, err := h.reg.Register("app", "1.0", "caller")
	require.NoError(t, err)
	stageFirmwareFile(t, h, "image.bin")

	require.NoError(t, h.cache.Write(&model.XConfResponse{
		FirmwareVersion: "1.0", // matches fakeRunning{version: "1.0"}: no upgrade needed
		FirmwareFile:    "image.bin",
		FetchedAt:       time.Now(),
	}))

	willSignal, err := h.mgr.Start(Request{
		HandleID:       id,
		FirmwareName:   "image.bin",
		TypeOfFirmware: model.TypePCI,
	})
	require.NoError(t, err)
	assert.True(t, willSignal)

	select {
	case term := <-h.terminals:
		assert.Equal(t, model.UpdateStatusNoUpgradeRequired, term.statusCode)
		assert.Equal(t, 100, term.pct)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
	assert.False(t, h.events.has("IMAGE_FWDNLD_FLASH_INPROGRESS"), "no worker should ever have started")
}

func TestFlashThrottleDefersJob(t *testing.T) {
	h := newHarness(t, policy.Config{ThrottleEnabled: true})
	id, err := h.reg.Register("app", "1.0", "caller")
	require.NoError(t, err)
	stageFirmwareFile(t, h, "image.bin")

	willSignal, err := h.mgr.Start(Request{
		HandleID:          id,
		FirmwareName:      "image.bin",
		TypeOfFirmware:    model.TypePCI,
		AppMode:           "video-playing",
		RebootImmediately: false,
	})
	require.NoError(t, err)
	assert.True(t, willSignal)

	select {
	case term := <-h.terminals:
		assert.Equal(t, model.UpdateStatusDeferred, term.statusCode)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
	assert.False(t, h.events.has("IMAGE_FWDNLD_FLASH_COMPLETE"))
}
