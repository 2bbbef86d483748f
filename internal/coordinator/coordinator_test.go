package coordinator

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rdkcentral/rdkfwupdater-sub002/internal/handleregistry"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/model"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/policy"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/rfwerr"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/xconfcache"
)

type fakeMeta struct{}

func (fakeMeta) Gather() (map[string]string, error) { return map[string]string{"mac": "aa:bb"}, nil }

type fakeRunning struct {
	version     string
	model       string
	lastDownload string
}

func (f fakeRunning) Version() string               { return f.version }
func (f fakeRunning) ModelToken() string             { return f.model }
func (f fakeRunning) LastDownloadedVersion() string { return f.lastDownload }

type fakeFetcher struct {
	mu        sync.Mutex
	calls     int
	resp      *model.XConfResponse
	err       error
	blockUntil chan struct{}
}

func (f *fakeFetcher) Fetch(meta map[string]string) (*model.XConfResponse, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.blockUntil != nil {
		<-f.blockUntil
	}
	return f.resp, f.err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestSetup(t *testing.T, fetcher Fetcher, running RunningFirmware) (*Coordinator, *handleregistry.Registry, chan struct {
	handleID uint64
	result   CheckResult
}) {
	t.Helper()
	log := zap.NewNop().Sugar()
	reg := handleregistry.New(log, nil)
	cache := xconfcache.New(filepath.Join(t.TempDir(), "xconf.json"), time.Hour, log)
	pol := policy.New(policy.Config{}, fakeProps{}, log)

	completions := make(chan struct {
		handleID uint64
		result   CheckResult
	}, 16)

	coord := New(log, cache, reg, pol, fetcher, fakeMeta{}, running, func(handleID uint64, result CheckResult) {
		completions <- struct {
			handleID uint64
			result   CheckResult
		}{handleID, result}
	})

	return coord, reg, completions
}

type fakeProps struct{}

func (fakeProps) Get(key string) (string, bool) { return "", false }

func TestCacheHitReturnsImmediatelyWithNoSignal(t *testing.T) {
	log := zap.NewNop().Sugar()
	reg := handleregistry.New(log, nil)
	cachePath := filepath.Join(t.TempDir(), "xconf.json")
	cache := xconfcache.New(cachePath, time.Hour, log)
	require.NoError(t, cache.Write(&model.XConfResponse{
		FirmwareVersion: "X.Y.Z-2",
		FirmwareFile:    "model1_X.Y.Z-2.bin",
		FetchedAt:       time.Now(),
	}))

	pol := policy.New(policy.Config{}, fakeProps{}, log)
	completions := make(chan struct{}, 1)
	coord := New(log, cache, reg, pol, &fakeFetcher{}, fakeMeta{}, fakeRunning{version: "X.Y.Z-1", model: "model1"},
		func(handleID uint64, result CheckResult) { completions <- struct{}{} })

	id, err := reg.Register("app", "1.0", "caller")
	require.NoError(t, err)

	result, willSignal, err := coord.CheckForUpdate(id)
	require.NoError(t, err)
	assert.False(t, willSignal)
	assert.Equal(t, model.StatusFirmwareAvailable, result.StatusCode)
	assert.Equal(t, "X.Y.Z-1", result.CurrentVersion)
	assert.Equal(t, "X.Y.Z-2", result.AvailableVersion)

	select {
	case <-completions:
		t.Fatal("cache hit must not emit a signal")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestColdMissFanOutDeliversIdenticalPayloadToAllWaiters(t *testing.T) {
	fetcher := &fakeFetcher{
		resp: &model.XConfResponse{FirmwareVersion: "X.Y.Z-2", FirmwareFile: "model1_X.Y.Z-2.bin"},
	}
	coord, reg, completions := newTestSetup(t, fetcher, fakeRunning{version: "X.Y.Z-1", model: "model1"})

	var ids []uint64
	for i := 0; i < 3; i++ {
		id, err := reg.Register(fakeCaller(i), "1.0", fakeCaller(i))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	for _, id := range ids {
		result, willSignal, err := coord.CheckForUpdate(id)
		require.NoError(t, err)
		assert.True(t, willSignal)
		assert.Equal(t, model.StatusFirmwareCheckError, result.StatusCode)
	}

	assert.Equal(t, 1, fetcher.callCount())

	seen := map[uint64]CheckResult{}
	for i := 0; i < 3; i++ {
		select {
		case c := <-completions:
			seen[c.handleID] = c.result
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for completion")
		}
	}

	require.Len(t, seen, 3)
	for _, id := range ids {
		res, ok := seen[id]
		require.True(t, ok, "missing completion for handle %d", id)
		assert.Equal(t, model.StatusFirmwareAvailable, res.StatusCode)
		assert.Equal(t, "X.Y.Z-2", res.AvailableVersion)
	}
}

func fakeCaller(i int) string {
	return "caller-" + string(rune('A'+i))
}

func TestTlsFailureEntersStateRedAndInvokesOnFatal(t *testing.T) {
	fetcher := &fakeFetcher{err: &rfwerr.NetworkError{TlsCurlCode: 60, Message: "cert verify failed"}}

	log := zap.NewNop().Sugar()
	reg := handleregistry.New(log, nil)
	cache := xconfcache.New(filepath.Join(t.TempDir(), "xconf.json"), time.Hour, log)
	stateRedPath := filepath.Join(t.TempDir(), "state_red")
	pol := policy.New(policy.Config{StateRedFlagPath: stateRedPath, StateRedSupported: true}, fakeProps{}, log)

	var fatalCalled bool
	var mu sync.Mutex
	completions := make(chan struct{}, 1)

	coord := New(log, cache, reg, pol, fetcher, fakeMeta{}, fakeRunning{version: "1", model: "m"},
		func(handleID uint64, result CheckResult) { completions <- struct{}{} },
		WithOnFatal(func() {
			mu.Lock()
			fatalCalled = true
			mu.Unlock()
		}))

	id, err := reg.Register("app", "1.0", "caller")
	require.NoError(t, err)

	_, willSignal, err := coord.CheckForUpdate(id)
	require.NoError(t, err)
	assert.True(t, willSignal)

	select {
	case <-completions:
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, fatalCalled)
	assert.True(t, pol.IsInStateRed())
}
