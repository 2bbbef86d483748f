package download

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rdkcentral/rdkfwupdater-sub002/internal/handleregistry"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/jobs"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/model"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/policy"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/statuswriter"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/xconfcache"
)

type fakeProps struct {
	values map[string]string
}

func (f fakeProps) Get(key string) (string, bool) {
	v, ok := f.values[key]
	return v, ok
}

type harness struct {
	mgr      *Manager
	reg      *handleregistry.Registry
	progress chan int
	errs     chan string
}

func newHarness(t *testing.T, difwPath string) *harness {
	t.Helper()
	log := zap.NewNop().Sugar()
	reg := handleregistry.New(log, nil)
	pool := jobs.New(log, 5*time.Millisecond, 5*time.Millisecond)
	cache := xconfcache.New(filepath.Join(t.TempDir(), "xconf.json"), time.Hour, log)
	pol := policy.New(policy.Config{}, fakeProps{}, log)
	status := statuswriter.New(statuswriter.Paths{Normal: filepath.Join(t.TempDir(), "status.log")}, log)

	h := &harness{
		reg:      reg,
		progress: make(chan int, 64),
		errs:     make(chan string, 8),
	}

	h.mgr = New(log, reg, pool, cache, pol, fakeProps{values: map[string]string{"DIFW_PATH": difwPath}}, status,
		func(handleID uint64, firmwareName string, pct int) { h.progress <- pct },
		func(handleID uint64, firmwareName, status, message string) { h.errs <- message },
		nil,
	)
	return h
}

func TestDownloadSuccessStagesFileAndReportsCompletion(t *testing.T) {
	payload := strings.Repeat("x", 128*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	difwDir := t.TempDir()
	h := newHarness(t, difwDir)

	id, err := h.reg.Register("app", "1.0", "caller")
	require.NoError(t, err)

	willSignal, err := h.mgr.Start(Request{
		HandleID:       id,
		FirmwareName:   "image.bin",
		DownloadURL:    srv.URL,
		URLProvided:    true,
		TypeOfFirmware: model.TypePCI,
	})
	require.NoError(t, err)
	assert.True(t, willSignal)

	stagedPath := filepath.Join(difwDir, "image.bin")
	require.Eventually(t, func() bool {
		select {
		case msg := <-h.errs:
			t.Fatalf("unexpected download error: %s", msg)
		default:
		}
		data, err := os.ReadFile(stagedPath)
		return err == nil && len(data) == len(payload)
	}, 5*time.Second, 10*time.Millisecond)

	data, err := os.ReadFile(stagedPath)
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))
}

func TestDownloadRejectsEmptyFirmwareName(t *testing.T) {
	h := newHarness(t, t.TempDir())
	id, err := h.reg.Register("app", "1.0", "caller")
	require.NoError(t, err)

	_, err = h.mgr.Start(Request{HandleID: id, FirmwareName: "", TypeOfFirmware: model.TypePCI, URLProvided: true, DownloadURL: "http://x"})
	assert.Error(t, err)
}

func TestDownloadRejectsEmptyProvidedURL(t *testing.T) {
	h := newHarness(t, t.TempDir())
	id, err := h.reg.Register("app", "1.0", "caller")
	require.NoError(t, err)

	_, err = h.mgr.Start(Request{HandleID: id, FirmwareName: "f.bin", TypeOfFirmware: model.TypePCI, URLProvided: true, DownloadURL: ""})
	assert.Error(t, err)
}

func TestDownloadRejectsPathThatWouldTruncate(t *testing.T) {
	h := newHarness(t, t.TempDir())
	id, err := h.reg.Register("app", "1.0", "caller")
	require.NoError(t, err)

	longName := strings.Repeat("a", maxStagingPathLen+10) + ".bin"
	_, err = h.mgr.Start(Request{HandleID: id, FirmwareName: longName, TypeOfFirmware: model.TypePCI, URLProvided: true, DownloadURL: "http://x"})
	assert.Error(t, err)
}

func TestDownloadFailsOnNon2xxStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	h := newHarness(t, t.TempDir())
	id, err := h.reg.Register("app", "1.0", "caller")
	require.NoError(t, err)

	willSignal, err := h.mgr.Start(Request{
		HandleID: id, FirmwareName: "f.bin", URLProvided: true, DownloadURL: srv.URL, TypeOfFirmware: model.TypePCI,
	})
	require.NoError(t, err)
	assert.True(t, willSignal)

	select {
	case msg := <-h.errs:
		assert.Contains(t, msg, "404")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for error")
	}
}

func TestDownloadRejectsSecondConcurrentJob(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
		w.Write([]byte("done"))
	}))
	defer srv.Close()

	h := newHarness(t, t.TempDir())
	id1, err := h.reg.Register("app1", "1.0", "caller1")
	require.NoError(t, err)
	id2, err := h.reg.Register("app2", "1.0", "caller2")
	require.NoError(t, err)

	_, err = h.mgr.Start(Request{HandleID: id1, FirmwareName: "f1.bin", URLProvided: true, DownloadURL: srv.URL, TypeOfFirmware: model.TypePCI})
	require.NoError(t, err)

	_, err = h.mgr.Start(Request{HandleID: id2, FirmwareName: "f2.bin", URLProvided: true, DownloadURL: srv.URL, TypeOfFirmware: model.TypePCI})
	assert.Error(t, err)

	close(block)
}
