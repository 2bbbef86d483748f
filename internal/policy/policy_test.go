package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProps map[string]string

func (f fakeProps) Get(key string) (string, bool) {
	v, ok := f[key]
	return v, ok
}

func newEngine(t *testing.T, cfg Config, props fakeProps) *Engine {
	t.Helper()
	if props == nil {
		props = fakeProps{}
	}
	return New(cfg, props, zap.NewNop().Sugar())
}

func TestIsPdriEnabled(t *testing.T) {
	e := newEngine(t, Config{PdriEnabledPropKey: "PDRI_ENABLED"}, fakeProps{"PDRI_ENABLED": "true"})
	assert.True(t, e.IsPdriEnabled())

	e2 := newEngine(t, Config{PdriEnabledPropKey: "PDRI_ENABLED"}, fakeProps{"PDRI_ENABLED": "false"})
	assert.False(t, e2.IsPdriEnabled())
}

func TestIsInStateRedReflectsFlagFile(t *testing.T) {
	dir := t.TempDir()
	flag := filepath.Join(dir, "state_red")
	e := newEngine(t, Config{StateRedFlagPath: flag, StateRedSupported: true}, nil)

	assert.False(t, e.IsInStateRed())

	entered, err := e.EnterStateRedOnTlsError(60)
	require.NoError(t, err)
	assert.True(t, entered)
	assert.True(t, e.IsInStateRed())

	require.NoError(t, e.ClearStateRed())
	assert.False(t, e.IsInStateRed())
}

func TestEnterStateRedIgnoresNonTlsCodes(t *testing.T) {
	dir := t.TempDir()
	flag := filepath.Join(dir, "state_red")
	e := newEngine(t, Config{StateRedFlagPath: flag, StateRedSupported: true}, nil)

	entered, err := e.EnterStateRedOnTlsError(7) // not in the TLS class list
	require.NoError(t, err)
	assert.False(t, entered)
	assert.False(t, e.IsInStateRed())
}

func TestIsDownloadBlockedHonorsAgeWindow(t *testing.T) {
	dir := t.TempDir()
	directBlock := filepath.Join(dir, "direct_block")
	e := newEngine(t, Config{
		DirectBlockPath: directBlock,
		DirectBlockAge:  24 * time.Hour,
	}, nil)

	assert.False(t, e.IsDownloadBlocked(RequestDirect))

	require.NoError(t, e.MarkBlocked(RequestDirect))
	assert.True(t, e.IsDownloadBlocked(RequestDirect))

	// Simulate the block file aging out.
	old := time.Now().Add(-25 * time.Hour)
	require.NoError(t, os.Chtimes(directBlock, old, old))
	assert.False(t, e.IsDownloadBlocked(RequestDirect))
}

func TestIsThrottleEnabledRequiresVideoPlayingAndNoRebootFlag(t *testing.T) {
	e := newEngine(t, Config{ThrottleEnabled: true}, nil)

	assert.True(t, e.IsThrottleEnabled("dev", false, "video-playing"))
	assert.False(t, e.IsThrottleEnabled("dev", true, "video-playing"))
	assert.False(t, e.IsThrottleEnabled("dev", false, "idle"))

	eDisabled := newEngine(t, Config{ThrottleEnabled: false}, nil)
	assert.False(t, eDisabled.IsThrottleEnabled("dev", false, "video-playing"))
}

func TestIsDelayWindowRequired(t *testing.T) {
	e := newEngine(t, Config{}, nil)

	assert.False(t, e.IsDelayWindowRequired(0, false, 2))
	assert.False(t, e.IsDelayWindowRequired(30, true, 2))
	assert.False(t, e.IsDelayWindowRequired(30, false, 3))
	assert.True(t, e.IsDelayWindowRequired(30, false, 2))
}
