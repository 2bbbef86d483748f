package devicemeta

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rdkcentral/rdkfwupdater-sub002/internal/firmware"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/platform"
)

func TestGatherIncludesKnownPropertiesAndFirmwareVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "version.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1.2.3\n"), 0o644))
	running, err := firmware.NewReader(path)
	require.NoError(t, err)

	props := platform.NewDeviceProperties(map[string]string{"MODEL_NUM": "XG1V4", "ESTB_MAC": "aa:bb"})
	p := New(props, running)

	meta, err := p.Gather()
	require.NoError(t, err)
	assert.Equal(t, "XG1V4", meta["MODEL_NUM"])
	assert.Equal(t, "aa:bb", meta["ESTB_MAC"])
	assert.Equal(t, "1.2.3", meta["FIRMWARE_VERSION"])
	assert.Equal(t, "XG1V4", p.ModelToken())
}

func TestLastDownloadedVersionRoundTrips(t *testing.T) {
	p := New(platform.NewDeviceProperties(nil), &firmware.Reader{})
	assert.Equal(t, "", p.LastDownloadedVersion())
	p.SetLastDownloadedVersion("2.0.0")
	assert.Equal(t, "2.0.0", p.LastDownloadedVersion())
}
