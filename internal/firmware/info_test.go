package firmware

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderParsesVersionFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "version.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1.2.3\npdri_version: 4.5.6\n"), 0o644))

	r, err := NewReader(path)
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", r.Version())
	assert.Equal(t, "4.5.6", r.PdriVersion())
}

func TestReaderMissingFileYieldsEmptyVersions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")
	r, err := NewReader(path)
	require.NoError(t, err)
	assert.Equal(t, "", r.Version())
	assert.Equal(t, "", r.PdriVersion())
}

func TestReaderReloadPicksUpChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "version.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1.0.0\n"), 0o644))

	r, err := NewReader(path)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", r.Version())

	require.NoError(t, os.WriteFile(path, []byte("version: 2.0.0\n"), 0o644))
	require.NoError(t, r.Reload())
	assert.Equal(t, "2.0.0", r.Version())
}
