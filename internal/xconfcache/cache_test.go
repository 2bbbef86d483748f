package xconfcache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rdkcentral/rdkfwupdater-sub002/internal/model"
)

func newTestCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	dir := t.TempDir()
	return New(filepath.Join(dir, "xconf.json"), ttl, zap.NewNop().Sugar())
}

func TestReadMissingFileReturnsMiss(t *testing.T) {
	c := newTestCache(t, 0)
	resp, outcome, err := c.Read()
	require.NoError(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, Miss, outcome)
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	c := newTestCache(t, time.Hour)
	want := &model.XConfResponse{
		FirmwareVersion: "X.Y.Z-2",
		FirmwareFile:    "fw2.bin",
		FetchedAt:       time.Now(),
	}
	require.NoError(t, c.Write(want))

	got, outcome, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, Hit, outcome)
	assert.Equal(t, want.FirmwareVersion, got.FirmwareVersion)
}

func TestReadCorruptFileReturnsCorrupt(t *testing.T) {
	c := newTestCache(t, 0)
	require.NoError(t, os.MkdirAll(filepath.Dir(c.path), 0o755))
	require.NoError(t, os.WriteFile(c.path, []byte("{not json"), 0o644))

	resp, outcome, err := c.Read()
	assert.Nil(t, resp)
	assert.Equal(t, Corrupt, outcome)
	assert.Error(t, err)
}

func TestReadStaleFileReturnsCorrupt(t *testing.T) {
	c := newTestCache(t, time.Millisecond)
	require.NoError(t, c.Write(&model.XConfResponse{FetchedAt: time.Now().Add(-time.Hour)}))

	resp, outcome, err := c.Read()
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, Corrupt, outcome)
}

func TestZeroTTLAlwaysStale(t *testing.T) {
	c := newTestCache(t, 0)
	require.NoError(t, c.Write(&model.XConfResponse{FetchedAt: time.Now()}))

	_, outcome, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, Corrupt, outcome)
}

func TestInvalidateRemovesFile(t *testing.T) {
	c := newTestCache(t, time.Hour)
	require.NoError(t, c.Write(&model.XConfResponse{FetchedAt: time.Now()}))

	require.NoError(t, c.Invalidate())

	_, outcome, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, Miss, outcome)

	// Invalidating an already-missing file is not an error.
	require.NoError(t, c.Invalidate())
}

func TestWriteIsAtomicNoTempFileLeftBehind(t *testing.T) {
	c := newTestCache(t, time.Hour)
	require.NoError(t, c.Write(&model.XConfResponse{FetchedAt: time.Now()}))

	entries, err := os.ReadDir(filepath.Dir(c.path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(c.path), entries[0].Name())
}
