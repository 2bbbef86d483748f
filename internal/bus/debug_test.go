package bus

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rdkcentral/rdkfwupdater-sub002/internal/handleregistry"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/jobs"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/xconfcache"
)

func newTestDebugServer(t *testing.T) *DebugServer {
	log := zap.NewNop().Sugar()
	reg := handleregistry.New(log, nil)
	pool := jobs.New(log, 0, 0)
	cache := xconfcache.New(filepath.Join(t.TempDir(), "cache.json"), 0, log)
	return NewDebugServer(log, reg, pool, cache)
}

func TestHandlesEndpointReflectsRegistrations(t *testing.T) {
	s := newTestDebugServer(t)
	_, err := s.registry.Register("myapp", "1.0", ":1.1")
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/handles", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	var handles []map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &handles))
	require.Len(t, handles, 1)
	assert.Equal(t, "myapp", handles[0]["ProcessName"])
}

func TestCacheEndpointReportsMissOnEmptyCache(t *testing.T) {
	s := newTestDebugServer(t)

	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/cache", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, float64(xconfcache.Miss), body["outcome"])
}

func TestJobsEndpointReportsNoActiveJobsInitially(t *testing.T) {
	s := newTestDebugServer(t)

	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/jobs", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "null\n", rr.Body.String())
}
