package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPowerStateIsOnReadsProperty(t *testing.T) {
	props := NewDeviceProperties(map[string]string{"POWER_STATE": "ON"})
	assert.True(t, NewPowerState(props).IsOn())

	props.Set("POWER_STATE", "STANDBY")
	assert.False(t, NewPowerState(props).IsOn())
}

func TestPowerStateIsOnDefaultsFalseWhenAbsent(t *testing.T) {
	assert.False(t, NewPowerState(NewDeviceProperties(nil)).IsOn())
}

func TestHTTPTelemetryUploaderSucceedsOn2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	u := NewHTTPTelemetryUploader(srv.URL)
	require.NoError(t, u.UploadReport(context.Background()))
}

func TestHTTPTelemetryUploaderFailsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	u := NewHTTPTelemetryUploader(srv.URL)
	assert.Error(t, u.UploadReport(context.Background()))
}

func TestHTTPTelemetryUploaderRejectsUnconfiguredEndpoint(t *testing.T) {
	u := NewHTTPTelemetryUploader("")
	assert.Error(t, u.UploadReport(context.Background()))
}
