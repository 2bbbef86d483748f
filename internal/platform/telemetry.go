package platform

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
)

// HTTPTelemetryUploader posts an empty trigger request to a telemetry
// collection endpoint, satisfying the CANARY reboot path's "upload a
// telemetry report; if that fails, abort reboot" requirement (§4.F.5). The
// spec names the requirement but not a wire format, so this is the
// smallest thing a real collector could plausibly expect: an empty POST
// whose status code is the whole signal.
type HTTPTelemetryUploader struct {
	URL    string
	Client *http.Client
}

func NewHTTPTelemetryUploader(url string) *HTTPTelemetryUploader {
	return &HTTPTelemetryUploader{URL: url, Client: &http.Client{}}
}

func (u *HTTPTelemetryUploader) UploadReport(ctx context.Context) error {
	if u.URL == "" {
		return fmt.Errorf("telemetry endpoint not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.URL, bytes.NewReader(nil))
	if err != nil {
		return err
	}
	resp, err := u.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("telemetry upload failed: status %d", resp.StatusCode)
	}
	return nil
}
