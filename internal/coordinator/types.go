package coordinator

import "github.com/rdkcentral/rdkfwupdater-sub002/internal/model"

// CheckResult is the payload shape shared by CheckForUpdate's immediate
// reply and the CheckForUpdateComplete signal (§4.C, §6). The bus adapter
// is responsible for picking which of the two wire shapes to use.
type CheckResult struct {
	CurrentVersion   string
	AvailableVersion string
	UpdateDetails    string
	StatusMessage    string
	StatusCode       int32
}

// DeviceMetadataProvider gathers the device metadata the fetch worker
// submits to XConf (§4.C step 3): eSTB MAC, firmware version, model,
// partner id, OS class, account id, experience, serial, local UTC time,
// installed bundles, RDM manifest, timezone, capabilities.
type DeviceMetadataProvider interface {
	Gather() (map[string]string, error)
}

// RunningFirmware reports the firmware identity actually running on the
// device, used to compute the status-code mapping in §4.C's table.
type RunningFirmware interface {
	Version() string
	ModelToken() string
	LastDownloadedVersion() string
}

// Fetcher performs the single outbound XConf HTTP request per fetch cycle
// (§8: "only one outbound XConf HTTP request is active at any moment").
type Fetcher interface {
	Fetch(meta map[string]string) (*model.XConfResponse, error)
}
