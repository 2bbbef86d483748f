// Package devicemeta adapts the platform device-property store and the
// firmware version reader into the two narrow interfaces the Update
// Coordinator needs (coordinator.RunningFirmware, coordinator.
// DeviceMetadataProvider), per §4.C step 3's "eSTB MAC, firmware version,
// model, partner id, OS class, account id, experience, serial, local UTC
// time, installed bundles, RDM manifest, timezone, capabilities" list.
package devicemeta

import (
	"sync"
	"time"

	"github.com/rdkcentral/rdkfwupdater-sub002/internal/firmware"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/platform"
)

// metadataKeys are the device-property lookups forwarded verbatim into the
// XConf submission (§4.C step 3). Properties absent from the store are
// simply omitted rather than erroring, since not every deployment backs
// every key.
var metadataKeys = []string{
	"ESTB_MAC",
	"MODEL_NUM",
	"PARTNER_ID",
	"OS_CLASS",
	"ACCOUNT_ID",
	"EXPERIENCE",
	"SERIAL_NUMBER",
	"TIMEZONE",
	"CAPABILITIES",
	"INSTALLED_BUNDLES",
	"RDM_MANIFEST",
}

// Provider is both a coordinator.RunningFirmware and a
// coordinator.DeviceMetadataProvider.
type Provider struct {
	props   *platform.DeviceProperties
	running *firmware.Reader

	mu                    sync.RWMutex
	lastDownloadedVersion string
}

func New(props *platform.DeviceProperties, running *firmware.Reader) *Provider {
	return &Provider{props: props, running: running}
}

// Version reports the currently running firmware version.
func (p *Provider) Version() string { return p.running.Version() }

// ModelToken reports the device model, used by §4.C's status-code mapping
// to tell a model-specific XConf entry from a generic one.
func (p *Provider) ModelToken() string {
	v, _ := p.props.Get("MODEL_NUM")
	return v
}

// LastDownloadedVersion reports the most recent version this daemon
// downloaded, set by SetLastDownloadedVersion once a download completes.
func (p *Provider) LastDownloadedVersion() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastDownloadedVersion
}

// SetLastDownloadedVersion records a completed download's version, for the
// next CheckForUpdate cycle's "already downloaded, awaiting flash" case.
func (p *Provider) SetLastDownloadedVersion(version string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastDownloadedVersion = version
}

// Gather collects the device metadata submitted with every XConf fetch.
func (p *Provider) Gather() (map[string]string, error) {
	meta := make(map[string]string, len(metadataKeys)+2)
	for _, key := range metadataKeys {
		if v, ok := p.props.Get(key); ok {
			meta[key] = v
		}
	}
	meta["FIRMWARE_VERSION"] = p.running.Version()
	meta["PDRI_VERSION"] = p.running.PdriVersion()
	meta["CURRENT_TIME"] = time.Now().UTC().Format(time.RFC3339)
	return meta, nil
}
