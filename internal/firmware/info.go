// Package firmware reads the identity of the firmware image currently
// running on the device, which the Flash State Machine's Gating phase
// compares against a cached XConf response to decide whether an upgrade is
// actually required (§4.F.2). The on-disk format is a small YAML document
// rather than the snap-style firmware.yaml the teacher parses, but the
// "load once, keep an in-memory struct, offer a Reload for a post-flash
// refresh" shape is the teacher's own (internals/firmware's infoFromFwYaml).
package firmware

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// runningVersions is the on-disk shape of the version file this daemon
// reads at startup (conventionally /version.txt or /etc/fw_version.yaml on
// an RDK device).
type runningVersions struct {
	Version     string `yaml:"version"`
	PdriVersion string `yaml:"pdri_version,omitempty"`
}

// Reader implements flash.FirmwareInfo and coordinator's running-version
// lookups (§4.F.2, §4.C). It caches the parsed file in memory and only
// re-reads it on an explicit Reload, since the file only changes across a
// reboot, not within a single daemon lifetime.
type Reader struct {
	path string

	mu      sync.RWMutex
	current runningVersions
}

// NewReader loads path once at construction. A missing file is not an
// error — it leaves Version()/PdriVersion() returning "", which safely
// degrades to "always treat a cached XConf entry as an available upgrade"
// in the Gating phase's comparison.
func NewReader(path string) (*Reader, error) {
	r := &Reader{path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the version file from disk.
func (r *Reader) Reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			r.mu.Lock()
			r.current = runningVersions{}
			r.mu.Unlock()
			return nil
		}
		return fmt.Errorf("read firmware version file %s: %w", r.path, err)
	}

	var v runningVersions
	if err := yaml.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("parse firmware version file %s: %w", r.path, err)
	}

	r.mu.Lock()
	r.current = v
	r.mu.Unlock()
	return nil
}

// Version returns the running PCI firmware version.
func (r *Reader) Version() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.Version
}

// PdriVersion returns the running PDRI firmware version.
func (r *Reader) PdriVersion() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.PdriVersion
}
