// Package config loads the daemon's single YAML configuration file (§10.3):
// XConf endpoint/TTL, staging paths, block-file paths/ages,
// maintenance/throttle/state-red/OCSP toggles, and device-property overrides for
// environments without the real platform property store.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk shape, loaded once at startup and never mutated.
type Config struct {
	XConfURL          string            `yaml:"xconf_url"`
	XConfCacheTTL     time.Duration     `yaml:"xconf_cache_ttl"` // 0 per §13's default decision
	PreferCodebig     bool              `yaml:"prefer_codebig"`
	DifwPath          string            `yaml:"difw_path"`
	StagingDir        string            `yaml:"staging_dir"`
	XConfCachePath    string            `yaml:"xconf_cache_path"`
	TelemetryURL      string            `yaml:"telemetry_url"`
	StatusPathNormal  string            `yaml:"status_path_normal"`
	StatusPathPdri    string            `yaml:"status_path_pdri"`
	OptOutPath        string            `yaml:"opt_out_path"`
	RdmVersionPath    string            `yaml:"rdm_version_path"`
	RunningVersionYaml string           `yaml:"running_version_yaml"`

	DirectBlockPath string        `yaml:"direct_block_path"`
	DirectBlockAge  time.Duration `yaml:"direct_block_age"` // 24h per §4.E
	CbBlockPath     string        `yaml:"cb_block_path"`
	CbBlockAge      time.Duration `yaml:"cb_block_age"` // 30m per §4.E
	StateRedFlagPath string       `yaml:"state_red_flag_path"`
	MaintOptOutPath  string       `yaml:"maint_opt_out_path"`

	StateRedSupported bool `yaml:"state_red_supported"`
	OcspEnabled       bool `yaml:"ocsp_enabled"`
	ThrottleEnabled   bool `yaml:"throttle_enabled"`
	MaintenanceEnabled bool `yaml:"maintenance_enabled"`
	ConnectivityCheckURL string `yaml:"connectivity_check_url"`

	FlasherScriptPath  string `yaml:"flasher_script_path"`
	RebooterScriptPath string `yaml:"rebooter_script_path"`
	BundleMgrScriptPath string `yaml:"bundle_mgr_script_path"`

	DeviceProperties map[string]string `yaml:"device_properties"`

	DebugListenAddr string `yaml:"debug_listen_addr"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

// Default returns the configuration used when no file is supplied, holding
// every documented default (§13: XConf TTL 0, §4.E's 24h/30m block ages).
func Default() Config {
	return Config{
		XConfCacheTTL:     0,
		DifwPath:          "/tmp/difw",
		StagingDir:        "/tmp/difw/staging",
		XConfCachePath:    "/opt/xconf_cache.json",
		StatusPathNormal:  "/opt/swupdate_status.conf",
		OptOutPath:        "/opt/swupdate_optout.conf",
		RdmVersionPath:    "/opt/rdm_catalogue_version",
		RunningVersionYaml: "/opt/firmware_version.yaml",
		DirectBlockPath:   "/tmp/.directBlock",
		DirectBlockAge:    24 * time.Hour,
		CbBlockPath:       "/tmp/.cbBlock",
		CbBlockAge:        30 * time.Minute,
		StateRedFlagPath:  "/tmp/.stateRed",
		MaintOptOutPath:   "/tmp/.maintOptOut",
		FlasherScriptPath:  "/lib/rdk/imageFlasher.sh",
		RebooterScriptPath: "/rebootNow.sh",
		BundleMgrScriptPath: "/etc/rdm/rdmBundleMgr.sh",
		DebugListenAddr:   "127.0.0.1:6060",
		LogLevel:          "info",
	}
}

// Load reads and parses path, returning Default() unchanged when path is
// empty (a config file is optional; flags/defaults can run the daemon
// without one).
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}
