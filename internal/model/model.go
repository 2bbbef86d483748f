// Package model holds the data-model entities shared across the daemon's
// components, per §3 of the specification. Types here carry no behavior
// beyond small invariant helpers; the components in internal/handleregistry,
// internal/coordinator, internal/download and internal/flash own the state
// machines that mutate them.
package model

import "time"

// TypeOfFirmware classifies a firmware image (§3).
type TypeOfFirmware string

const (
	TypePCI        TypeOfFirmware = "PCI"
	TypePDRI       TypeOfFirmware = "PDRI"
	TypePeripheral TypeOfFirmware = "PERIPHERAL"
)

func (t TypeOfFirmware) Valid() bool {
	switch t {
	case TypePCI, TypePDRI, TypePeripheral:
		return true
	default:
		return false
	}
}

// ClientHandle is a registered client session (§3 "ClientHandle").
type ClientHandle struct {
	HandleID       uint64
	ProcessName    string
	LibVersion     string
	CallerIdentity string
	RegisteredAt   time.Time
}

// XConfResponse is the cached remote-catalog response (§3 "XConfResponse").
type XConfResponse struct {
	FirmwareFile             string            `json:"firmware_file"`
	FirmwareLocation         string            `json:"firmware_location"`
	Ipv6FirmwareLocation     string            `json:"ipv6_firmware_location"`
	FirmwareVersion          string            `json:"firmware_version"`
	FirmwareDownloadProtocol string            `json:"firmware_download_protocol"`
	RebootImmediately        string            `json:"reboot_immediately"` // "true" | "false"
	DelayDownloadMinutes     int                `json:"delay_download_minutes"`
	PdriVersion              string            `json:"pdri_version,omitempty"`
	PeripheralFirmwares      map[string]string `json:"peripheral_firmwares,omitempty"`
	DlCertBundle             string            `json:"dl_cert_bundle,omitempty"`
	RdmCatalogueVersion      string            `json:"rdm_catalogue_version,omitempty"`
	FetchedAt                time.Time         `json:"fetched_at"`
	HttpStatus               int               `json:"http_status"`
}

// RebootImmediatelyBool parses the "true"/"false" wire encoding.
func (x *XConfResponse) RebootImmediatelyBool() bool {
	return x.RebootImmediately == "true"
}

// DownloadStatus is the status enum of a DownloadJob (§3).
type DownloadStatus string

const (
	DownloadNotStarted DownloadStatus = "NotStarted"
	DownloadInProgress DownloadStatus = "InProgress"
	DownloadCompleted  DownloadStatus = "Completed"
	DownloadError      DownloadStatus = "Error"
)

// DownloadJob is keyed by (handle_id, firmware_name) (§3 "DownloadJob").
type DownloadJob struct {
	HandleID       uint64
	FirmwareName   string
	SourceURL      string
	TypeOfFirmware TypeOfFirmware
	StagingPath    string
	ProgressPct    int
	Status         DownloadStatus
	ErrorMessage   string
}

// FlashStatus is the status enum of a FlashJob (§3).
type FlashStatus string

const (
	FlashNotStarted FlashStatus = "NotStarted"
	FlashInProgress FlashStatus = "InProgress"
	FlashCompleted  FlashStatus = "Completed"
	FlashError      FlashStatus = "Error"
)

// PostFlashAction is the reboot-policy outcome selected in §4.F.5.
type PostFlashAction string

const (
	PostFlashNone                 PostFlashAction = "None"
	PostFlashRebootNow            PostFlashAction = "RebootNow"
	PostFlashDeferCanary          PostFlashAction = "DeferCanary"
	PostFlashDeferMaintenance     PostFlashAction = "DeferMaintenance"
	PostFlashCriticalRebootTimer  PostFlashAction = "CriticalRebootTimer"
)

// FlashJob is keyed by (handle_id, firmware_name) (§3 "FlashJob").
type FlashJob struct {
	HandleID          uint64
	FirmwareName      string
	TypeOfFirmware    TypeOfFirmware
	SourceLocation     string
	RebootImmediately bool
	ProgressPct       int
	Status            FlashStatus
	ErrorMessage      string
	PostFlashAction   PostFlashAction
}

// Status codes for CheckForUpdate / CheckForUpdateComplete (§4.C table).
const (
	StatusFirmwareAvailable    int32 = 0
	StatusFirmwareNotAvailable int32 = 1
	StatusFirmwareCheckError   int32 = 2
	StatusUpdateNotAllowed     int32 = 3
	StatusIgnoreOptout         int32 = 4
	StatusBypassOptout         int32 = 5
)

// Status codes carried by the UpdateProgress terminal signal (§4.F, §4.G).
const (
	UpdateStatusCompleted         int32 = 0
	UpdateStatusError             int32 = 1
	UpdateStatusNoUpgradeRequired int32 = 2
	UpdateStatusDeferred          int32 = 3
)

// FwDownloadStatusRecord is one append-only transition record written by
// the Persistent Status Writer (§3 "FwDownloadStatusRecord").
type FwDownloadStatusRecord struct {
	Method         string
	Proto          string
	Status         string
	Reboot         string
	FailureReason  string
	DnldVersn      string
	DnldFile       string
	DnldUrl        string
	LastRun        string
	FwUpdateState  string
	DelayDownload  string
}
