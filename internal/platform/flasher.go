package platform

import (
	"context"

	"github.com/rdkcentral/rdkfwupdater-sub002/internal/model"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/rfwerr"
)

// Flasher invokes /lib/rdk/imageFlasher.sh, per §6:
//
//	imageFlasher.sh proto server path file reboot_flag pci|pdri
//
// Exit code 0 is success; any non-zero is failure.
type Flasher struct {
	ScriptPath string
}

func NewFlasher(scriptPath string) *Flasher {
	return &Flasher{ScriptPath: scriptPath}
}

// Flash runs the platform flasher synchronously. Callers (the Flash State
// Machine's worker) run this on a job worker goroutine, never on the
// dispatch thread (§5).
func (f *Flasher) Flash(ctx context.Context, proto, serverURL, difwPath, fileBasename, rebootFlag string, kind model.TypeOfFirmware) error {
	var typeArg string
	switch kind {
	case model.TypePCI:
		typeArg = "pci"
	case model.TypePDRI:
		typeArg = "pdri"
	default:
		return &rfwerr.InvalidArgsError{Field: "typeOfFirmware", Reason: "flasher only supports pci/pdri"}
	}

	_, err := SecureExec(ctx, f.ScriptPath, proto, serverURL, difwPath, fileBasename, rebootFlag, typeArg)
	if err != nil {
		return &rfwerr.PlatformError{Op: "imageFlasher.sh", ExitErr: err}
	}
	return nil
}
