package platform

import (
	"context"

	"github.com/rdkcentral/rdkfwupdater-sub002/internal/rfwerr"
)

// Rebooter invokes `sh /rebootNow.sh -s <reason> -o <message>` (§6).
type Rebooter struct {
	ScriptPath string
}

func NewRebooter(scriptPath string) *Rebooter {
	return &Rebooter{ScriptPath: scriptPath}
}

func (r *Rebooter) Reboot(ctx context.Context, reason, message string) error {
	_, err := SecureExec(ctx, "sh", r.ScriptPath, "-s", reason, "-o", message)
	if err != nil {
		return &rfwerr.PlatformError{Op: "rebootNow.sh", ExitErr: err}
	}
	return nil
}

// BundleManager invokes `sh /etc/rdm/rdmBundleMgr.sh <bundle> <url>` (§6),
// the RDM bundle manager hook (§12 supplemented feature).
type BundleManager struct {
	ScriptPath string
}

func NewBundleManager(scriptPath string) *BundleManager {
	return &BundleManager{ScriptPath: scriptPath}
}

func (b *BundleManager) Invoke(ctx context.Context, bundle, url string) error {
	_, err := SecureExec(ctx, "sh", b.ScriptPath, bundle, url)
	if err != nil {
		return &rfwerr.PlatformError{Op: "rdmBundleMgr.sh", ExitErr: err}
	}
	return nil
}
