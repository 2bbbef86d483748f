// Package statuswriter implements the Persistent Status Writer (§4.I): it
// appends one human-readable key|value record per firmware-download/update
// state transition, for consumption by external tooling. Writes are
// line-atomic (write-then-flush, never rewritten), matching the teacher's
// discipline of treating a log/status file as append-only rather than a
// rewritable document — the same posture the teacher takes with its notice
// log in internals/overlord/state.
package statuswriter

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/rdkcentral/rdkfwupdater-sub002/internal/model"
)

// Paths bundles the normal and PDRI-alternate status file locations (§4.I).
type Paths struct {
	Normal string
	Pdri   string
}

// Writer serializes concurrent writers per §5 ("Writes to I are serialized
// per job; concurrent jobs write non-interleaved records").
type Writer struct {
	paths Paths
	log   *zap.SugaredLogger

	mu sync.Mutex
}

func New(paths Paths, log *zap.SugaredLogger) *Writer {
	return &Writer{paths: paths, log: log}
}

// Append writes one record. isPdri selects the alternate status path per
// §4.I ("For PDRI vs PCI, writes to the normal or alternate status path").
func (w *Writer) Append(rec model.FwDownloadStatusRecord, isPdri bool) error {
	path := w.paths.Normal
	if isPdri && w.paths.Pdri != "" {
		path = w.paths.Pdri
	}
	if path == "" {
		return nil
	}

	line := formatRecord(rec)

	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		w.log.Errorw("cannot open status file", "path", path, "err", err)
		return err
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		w.log.Errorw("cannot append status record", "path", path, "err", err)
		return err
	}
	return f.Sync()
}

func formatRecord(rec model.FwDownloadStatusRecord) string {
	fields := []struct {
		key, value string
	}{
		{"method", rec.Method},
		{"proto", rec.Proto},
		{"status", rec.Status},
		{"reboot", rec.Reboot},
		{"failureReason", rec.FailureReason},
		{"dnldVersn", rec.DnldVersn},
		{"dnldFile", rec.DnldFile},
		{"dnldUrl", rec.DnldUrl},
		{"lastRun", rec.LastRun},
		{"fwUpdateState", rec.FwUpdateState},
		{"delayDownload", rec.DelayDownload},
	}

	var b strings.Builder
	first := true
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if !first {
			b.WriteByte('|')
		}
		first = false
		fmt.Fprintf(&b, "%s=%s", f.key, f.value)
	}
	b.WriteByte('\n')
	return b.String()
}
