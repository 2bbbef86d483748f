// Package profiler gates CPU and blocked-sync-primitive profiling behind
// the PROF environment variable, so a field build can capture a profile of
// the daemon's startup or shutdown path without a code change.
package profiler

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"go.uber.org/zap"
)

var (
	cpuProfile   *os.File
	blockProfile *os.File
	deltaStart   time.Time
	profMode     string
)

func init() {
	profMode = os.Getenv("PROF")
	if profMode == "" {
		profMode = "none"
	}
}

// StartupStartMarker enables profiling before startup for both the
// "startup" and "all" modes.
func StartupStartMarker(log *zap.SugaredLogger) {
	if profMode == "startup" || profMode == "all" {
		start(log)
	}
}

// StartupStopMarker disables startup profiling if "startup" mode was
// selected.
func StartupStopMarker(log *zap.SugaredLogger) {
	if profMode == "startup" {
		stop(log)
	}
}

// ShutdownStartMarker enables profiling if "shutdown" mode was selected.
func ShutdownStartMarker(log *zap.SugaredLogger) {
	if profMode == "shutdown" {
		start(log)
	}
}

// ShutdownStopMarker stops profiling if either "shutdown" or "all" mode
// was selected.
func ShutdownStopMarker(log *zap.SugaredLogger) {
	if profMode == "shutdown" || profMode == "all" {
		stop(log)
	}
}

func start(log *zap.SugaredLogger) {
	runtime.SetBlockProfileRate(1)

	var err error
	cpuProfile, err = os.Create(fmt.Sprintf("cpu-%s.pprof", profMode))
	if err != nil {
		log.Warnw("cannot create cpu profile file", "err", err)
		return
	}
	if err := pprof.StartCPUProfile(cpuProfile); err != nil {
		log.Warnw("cannot start cpu profile recording", "err", err)
		return
	}
	deltaStart = time.Now()
}

func stop(log *zap.SugaredLogger) {
	var err error
	blockProfile, err = os.Create(fmt.Sprintf("block-%s.pprof", profMode))
	if err != nil {
		log.Warnw("cannot create block profile file", "err", err)
	} else {
		pprof.Lookup("block").WriteTo(blockProfile, 0)
		blockProfile.Close()
	}

	pprof.StopCPUProfile()
	cpuProfile.Close()

	log.Infow("profiling stopped", "mode", profMode, "elapsed", time.Since(deltaStart))
}
