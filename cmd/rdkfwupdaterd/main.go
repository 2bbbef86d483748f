// Command rdkfwupdaterd runs the firmware update daemon: it wires every
// component in internal/ together and exports org.rdkfwupdater.Service on
// the D-Bus system bus (§6).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"
	flags "github.com/jessevdk/go-flags"

	"github.com/rdkcentral/rdkfwupdater-sub002/internal/bus"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/config"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/coordinator"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/daemon"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/devicemeta"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/download"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/firmware"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/flash"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/handleregistry"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/jobs"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/logging"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/platform"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/policy"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/profiler"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/statuswriter"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/xconfcache"
)

type options struct {
	ConfigPath string `short:"c" long:"config" description:"Path to the daemon's YAML configuration file"`
	SessionBus bool   `long:"session-bus" description:"Use the D-Bus session bus instead of the system bus (development only)"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(logging.Config{Level: cfg.LogLevel, JSON: cfg.LogJSON})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	profiler.StartupStartMarker(log)
	defer profiler.StartupStopMarker(log)

	conn, err := connectBus(opts.SessionBus)
	if err != nil {
		return fmt.Errorf("connect to bus: %w", err)
	}
	defer conn.Close()

	props := platform.NewDeviceProperties(cfg.DeviceProperties)
	running, err := firmware.NewReader(cfg.RunningVersionYaml)
	if err != nil {
		return fmt.Errorf("load running firmware version: %w", err)
	}
	meta := devicemeta.New(props, running)

	cache := xconfcache.New(cfg.XConfCachePath, cfg.XConfCacheTTL, log.Named("xconfcache"))
	policyEngine := policy.New(policy.Config{
		StateRedFlagPath:     cfg.StateRedFlagPath,
		DirectBlockPath:      cfg.DirectBlockPath,
		DirectBlockAge:       cfg.DirectBlockAge,
		CbBlockPath:          cfg.CbBlockPath,
		CbBlockAge:           cfg.CbBlockAge,
		MaintOptOutPath:      cfg.MaintOptOutPath,
		PdriEnabledPropKey:   "PDRI_ENABLED",
		StateRedSupported:    cfg.StateRedSupported,
		OcspEnabled:          cfg.OcspEnabled,
		ThrottleEnabled:      cfg.ThrottleEnabled,
		MaintenanceEnabled:   cfg.MaintenanceEnabled,
		ConnectivityCheckURL: cfg.ConnectivityCheckURL,
	}, props, log.Named("policy"))

	pool := jobs.New(log.Named("jobs"), 250*time.Millisecond, time.Second)
	registry := handleregistry.New(log.Named("registry"), pool.CancelForHandle)
	status := statuswriter.New(statuswriter.Paths{Normal: cfg.StatusPathNormal, Pdri: cfg.StatusPathPdri}, log.Named("status"))

	// srv is assigned once, below, before the bus is exported and any
	// callback below can actually fire; every onComplete/onProgress/
	// onTerminal closure captures it by reference to break the otherwise
	// cyclic Server<->Coordinator/Download/Flash construction order (§9).
	var srv *daemon.Server

	onFatal := func() {
		log.Error("entered unrecoverable state, shutting down")
		os.Exit(1)
	}

	fetcher := coordinator.NewHTTPFetcher(cfg.XConfURL, cfg.PreferCodebig, nil, log.Named("fetch"))
	coord := coordinator.New(
		log.Named("coordinator"), cache, registry, policyEngine, fetcher, meta, meta,
		func(handleID uint64, result coordinator.CheckResult) { srv.EmitCheckForUpdateComplete(handleID, result) },
		coordinator.WithOnFatal(onFatal),
	)

	downloadMgr := download.New(
		log.Named("download"), registry, pool, cache, policyEngine, props, status,
		func(handleID uint64, firmwareName string, pct int) {
			srv.EmitDownloadProgress(handleID, firmwareName, pct)
			if pct >= 100 {
				if resp, _, _ := cache.Read(); resp != nil && resp.FirmwareFile == firmwareName {
					meta.SetLastDownloadedVersion(resp.FirmwareVersion)
				}
			}
		},
		func(handleID uint64, firmwareName, status, message string) {
			srv.EmitDownloadError(handleID, firmwareName, status, message)
		},
		onFatal,
	)

	flasher := platform.NewFlasher(cfg.FlasherScriptPath)
	rebooter := platform.NewRebooter(cfg.RebooterScriptPath)
	bundleMgr := platform.NewBundleManager(cfg.BundleMgrScriptPath)
	events := platform.NewSystemEventEmitter(log.Named("events"))
	power := platform.NewPowerState(props)
	telemetry := platform.NewHTTPTelemetryUploader(cfg.TelemetryURL)

	flashMgr := flash.New(
		log.Named("flash"), registry, pool, cache, policyEngine, props, flasher, rebooter, status, events, power, telemetry, running, cfg.OptOutPath,
		func(handleID uint64, firmwareName string, pct int) { srv.EmitUpdateProgress(handleID, firmwareName, pct) },
		func(handleID uint64, firmwareName string, pct int, statusCode int32, message string) {
			srv.EmitUpdateTerminal(handleID, firmwareName, pct, statusCode, message)
		},
		flash.WithBundleManager(bundleMgr, cfg.RdmVersionPath),
	)

	srv = daemon.NewServer(log.Named("bus"), conn, registry, coord, downloadMgr, flashMgr)
	if err := daemon.Export(conn, srv); err != nil {
		return fmt.Errorf("export bus service: %w", err)
	}
	log.Infow("bus service exported", "name", daemon.BusName, "path", daemon.ObjectPath)

	debugSrv := bus.NewDebugServer(log.Named("debug"), registry, pool, cache)
	httpSrv := &http.Server{Addr: cfg.DebugListenAddr, Handler: debugSrv}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("debug http server stopped", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("shutting down")
	profiler.ShutdownStartMarker(log)
	defer profiler.ShutdownStopMarker(log)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	return nil
}

func connectBus(useSessionBus bool) (*dbus.Conn, error) {
	if useSessionBus {
		return dbus.SessionBus()
	}
	return dbus.SystemBus()
}
