// Command epgrecvd is the Nextview EPG acquisition daemon: it opens a
// VBI capture device, identifies the broadcaster on the tuned
// channel, and continuously decodes Nextview blocks into an
// in-memory programme database, exposing acquisition statistics over
// Prometheus.
package main

import (
	"context"
	"flag"
	"net/http"
	_ "net/http/pprof"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/coreos/go-systemd/daemon"
	log "github.com/sirupsen/logrus"

	"github.com/nxtvepg/epgrecv/ctl"
)

func main() {
	cfg := ctl.DefaultConfig()

	var (
		configFile string
		debugAddr  string
		epgPageHex string
	)

	flag.StringVar(&cfg.Device, "device", cfg.Device, "Path to the VBI capture device")
	flag.StringVar(&epgPageHex, "epgpage", "", "Nextview EPG carrier page number in hex, e.g. 1DF")
	flag.StringVar(&cfg.LogLevel, "loglevel", cfg.LogLevel, "Set a log level. Can be: debug, info, warning, error")
	flag.StringVar(&configFile, "config", "", "Path to an epgrecvd.conf ini file with dynamic settings")
	flag.StringVar(&debugAddr, "pprofaddr", "", "host:port for the pprof server to bind")
	flag.IntVar(&cfg.MonitoringPort, "monitoringport", cfg.MonitoringPort, "Port to serve Prometheus metrics on")
	flag.DurationVar(&cfg.MetricInterval, "metricinterval", cfg.MetricInterval, "Interval between metric scrapes")
	flag.DurationVar(&cfg.ExpireDelay, "expiredelay", cfg.ExpireDelay, "Grace period before an expired PI is purged")
	flag.DurationVar(&cfg.ScanTimeout, "scantimeout", cfg.ScanTimeout, "Per-channel CNI identification timeout")
	flag.IntVar(&cfg.PeerPID, "peerpid", cfg.PeerPID, "PID of a cooperating EPG-side process to watch during overflow recovery")
	active := flag.Bool("active", false, "Set the configured mode to active (acquisition itself is the same in both modes)")
	flag.Parse()

	if *active {
		cfg.Mode = ctl.ModeActive
	}
	if epgPageHex != "" {
		v, err := strconv.ParseUint(epgPageHex, 16, 16)
		if err != nil {
			log.Fatalf("invalid -epgpage %q: %v", epgPageHex, err)
		}
		cfg.EpgPageNo = uint16(v)
	}

	if configFile != "" {
		if err := cfg.LoadINI(configFile); err != nil {
			log.Fatal(err)
		}
	}

	switch cfg.LogLevel {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.Fatalf("unrecognized log level: %v", cfg.LogLevel)
	}

	if debugAddr != "" {
		log.Warningf("starting profiler on %s", debugAddr)
		go func() {
			log.Println(http.ListenAndServe(debugAddr, nil))
		}()
	}

	src, err := ctl.OpenDevice(cfg.Device, 2048, 0)
	if err != nil {
		log.Fatal(err)
	}
	defer src.Close()

	stats := ctl.NewStats()
	controller := ctl.NewController(cfg, src, stats)

	exporter := ctl.NewPrometheusExporter(stats, cfg.MonitoringPort, cfg.MetricInterval)
	go exporter.Start()

	if supported, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warningf("sd_notify failed: %v", err)
	} else if !supported {
		log.Debug("sd_notify not supported")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infof("epgrecvd starting in %s mode on %s", cfg.Mode, cfg.Device)
	if err := controller.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("acquisition loop stopped: %v", err)
	}
}
