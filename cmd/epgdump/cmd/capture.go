package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/nxtvepg/epgrecv/ctl"
)

// runCapture opens the configured device, runs the acquisition
// controller for durationFlag (or until interrupted, whichever is
// first), and returns the controller so the caller can query its
// database, timescale queue and stats once capture has stopped.
// setup, if non-nil, is called with the freshly constructed controller
// before capture starts, so a subcommand can wire ctl.Controller.OnBlock
// (cmd/epgdump dump's use case).
func runCapture(setup func(*ctl.Controller)) (*ctl.Controller, error) {
	cfg := ctl.DefaultConfig()
	cfg.Device = deviceFlag
	if epgPageFlag != "" {
		v, err := strconv.ParseUint(epgPageFlag, 16, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid -epgpage %q: %w", epgPageFlag, err)
		}
		cfg.EpgPageNo = uint16(v)
	}

	src, err := ctl.OpenDevice(cfg.Device, 2048, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", cfg.Device, err)
	}
	defer src.Close()

	stats := ctl.NewStats()
	controller := ctl.NewController(cfg, src, stats)
	if setup != nil {
		setup(controller)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, durationFlag)
	defer cancel()

	log.Infof("epgdump capturing from %s for %s", cfg.Device, durationFlag)
	if err := controller.Run(ctx); err != nil && err != context.DeadlineExceeded && err != context.Canceled {
		return nil, err
	}
	return controller, nil
}
