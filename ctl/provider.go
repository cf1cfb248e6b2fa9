package ctl

import (
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nxtvepg/epgrecv/acq"
)

// ErrIdentifyTimeout is returned by Identify when no trustworthy CNI
// was recovered before Config.ScanTimeout elapsed.
var ErrIdentifyTimeout = errors.New("ctl: channel identification timed out")

// Identify tunes nothing itself (the caller is assumed to have already
// selected the physical channel via a Tuner) and instead runs the VBI
// capture loop in CNI-scan mode until the router's VPS/PDC/NI
// accumulators agree on a network identity, or timeout elapses.
// It implements the majority-vote acceptance rule of spec.md §6: VPS
// and PDC/8-30-2 are trusted on a single clean reception, NI/8-30-1
// only once it has repeated identically three times
// (acq.ScanResult.CNI's NiRepCount > 2 branch).
func Identify(src CaptureSource, rt *acq.Router, timeout time.Duration) (uint16, error) {
	rt.StartScan()
	defer rt.StopScan()
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		lines, err := src.ReadFrame()
		if err != nil {
			log.WithError(err).Warn("ctl: capture read failed during identification")
			continue
		}
		if _, err := ProcessFrame(rt, lines); err != nil && !errors.Is(err, ErrNoFraming) {
			log.WithError(err).Debug("ctl: frame processing error during identification")
		}

		if cni, _ := rt.ScanStatus().CNI(); cni != 0 {
			return cni, nil
		}
	}

	return 0, ErrIdentifyTimeout
}
