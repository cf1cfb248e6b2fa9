// Package ctl implements the acquisition controller (ETS 300 707
// clause 8/9 "EPG acquisition cycle" as a whole): it orchestrates the
// VBI capture source, the teletext router and stream decoder, the AI
// fragment assembler, the block decoder, the programme database, the
// filter engine and the timescale queue into one continuous receive
// loop, plus the channel scan / provider identification phase that
// precedes it. Grounded on ptp4u/server's plain Config-struct style
// and on calnex/config's go-ini usage.
package ctl

import (
	"fmt"
	"time"

	"github.com/go-ini/ini"
)

// Mode records whether the daemon runs passive or active (spec.md §5's
// "mode (passive / active)"). It is parsed and logged, but the
// Controller does not read it: in both modes acquisition accumulates
// whatever the tuned channel carries, and no other provider is
// revisited.
type Mode uint8

const (
	ModePassive Mode = iota
	ModeActive
)

func (m Mode) String() string {
	if m == ModeActive {
		return "active"
	}
	return "passive"
}

// Config holds everything the controller needs to run one
// acquisition instance against one VBI device.
type Config struct {
	Device         string        // path to the VBI capture device, e.g. /dev/vbi0
	EpgPageNo      uint16        // conventional Nextview carrier page; acq.DefaultEpgPageNo if zero
	AppID          uint8         // Nextview application ID this provider uses
	Mode           Mode
	ScanTimeout    time.Duration // how long a single channel's CNI identification may take
	ExpireDelay    time.Duration // epgdb.New's stop-time grace period
	MonitoringPort int
	MetricInterval time.Duration
	LogLevel       string
	PeerPID        int // PID of a cooperating EPG-side process to watch during overflow recovery, 0 disables
}

// DefaultConfig returns the settings a freshly installed daemon starts
// with, overridable by flags or an ini file.
func DefaultConfig() Config {
	return Config{
		Device:         "/dev/vbi0",
		AppID:          0x01,
		Mode:           ModePassive,
		ScanTimeout:    4 * time.Second,
		ExpireDelay:    2 * time.Hour,
		MonitoringPort: 9107,
		MetricInterval: 10 * time.Second,
		LogLevel:       "info",
	}
}

// LoadINI overlays settings found in an ini file (the on-disk format
// of epgrecvd.conf) onto an existing Config, leaving any key the file
// doesn't mention untouched.
func (c *Config) LoadINI(path string) error {
	f, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("ctl: loading config %s: %w", path, err)
	}

	sec := f.Section("acquisition")
	if sec.HasKey("device") {
		c.Device = sec.Key("device").String()
	}
	if sec.HasKey("epg_page") {
		v, err := sec.Key("epg_page").Uint()
		if err != nil {
			return fmt.Errorf("ctl: epg_page: %w", err)
		}
		c.EpgPageNo = uint16(v)
	}
	if sec.HasKey("app_id") {
		v, err := sec.Key("app_id").Uint()
		if err != nil {
			return fmt.Errorf("ctl: app_id: %w", err)
		}
		c.AppID = uint8(v)
	}
	if sec.HasKey("mode") {
		if sec.Key("mode").String() == "active" {
			c.Mode = ModeActive
		} else {
			c.Mode = ModePassive
		}
	}
	if sec.HasKey("scan_timeout") {
		d, err := sec.Key("scan_timeout").Duration()
		if err != nil {
			return fmt.Errorf("ctl: scan_timeout: %w", err)
		}
		c.ScanTimeout = d
	}
	if sec.HasKey("expire_delay") {
		d, err := sec.Key("expire_delay").Duration()
		if err != nil {
			return fmt.Errorf("ctl: expire_delay: %w", err)
		}
		c.ExpireDelay = d
	}
	if sec.HasKey("peer_pid") {
		v, err := sec.Key("peer_pid").Int()
		if err != nil {
			return fmt.Errorf("ctl: peer_pid: %w", err)
		}
		c.PeerPID = v
	}

	mon := f.Section("monitoring")
	if mon.HasKey("port") {
		v, err := mon.Key("port").Int()
		if err != nil {
			return fmt.Errorf("ctl: monitoring.port: %w", err)
		}
		c.MonitoringPort = v
	}
	if mon.HasKey("interval") {
		d, err := mon.Key("interval").Duration()
		if err != nil {
			return fmt.Errorf("ctl: monitoring.interval: %w", err)
		}
		c.MetricInterval = d
	}
	if mon.HasKey("log_level") {
		c.LogLevel = mon.Key("log_level").String()
	}

	return nil
}
