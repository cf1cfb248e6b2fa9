package ctl

import (
	"github.com/shirou/gopsutil/process"
)

// PeerMonitor watches a cooperating EPG-side process's liveness, so a
// persistently overflowing ring buffer (too many teletext packets
// queued without a reader keeping up) can be told apart from a peer
// that has simply died versus one that is alive but falling behind.
type PeerMonitor struct {
	pid int32
}

// NewPeerMonitor returns a monitor for the given PID. A pid of 0
// disables the check: Alive always reports true, since there is no
// peer process to be dead.
func NewPeerMonitor(pid int) *PeerMonitor {
	return &PeerMonitor{pid: int32(pid)}
}

// Alive reports whether the watched process is currently running.
func (m *PeerMonitor) Alive() bool {
	if m.pid == 0 {
		return true
	}
	proc, err := process.NewProcess(m.pid)
	if err != nil {
		return false
	}
	running, err := proc.IsRunning()
	return err == nil && running
}
