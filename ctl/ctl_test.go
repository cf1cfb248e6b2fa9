package ctl

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nxtvepg/epgrecv/acq"
)

func TestLoadINIOverlaysOnlyPresentKeys(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "epgrecvd-*.conf")
	require.NoError(t, err)
	_, err = f.WriteString("[acquisition]\ndevice = /dev/vbi3\nmode = active\n\n[monitoring]\nport = 9999\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadINI(f.Name()))

	require.Equal(t, "/dev/vbi3", cfg.Device)
	require.Equal(t, ModeActive, cfg.Mode)
	require.Equal(t, 9999, cfg.MonitoringPort)
	// untouched keys keep their defaults
	require.Equal(t, uint8(0x01), cfg.AppID)
	require.Equal(t, 10*time.Second, cfg.MetricInterval)
}

func TestStatsResetZeroesExistingCounters(t *testing.T) {
	s := NewStats()
	s.SetCounter(CounterBlocksDecoded, 7)
	s.Reset()
	require.Equal(t, int64(0), s.Get()[CounterBlocksDecoded])
}

func TestStatsUpdateCounterByAccumulates(t *testing.T) {
	s := NewStats()
	s.UpdateCounterBy(CounterPacketsTotal, 3)
	s.UpdateCounterBy(CounterPacketsTotal, 4)
	require.Equal(t, int64(7), s.Get()[CounterPacketsTotal])
}

func TestCompileQualityExprRejectsUnknownVariable(t *testing.T) {
	_, err := CompileQualityExpr("bogus_var > 1")
	require.Error(t, err)
}

func TestQualityExprEvaluatesAgainstObservedStats(t *testing.T) {
	q, err := CompileQualityExpr(DefaultQualityExpr)
	require.NoError(t, err)

	c := NewCycleStats()
	c.Observe(0.01, 5)
	c.Observe(0.01, 5)

	degraded, err := q.Eval(c, 0)
	require.NoError(t, err)
	require.False(t, degraded)

	degraded, err = q.Eval(c, 0.5)
	require.NoError(t, err)
	require.True(t, degraded)
}

// fakeCaptureSource returns the same (possibly empty) set of lines on
// every ReadFrame call, for exercising Identify's polling loop without
// real hardware.
type fakeCaptureSource struct {
	lines [][]byte
}

func (f *fakeCaptureSource) ReadFrame() ([][]byte, error) { return f.lines, nil }
func (f *fakeCaptureSource) Close() error                 { return nil }

func TestIdentifyTimesOutWithoutAnyFraming(t *testing.T) {
	src := &fakeCaptureSource{lines: [][]byte{make([]byte, 64)}}
	rt := acq.NewRouter(acq.NewRingBuffer())

	_, err := Identify(src, rt, 20*time.Millisecond)
	require.ErrorIs(t, err, ErrIdentifyTimeout)
}

// vpsInjectingSource simulates a capture loop that also decodes VBI
// line 9 out of band and reports the recovered CNI straight into the
// router, as a capture loop with VPS decoding would (SetVpsCni is called
// outside AddPacket/ProcessFrame entirely; ctl's own capture path does
// not call it).
type vpsInjectingSource struct {
	rt  *acq.Router
	cni uint16
}

func (v *vpsInjectingSource) ReadFrame() ([][]byte, error) {
	v.rt.SetVpsCni(v.cni)
	return nil, nil
}
func (v *vpsInjectingSource) Close() error { return nil }

func TestPeerMonitorDisabledWhenPidZero(t *testing.T) {
	m := NewPeerMonitor(0)
	require.True(t, m.Alive())
}

func TestPeerMonitorReportsDeadPidAsNotAlive(t *testing.T) {
	// pid 1 belongs to init on any running system kernel, pid -1 never
	// does and os.FindProcess-backed lookups should reliably fail
	// (or report not running) for it.
	m := NewPeerMonitor(-1)
	require.False(t, m.Alive())
}

func TestIdentifyAcceptsVpsCniImmediately(t *testing.T) {
	rt := acq.NewRouter(acq.NewRingBuffer())
	src := &vpsInjectingSource{rt: rt, cni: 0x1234}

	cni, err := Identify(src, rt, 200*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, uint16(0x1234), cni)
}
