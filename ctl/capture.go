package ctl

import (
	"errors"
	"fmt"
	"os"

	"github.com/nxtvepg/epgrecv/acq"
	"github.com/nxtvepg/epgrecv/teletext"
	"github.com/nxtvepg/epgrecv/vbi"
)

// linesPerFrame is the number of VBI lines delivered per video frame by
// a typical /dev/vbiN device in full-field capture mode (both fields,
// lines 7-22 of each).
const linesPerFrame = 32

// CaptureSource is the decoupling point between real hardware and the
// rest of the controller; spec.md §9 singles this out as the shape a
// Windows dsdrv-backed source and a Linux /dev/vbi-backed source both
// have to fit. A CaptureSource only ever hands back raw, unsliced VBI
// line samples: everything downstream of that (bit slicing, Hamming
// decode, packet demux) is platform-independent and lives in vbi/
// teletext/acq already.
type CaptureSource interface {
	// ReadFrame blocks until one video frame's worth of VBI lines is
	// available and returns them, one []byte per captured line.
	ReadFrame() ([][]byte, error)
	// Close releases the underlying device.
	Close() error
}

// Tuner abstracts the (entirely separate, typically V4L2) channel
// control path a capture source's device may also expose. Only
// SetChannel is needed by the provider scan; signal strength / lock
// detection are left to the device driver.
type Tuner interface {
	SetChannel(channel uint) error
}

// DeviceCaptureSource reads raw VBI samples from a Linux /dev/vbiN
// character device, the only CaptureSource implementation in scope
// per spec.md §9's decision to defer the Windows dsdrv shim to "one
// concrete implementation of a capture-source interface" nobody has
// to write yet.
type DeviceCaptureSource struct {
	f          *os.File
	lineLen    int
	linesFrame int
}

// OpenDevice opens a VBI capture device. lineLen is the raw sample
// count per line the driver reports (commonly 2048); linesFrame
// defaults to linesPerFrame when zero.
func OpenDevice(path string, lineLen, linesFrame int) (*DeviceCaptureSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ctl: opening capture device %s: %w", path, err)
	}
	if linesFrame == 0 {
		linesFrame = linesPerFrame
	}
	return &DeviceCaptureSource{f: f, lineLen: lineLen, linesFrame: linesFrame}, nil
}

// ReadFrame reads linesFrame consecutive lines of lineLen bytes each.
func (d *DeviceCaptureSource) ReadFrame() ([][]byte, error) {
	buf := make([]byte, d.lineLen*d.linesFrame)
	if _, err := readFull(d.f, buf); err != nil {
		return nil, err
	}
	lines := make([][]byte, d.linesFrame)
	for i := range lines {
		lines[i] = buf[i*d.lineLen : (i+1)*d.lineLen]
	}
	return lines, nil
}

// Close releases the device file.
func (d *DeviceCaptureSource) Close() error { return d.f.Close() }

func readFull(f *os.File, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := f.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// ErrNoFraming is returned by ProcessFrame when every line in the
// frame failed bit slicing; it is not itself fatal to acquisition.
var ErrNoFraming = errors.New("ctl: no line in frame carried a decodable packet")

// ProcessFrame slices and demultiplexes every line of a captured
// frame, routing each decoded teletext packet through rt, and returns
// the number of packets accepted into rt's ring buffer. Lines that
// fail slicing or header decode are silently skipped, matching the
// original capture loop's "not every line carries teletext" tolerance;
// ErrNoFraming is only returned once an entire frame sliced nothing,
// a signal worth surfacing to the caller's quality stats.
func ProcessFrame(rt *acq.Router, lines [][]byte) (int, error) {
	accepted := 0
	sliced := 0
	openPage := map[uint8]uint16{} // magazine -> page/sub currently open, for body-packet routing

	for _, line := range lines {
		payload, err := vbi.SliceLine(line)
		if err != nil {
			continue
		}
		sliced++
		hdr, ok := teletext.DecodeHeader(payload)
		if !ok {
			continue
		}

		if hdr.Packet == 0 {
			ph, ok := teletext.DecodePageHeader(hdr, payload)
			if !ok {
				continue
			}
			pageNo := teletext.PageAddr(hdr.Magazine, ph.PageNo)
			openPage[hdr.Magazine] = pageNo
			if rt.AddPacket(pageNo, ph.Subcode, 0, payload[2:]) {
				accepted++
			}
			continue
		}

		pageNo, known := openPage[hdr.Magazine]
		if !known {
			continue
		}
		if rt.AddPacket(pageNo, 0, hdr.Packet, payload[2:]) {
			accepted++
		}
	}

	if sliced == 0 {
		return 0, ErrNoFraming
	}
	return accepted, nil
}
