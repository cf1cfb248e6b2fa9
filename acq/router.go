package acq

import (
	"sync/atomic"

	"github.com/nxtvepg/epgrecv/teletext"
)

// DefaultEpgPageNo is the conventional Nextview EPG carrier page, used
// when a provider's actual page number is not yet known.
const DefaultEpgPageNo = 0x1DF

// ScanResult summarizes the CNIs and data-page count accumulated during a
// provider scan (§6 "CNI discovery").
type ScanResult struct {
	VpsCni       uint16
	PdcCni       uint16
	Ni           uint16
	NiRepCount   uint32
	DataPageCount uint32
}

// CNI resolves the scan's best CNI candidate, preferring VPS (parity
// protected, trustworthy on a single read) over PDC (packet 8/30/2, also
// parity protected) over NI (packet 8/30/1, unprotected and only trusted
// after being seen identically more than twice). waitMore is true if NI is
// the only candidate seen so far but hasn't repeated enough to be trusted
// yet.
func (s ScanResult) CNI() (cni uint16, waitMore bool) {
	switch {
	case s.VpsCni != 0:
		return s.VpsCni, false
	case s.PdcCni != 0:
		return s.PdcCni, false
	case s.Ni != 0:
		if s.NiRepCount > 2 {
			return s.Ni, false
		}
		return 0, true
	default:
		return 0, false
	}
}

// Router decides, per incoming teletext packet, whether it belongs to the
// EPG page, a magazine inventory page, or packet 8/30 CNI scanning, and
// feeds accepted packets into a RingBuffer. It is the Go analogue of
// EpgDbAcqAddPacket/EpgDbAcqMipPacket/EpgDbAcqGetP830Cni: all routing
// state here belongs to the capture side, distinct from the stream
// decoder's page-continuity state on the consumer side.
type Router struct {
	Buf *RingBuffer

	epgPageNo uint16
	isEpgPage bool
	mipPages  uint32 // bitmask over the 8 raw magazine field values, bit N set if magazine N's 0xFD page is an inventory page

	scanMode bool
	scan     ScanResult

	mipPageNo uint32 // packed magazine<<8|pageNo of the MIP-reported EPG page, 0 if none yet
}

// NewRouter returns a Router over buf, with the EPG page defaulted to
// DefaultEpgPageNo.
func NewRouter(buf *RingBuffer) *Router {
	return &Router{Buf: buf, epgPageNo: DefaultEpgPageNo}
}

// SetEpgPageNo reconfigures which page number carries Nextview data,
// called on acquisition (re)start once the provider's actual page is
// known (directly, or via MIP).
func (rt *Router) SetEpgPageNo(pageNo uint16) {
	rt.epgPageNo = pageNo
	rt.isEpgPage = false
}

// EpgPageNo returns the page number currently treated as the EPG carrier.
func (rt *Router) EpgPageNo() uint16 { return rt.epgPageNo }

// MipPageNo returns the EPG page number discovered via MIP, or 0 if none
// has been found yet.
func (rt *Router) MipPageNo() uint32 {
	return atomic.LoadUint32(&rt.mipPageNo)
}

// StartScan resets scan-mode accumulators, enabling packet 8/30 and MIP
// based CNI discovery (§6).
func (rt *Router) StartScan() {
	rt.scan = ScanResult{}
	rt.scanMode = true
}

// StopScan disables scan-mode accounting and returns the accumulated
// result.
func (rt *Router) StopScan() ScanResult {
	rt.scanMode = false
	return rt.scan
}

// ScanStatus returns the scan accumulator's current state without
// disabling scan mode or resetting it, so a caller can poll for a
// trustworthy CNI across many frames without losing NI's repeat count.
func (rt *Router) ScanStatus() ScanResult {
	return rt.scan
}

// SetVpsCni records a CNI recovered from VBI line 9 (vbi.DecodeVPS) while
// scan mode is on. VPS is decoded out of band from the teletext packet
// stream, so it is not discovered via AddPacket. The capture path in ctl
// (ProcessFrame/DeviceCaptureSource) calls neither vbi.DecodeVPS nor
// SetVpsCni, so there a scan only sees the PDC and NI CNIs.
func (rt *Router) SetVpsCni(cni uint16) {
	if rt.scanMode {
		rt.scan.VpsCni = cni
	}
}

// AddPacket routes one decoded teletext packet. For a page header
// (pkgno == 0) pageNo/sub are the page/subcode just read from the
// header. For a body packet (pkgno != 0) pageNo must still be the page
// address the caller's teletext demuxer is currently tracking for that
// packet's magazine (sub is unused) — body packets carry no page number
// of their own, only the magazine, and routing needs to know which page
// of that magazine is currently open. data is the 40-byte packet
// payload following the two address bytes. It reports whether the
// packet was accepted into the ring buffer for Nextview decoding.
func (rt *Router) AddPacket(pageNo, sub uint16, pkgno uint8, data []byte) bool {
	accepted := false

	if pkgno == 0 {
		accepted = rt.addPageHeader(pageNo, sub, data)
	} else {
		accepted = rt.addBodyPacket(pageNo, pkgno, data)
	}

	return accepted
}

func (rt *Router) addPageHeader(pageNo, sub uint16, data []byte) bool {
	magBit := uint32(1) << (pageNo >> 8)

	if pageNo == rt.epgPageNo {
		rt.isEpgPage = true
		return rt.Buf.Add(pageNo, sub, 0, data)
	}

	if pageNo>>8 == rt.epgPageNo>>8 {
		// same magazine, different page: the EPG page, if it was open, is
		// now closed until its header reappears
		rt.isEpgPage = false
	}

	if teletext.IsMipPage(pageNo) {
		rt.mipPages |= magBit
	} else {
		rt.mipPages &^= magBit
	}

	return false
}

func (rt *Router) addBodyPacket(pageNo uint16, pkgno uint8, data []byte) bool {
	mag := pageNo >> 8
	magBit := uint32(1) << mag

	switch {
	case rt.isEpgPage && mag == rt.epgPageNo>>8 && pkgno < 26:
		return rt.Buf.Add(0, 0, pkgno, data)

	case rt.mipPages&magBit != 0:
		if page, ok := teletext.DecodeMipPacket(uint8(mag), pkgno, data); ok {
			atomic.StoreUint32(&rt.mipPageNo, uint32(page))
		}

	case rt.scanMode && pkgno == 30 && mag == 0:
		rt.scanPacket830(data)
	}

	return false
}

func (rt *Router) scanPacket830(data []byte) {
	if ni, ok := teletext.DecodeP830NI(data); ok {
		if rt.scan.NiRepCount > 0 && rt.scan.Ni != ni {
			rt.scan.NiRepCount = 0
		}
		rt.scan.Ni = ni
		rt.scan.NiRepCount++
	}
	if pdc, ok := teletext.DecodeP830PDC(data); ok {
		rt.scan.PdcCni = pdc
	}
}
