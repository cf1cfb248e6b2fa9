// Package stream assembles Nextview blocks out of the stream of teletext
// packets belonging to the EPG carrier page, tracking the two
// independent Nextview streams (ETS 300 707 clause 9) a page can
// multiplex and recovering from packet loss by discarding an
// in-progress block rather than misparsing one.
package stream

import (
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/nxtvepg/epgrecv/nextview/wire"
	"github.com/nxtvepg/epgrecv/vbi"
)

// NumStreams is the number of independent Nextview streams a page can
// carry (page subcode bits 8-11 select 0 or 1; any other value is
// rejected).
const NumStreams = 2

// NoStream marks "no page currently open" / "page rejected".
const NoStream = -1

var (
	// ErrBadStream is returned by NewPage when the page subcode names a
	// stream number other than 0 or 1.
	ErrBadStream = errors.New("stream: invalid stream number in subcode")
	// ErrTooManyPackets is returned by NewPage when the page subcode
	// claims more than 25 data packets.
	ErrTooManyPackets = errors.New("stream: page claims too many packets")
)

type streamState struct {
	ci        uint8
	pkgCount  uint8
	lastPkg   uint8
	appID     uint8
	blockType uint8
	blockLen  uint16
	recvLen   uint16
	haveBlock bool

	// haveHeader, when > 0, is 1 + the number of structure-header bytes
	// already captured in headerFragment from the tail of the previous
	// packet; the next packet's first bytes complete the 4-byte header.
	haveHeader     uint8
	headerFragment [4]byte

	blockBuf []byte
}

// Decoder assembles Nextview blocks across both streams of one EPG page
// at a time, matching EpgStreamNewPage/EpgStreamDecodePacket/
// EpgStreamCheckBlock's per-page, per-stream state.
type Decoder struct {
	streams      [NumStreams]streamState
	current      int // index into streams, or NoStream
	epgAppID     uint8
	enableAll    bool // once true, all block types leave the decoder, not just BI/AI
}

// New returns a Decoder configured for the given Nextview application ID
// (the app_id value identifying ordinary EPG blocks; BI blocks always
// carry wire.BiAppID instead). waitForBiAi, when true, restricts output
// to BI and AI blocks until EnableAllTypes is called (used while a
// previously-unseen provider's AI has not yet been accepted).
func New(appID uint8, waitForBiAi bool) *Decoder {
	d := &Decoder{epgAppID: appID, current: NoStream, enableAll: !waitForBiAi}
	for i := range d.streams {
		d.streams[i] = streamState{}
	}
	return d
}

// EnableAllTypes lifts the BI/AI-only restriction once a BI+AI pair has
// been accepted by the acquisition controller.
func (d *Decoder) EnableAllTypes() {
	d.enableAll = true
}

// NewPage starts decoding a freshly-opened EPG page, given its subcode.
// It selects which of the two streams the page's packets belong to,
// validates continuity against any block still in progress on that
// stream, and reports whether the page is usable at all.
func (d *Decoder) NewPage(sub uint16) error {
	switch (sub & 0xf00) >> 8 {
	case 0:
		d.current = 0
	case 1:
		d.current = 1
	default:
		d.current = NoStream
		return ErrBadStream
	}

	s := &d.streams[d.current]
	newPkgCount := uint8((sub&0x3000)>>(12-3) | (sub&0x70)>>4)
	if newPkgCount > 25 {
		d.current = NoStream
		return ErrTooManyPackets
	}

	newCi := uint8(sub & 0xf)
	firstPkg := uint8(0)

	if s.haveBlock || s.haveHeader > 0 {
		switch {
		case s.ci == newCi:
			// repeated transmission of the same page: resume after the last
			// packet we already have, rather than restarting the block
			firstPkg = s.lastPkg
		case (s.ci+1)&0xf != newCi:
			log.WithFields(log.Fields{"stream": d.current, "have_ci": s.ci, "new_ci": newCi}).
				Debug("stream: page continuity gap, discarding in-progress block")
			s.haveHeader = 0
			s.haveBlock = false
		case s.lastPkg != s.pkgCount:
			log.WithFields(log.Fields{"stream": d.current, "last_pkg": s.lastPkg, "pkg_count": s.pkgCount}).
				Debug("stream: packets missing at page end, discarding in-progress block")
			s.haveHeader = 0
			s.haveBlock = false
		}
	}

	s.ci = newCi
	s.pkgCount = newPkgCount
	s.lastPkg = firstPkg
	return nil
}

// DecodePacket feeds one EPG data packet (teletext packet number 1..25,
// 40-byte payload) to the currently selected stream. It returns every
// fully assembled, checksum-verified block found while scanning this
// packet (a single packet can complete one block and start — or even
// complete — another, chained back-to-back with only Hamming-encoded
// filler in between).
func (d *Decoder) DecodePacket(packNo uint8, dat []byte) []*wire.Block {
	if d.current == NoStream || packNo > d.streams[d.current].pkgCount {
		return nil
	}
	s := &d.streams[d.current]

	if (s.haveBlock || s.haveHeader > 0) && packNo != s.lastPkg+1 {
		log.WithFields(log.Fields{"expect": s.lastPkg + 1, "got": packNo}).
			Debug("stream: missing packet, discarding in-progress block")
		s.haveHeader = 0
		s.haveBlock = false
	}
	s.lastPkg = packNo

	bp, ok := vbi.UnHam84Byte(dat[0])
	if !ok || bp > 0x0d {
		log.Debug("stream: block-pointer hamming error, discarding packet")
		s.haveHeader = 0
		s.haveBlock = false
		return nil
	}

	var out []*wire.Block
	blockPtr := int(1 + 3*int(bp))

	if s.haveHeader > 0 {
		if blk := d.finishHeaderFragment(s, dat, blockPtr); blk != nil {
			out = append(out, blk)
		}
	} else if s.haveBlock {
		blk, ok := d.appendToBlock(s, dat, blockPtr)
		if !ok {
			s.haveBlock = false
		} else if blk != nil {
			out = append(out, blk)
			s.haveBlock = false
		}
	}

	for blockPtr < 40 {
		blk, next, cont := d.startBlockAt(s, dat, blockPtr, packNo)
		if !cont {
			break
		}
		if blk != nil {
			out = append(out, blk)
		}
		blockPtr = next
	}

	return out
}

// finishHeaderFragment completes a 4-byte structure header whose tail
// spilled into this packet, per the blockPtr==40/"BS=0xD" continuation
// convention.
func (d *Decoder) finishHeaderFragment(s *streamState, dat []byte, blockPtr int) *wire.Block {
	s.haveHeader--
	fragLen := int(s.haveHeader) // bytes already captured in headerFragment
	var hdr [4]byte
	copy(hdr[:], s.headerFragment[:fragLen])
	copy(hdr[fragLen:], dat[1:1+(4-fragLen)])
	s.haveHeader = 0

	c1, ok1 := vbi.UnHam84Byte(hdr[0])
	c2, ok2 := vbi.UnHam84Byte(hdr[1])
	c3, ok3 := vbi.UnHam84Byte(hdr[2])
	c4, ok4 := vbi.UnHam84Byte(hdr[3])
	if !ok1 || !ok2 || !ok3 || !ok4 {
		log.Debug("stream: structure header hamming error, skipping block")
		return nil
	}

	s.appID = c1 | (c2&1)<<4
	s.blockLen = wire.DecodeBlockLen(c2, c3, c4)
	s.recvLen = 0

	if blockPtr != 40 && blockPtr-1 < int(s.blockLen)-(4-fragLen) {
		log.Debug("stream: too few data for fragmented block start")
		return nil
	}

	s.blockBuf = make([]byte, s.blockLen)
	copy(s.blockBuf[:4], hdr[:])
	restLen := blockPtr - 1 - (4 - fragLen)
	if int(s.blockLen)-4 < restLen {
		restLen = int(s.blockLen) - 4
	}
	if restLen < 0 {
		restLen = 0
	}
	copy(s.blockBuf[4:], dat[1+(4-fragLen):1+(4-fragLen)+restLen])
	s.recvLen = uint16(restLen) + 4

	if s.recvLen >= s.blockLen {
		return d.checkBlock(s)
	}
	s.haveBlock = true
	return nil
}

// appendToBlock appends payload bytes to a block already in progress,
// completing it if enough bytes have now arrived. ok is false if the
// packet doesn't carry as much data as blockPtr promises, in which case
// the in-progress block must be discarded.
func (d *Decoder) appendToBlock(s *streamState, dat []byte, blockPtr int) (blk *wire.Block, ok bool) {
	restLen := int(s.blockLen) - int(s.recvLen)
	if restLen > 39 {
		restLen = 39
	}
	if blockPtr-1 < restLen {
		log.Debug("stream: too few data for block continuation")
		return nil, false
	}
	copy(s.blockBuf[s.recvLen:], dat[1:1+restLen])
	s.recvLen += uint16(restLen)
	if s.recvLen >= s.blockLen {
		return d.checkBlock(s), true
	}
	return nil, true
}

// startBlockAt looks for a new structure header (block-start marker,
// nibble 0x0c) at blockPtr and, if found, begins (and possibly
// completes) a new block. It returns the completed block (if any), the
// next blockPtr to resume scanning from, and whether scanning should
// continue.
func (d *Decoder) startBlockAt(s *streamState, dat []byte, blockPtr int, packNo uint8) (*wire.Block, int, bool) {
	bs, ok := vbi.UnHam84Byte(dat[blockPtr])
	if !ok || bs != 0x0c {
		log.WithField("blockPtr", blockPtr).Debug("stream: structure header error, skipping rest of packet")
		s.haveHeader = 0
		s.haveBlock = false
		return nil, 40, false
	}

	if blockPtr >= 36 {
		// the 4-byte header spills past this packet's end; haveHeader
		// counts "1 + bytes already captured" so the next packet's
		// finishHeaderFragment can tell how many header bytes remain
		s.haveHeader = uint8(40 - blockPtr)
		copy(s.headerFragment[:], dat[blockPtr+1:40])
		return nil, 40, false
	}

	c1, ok1 := vbi.UnHam84Byte(dat[blockPtr+1])
	c2, ok2 := vbi.UnHam84Byte(dat[blockPtr+2])
	c3, ok3 := vbi.UnHam84Byte(dat[blockPtr+3])
	c4, ok4 := vbi.UnHam84Byte(dat[blockPtr+4])
	if !ok1 || !ok2 || !ok3 || !ok4 {
		log.Debug("stream: structure header hamming error, skipping block")
		s.haveHeader = 0
		s.haveBlock = false
		return nil, 40, false
	}

	s.appID = c1 | (c2&1)<<4
	s.blockLen = wire.DecodeBlockLen(c2, c3, c4)
	s.blockBuf = make([]byte, s.blockLen)
	s.haveBlock = true

	restLen := 40 - (blockPtr + 1)
	if uint16(restLen) > s.blockLen {
		restLen = int(s.blockLen)
	}
	copy(s.blockBuf, dat[blockPtr+1:blockPtr+1+restLen])
	s.recvLen = uint16(restLen)
	blockPtr += 1 + restLen

	var completed *wire.Block
	if s.recvLen >= s.blockLen {
		completed = d.checkBlock(s)
		s.haveHeader = 0
		s.haveBlock = false

		for blockPtr < 40 {
			fb, ok := vbi.UnHam84Byte(dat[blockPtr])
			if !ok || fb != 0x03 {
				break
			}
			blockPtr++
		}
	}

	return completed, blockPtr, true
}

// checkBlock validates a fully-received block's Hamming/parity encoding
// and checksum, and on success returns the decoded wire.Block.
func (d *Decoder) checkBlock(s *streamState) *wire.Block {
	if s.appID == wire.BiAppID {
		return d.checkBiBlock(s)
	}
	if s.appID != d.epgAppID {
		log.WithField("app_id", s.appID).Debug("stream: unrecognized app id, discarding block")
		return nil
	}
	return d.checkEpgBlock(s)
}

func (d *Decoder) checkBiBlock(s *streamState) *wire.Block {
	half := int(s.blockLen) / 2
	if !vbi.UnHam84Array(s.blockBuf, half) {
		log.Debug("stream: BI block hamming error")
		return nil
	}
	buf := s.blockBuf[:half]
	chkSum := buf[2]
	buf[2] = 0
	my := wire.ComputeChecksum(buf)
	if my != chkSum {
		log.WithFields(log.Fields{"want": chkSum, "got": my}).Debug("stream: BI block checksum error")
		return nil
	}
	buf[2] = chkSum
	return &wire.Block{AppID: s.appID, Type: wire.TypeBI, Stream: uint8(d.current) + 1, Ctrl: append([]byte(nil), buf...)}
}

func (d *Decoder) checkEpgBlock(s *streamState) *wire.Block {
	c1, ok1 := vbi.UnHam84Byte(s.blockBuf[6])
	c2, ok2 := vbi.UnHam84Byte(s.blockBuf[7])
	c3, ok3 := vbi.UnHam84Byte(s.blockBuf[8])
	c4, ok4 := vbi.UnHam84Byte(s.blockBuf[9])
	if !ok1 || !ok2 || !ok3 || !ok4 {
		log.Debug("stream: block header hamming error")
		return nil
	}

	ctrlLen := uint16(c3&3)<<8 | uint16(c2)<<4 | uint16(c1)
	blockType := c3>>2 | c4<<2

	if s.blockLen < (ctrlLen+2)*2 {
		log.WithFields(log.Fields{"block_len": s.blockLen, "ctrl_len": ctrlLen}).Debug("stream: block ctrl length error")
		return nil
	}

	ctrlBytes := int(ctrlLen) + 2
	if !vbi.UnHam84Array(s.blockBuf, ctrlBytes) {
		log.Debug("stream: block content hamming error")
		return nil
	}

	strLen := int(s.blockLen) - ctrlBytes*2
	text := make([]byte, strLen)
	vbi.UnHamParityArray(text, s.blockBuf[ctrlBytes*2:ctrlBytes*2+strLen], strLen)

	ctrl := s.blockBuf[:ctrlBytes]
	chkSum := ctrl[2]
	ctrl[2] = 0
	my := wire.ComputeChecksum(ctrl)
	if my != chkSum {
		log.WithFields(log.Fields{"want": chkSum, "got": my}).Debug("stream: block checksum error")
		return nil
	}
	ctrl[2] = chkSum

	return &wire.Block{
		AppID:   s.appID,
		Type:    blockType,
		Stream:  uint8(d.current) + 1,
		CtrlLen: ctrlLen,
		Ctrl:    append([]byte(nil), ctrl...),
		Text:    text,
	}
}
