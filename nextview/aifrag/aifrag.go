// Package aifrag assembles the Nextview Application Information (AI)
// block across nonsequential teletext packets. The stream decoder in
// nextview/stream gives up on a block the moment one packet in its run
// fails Hamming decoding; this assembler instead tracks, byte by byte,
// which offsets of the AI block have ever been received correctly and
// only declares the block complete once every offset has been covered
// at least once, tolerating reception errors spread across many
// repeats of the same page.
package aifrag

import (
	"github.com/nxtvepg/epgrecv/nextview/wire"
	"github.com/nxtvepg/epgrecv/vbi"
)

// StreamAI is the Nextview stream number the AI block is always carried
// on; packets from the other stream are ignored by this assembler.
const StreamAI = 1

const (
	invalidHamming84 = 0x01 // placeholder byte for not-yet-received control data
	invalidParity    = 0x00 // placeholder byte for not-yet-received text data
	headBufLen       = 14 * 2
	ctrlDataLen      = 1024 * 2
	textDataLen      = 2048
	recvDataLen      = textDataLen / 8
)

// Assembler accumulates one AI block's control and text bytes across
// however many teletext packets it takes to cover every offset, and
// reports whether the result is checksum-clean. Zero value is ready to
// use.
type Assembler struct {
	ctrlData [ctrlDataLen]byte
	textData [textDataLen]byte
	recvData [recvDataLen]byte

	haveBlock     bool
	activeBlock   bool
	completeBlock bool

	blockLen uint16
	chkSum   uint8
	ctrlLen  uint16
	vers1    uint8
	vers2    uint8

	pagePkgCount uint8
	lastPagePkg  uint8
	dataOff      uint16

	newHead  [headBufLen]byte
	haveHead bool
}

func New() *Assembler {
	return &Assembler{}
}

// markReceived flags the pkgLen bytes starting at lineOff as received.
func (a *Assembler) markReceived(lineOff, pkgLen uint16) {
	off := int(lineOff / 8)
	if lineOff&7 != 0 && off < len(a.recvData) {
		for idx := lineOff & 7; idx < 8 && pkgLen > 0; idx++ {
			a.recvData[off] |= 1 << idx
			pkgLen--
		}
		off++
	}
	for pkgLen > 8 && off < len(a.recvData) {
		a.recvData[off] = 0xff
		off++
		pkgLen -= 8
	}
	if pkgLen > 0 && off < len(a.recvData) {
		for idx := uint16(0); idx < pkgLen; idx++ {
			a.recvData[off] |= 1 << idx
		}
	}
}

// checkReceived reports whether every byte offset of the current block
// has been marked received at least once.
func (a *Assembler) checkReceived() bool {
	off := 28 / 8
	if a.recvData[off] != 0xF0 {
		return false
	}
	off++
	for ; off < int(a.blockLen/8); off++ {
		if a.recvData[off] != 0xFF {
			return false
		}
	}
	// trailing partial byte, if the block length isn't a multiple of 8
	for idx := uint16(0); idx < (a.blockLen&7) && off < len(a.recvData); idx++ {
		if a.recvData[off]&(1<<idx) == 0 {
			return false
		}
	}
	return true
}

// checkBlock verifies the block checksum once every byte has been
// received, and marks the block complete on success.
func (a *Assembler) checkBlock() {
	if !a.checkReceived() {
		return
	}

	chkSumBuf := [2]byte{a.ctrlData[4], a.ctrlData[5]}
	zero := vbi.Ham84Encode(0) // checksum field excludes itself from the sum
	a.ctrlData[4] = zero
	a.ctrlData[5] = zero

	var chkSum uint32
	ok := true
	for idx := 0; idx < int(a.ctrlLen)*2; idx++ {
		v, good := vbi.UnHam84Byte(a.ctrlData[idx])
		if !good {
			ok = false
			break
		}
		chkSum += uint32(v)
	}

	if ok {
		chkSum = (0x100 - (chkSum & 0xff)) & 0xff
		if uint8(chkSum) == a.chkSum {
			a.ctrlData[4] = chkSumBuf[0]
			a.ctrlData[5] = chkSumBuf[1]
			a.completeBlock = true
			return
		}
	}
	// checksum mismatch or a Hamming error turned up somewhere in the
	// control section; chkSumBuf is discarded along with the rest
}

// decodeHeader Hamming-decodes the freshly assembled headBufLen raw
// header bytes (headBufLen/2 decoded bytes)
// and, if it names an AI block, starts (or continues) AI assembly.
func (a *Assembler) decodeHeader() {
	var headCopy [headBufLen]byte
	copy(headCopy[:], a.newHead[:])

	if !vbi.UnHam84Array(a.newHead[:], headBufLen/2) {
		return // Hamming error, or the header fragment was short
	}

	blockLen := (uint16(a.newHead[0]>>5) | uint16(a.newHead[1])<<3) + 4
	chkSum := a.newHead[2]
	ctrlLen := (uint16(a.newHead[3]) | uint16(a.newHead[4]&0x03)<<8) + 2
	blockType := a.newHead[4] >> 2
	vers1 := (a.newHead[5] >> 4) | (a.newHead[6]&0x03)<<4
	vers2 := a.newHead[6] >> 2

	if blockType != wire.TypeAI {
		return
	}

	if a.haveBlock && (blockLen != a.blockLen || chkSum != a.chkSum || ctrlLen != a.ctrlLen ||
		vers1 != a.vers1 || vers2 != a.vers2) {
		// a different AI version arrived mid-assembly; the old fragment
		// cannot be merged with it, so start over
		a.haveBlock = false
		a.completeBlock = false
	}

	if !a.haveBlock {
		for i := range a.ctrlData {
			a.ctrlData[i] = invalidHamming84
		}
		for i := range a.textData {
			a.textData[i] = invalidParity
		}
		for i := range a.recvData {
			a.recvData[i] = 0
		}
		copy(a.ctrlData[:], headCopy[:])
		a.blockLen = blockLen
		a.chkSum = chkSum
		a.ctrlLen = ctrlLen
		a.vers1 = vers1
		a.vers2 = vers2
	}

	a.haveBlock = true
	a.activeBlock = true
}

func (a *Assembler) addControlData(data []byte) int {
	limit := int(a.ctrlLen) * 2
	if int(a.dataOff) >= limit {
		return 0
	}
	restLen := limit - int(a.dataOff)
	pkgLen := len(data)
	if pkgLen > restLen {
		pkgLen = restLen
	}
	a.markReceived(a.dataOff, uint16(pkgLen))

	base := int(a.dataOff)
	for idx := 0; idx < pkgLen; idx++ {
		if _, ok := vbi.UnHam84Byte(data[idx]); ok {
			a.ctrlData[base+idx] = data[idx]
		}
	}
	a.dataOff += uint16(pkgLen)
	return pkgLen
}

func (a *Assembler) addTextData(data []byte) int {
	ctrlBytes := int(a.ctrlLen) * 2
	if int(a.dataOff) < ctrlBytes || int(a.dataOff) >= int(a.blockLen) {
		return 0
	}
	restLen := int(a.blockLen) - int(a.dataOff)
	pkgLen := len(data)
	if pkgLen > restLen {
		pkgLen = restLen
	}
	a.markReceived(a.dataOff, uint16(pkgLen))

	base := int(a.dataOff) - ctrlBytes
	for idx := 0; idx < pkgLen; idx++ {
		// a good parity byte always overwrites; a bad one only fills a
		// still-empty slot, so a clean repeat can still win later
		if _, ok := vbi.UnHamParityByte(data[idx]); ok || a.textData[base+idx] == invalidParity {
			a.textData[base+idx] = data[idx]
		}
	}
	a.dataOff += uint16(pkgLen)
	return pkgLen
}

func (a *Assembler) addData(data []byte) {
	lineOff := 0
	if a.haveHead {
		headLen := len(data)
		if int(a.dataOff)+headLen > headBufLen {
			headLen = headBufLen - int(a.dataOff)
		}
		copy(a.newHead[a.dataOff:], data[:headLen])
		a.dataOff += uint16(headLen)
		lineOff += headLen

		if int(a.dataOff) >= headBufLen {
			a.decodeHeader()
			a.haveHead = false
		}
	}

	if a.activeBlock {
		lineOff += a.addControlData(data[lineOff:])
		lineOff += a.addTextData(data[lineOff:])

		if int(a.dataOff) >= int(a.blockLen) {
			a.checkBlock()
			a.activeBlock = false
		}
	}
}

// AddPacket feeds one raw (still Hamming/parity-encoded) teletext data
// packet to the assembler. It must be called for every packet received
// on an EPG page, regardless of the stream decoder's own state, so
// that the running byte offset stays in step with missing packets.
func (a *Assembler) AddPacket(stream uint8, pkgNo uint8, data []byte) {
	if stream != StreamAI {
		return
	}

	if pkgNo > a.lastPagePkg+1 {
		a.dataOff += uint16(pkgNo-a.lastPagePkg-1) * 39
		a.haveHead = false // packets missing during header capture: discard
	} else if pkgNo != a.lastPagePkg+1 {
		a.haveHead = false
		a.activeBlock = false
	}

	var pkgLen int
	if bp, ok := vbi.UnHam84Byte(data[0]); ok && bp <= 0x0d {
		pkgLen = 3 * int(bp)
	} else {
		pkgLen = 39
	}

	a.addData(data[1 : 1+pkgLen])

	if pkgLen < 39 {
		a.activeBlock = false
	}
	a.lastPagePkg = pkgNo
}

// StartPage resets per-page bookkeeping at the start of a new EPG page.
// Assembly of a block still in its header is aborted on missing pages,
// since very few blocks span across three or more pages and a missed
// page's packet count cannot be known for certain.
func (a *Assembler) StartPage(stream uint8, firstPkg, newPkgCount uint8) {
	if stream != StreamAI {
		return
	}
	if a.haveHead && a.lastPagePkg != a.pagePkgCount {
		a.haveHead = false
	}
	if a.activeBlock && a.lastPagePkg != a.pagePkgCount {
		a.dataOff += uint16(a.pagePkgCount-a.lastPagePkg) * 39
	}
	a.pagePkgCount = newPkgCount
	a.lastPagePkg = firstPkg
}

// BlockStart is called by the stream decoder whenever it locates the
// start of a new block of any type (not just AI, since the type isn't
// known until the header is decoded). head is the 4 still-encoded
// header bytes; data is whatever of the block's body follows in the
// same packet.
func (a *Assembler) BlockStart(head, data []byte) {
	if a.activeBlock {
		a.checkBlock()
		a.activeBlock = false
	}
	copy(a.newHead[:4], head[:4])
	a.dataOff = 4
	a.haveHead = true
	a.addData(data)
}

// Break aborts reception of the block currently in progress, without
// discarding bytes already accumulated, after a break in the page
// sequence (e.g. a channel change).
func (a *Assembler) Break(stream uint8) {
	if stream != StreamAI {
		return
	}
	a.haveHead = false
	a.activeBlock = false
}

// Restart discards all assembly state. Called once a completed AI
// block has been handed off, so it is never delivered twice.
func (a *Assembler) Restart() {
	a.completeBlock = false
	a.haveBlock = false
	a.haveHead = false
	a.activeBlock = false
}

// Assemble decodes and returns the completed AI block, or ok == false
// if no checksum-clean block is currently available. parityErrs counts
// text bytes that failed the parity check and were recovered
// best-effort; it is a quality signal, not a failure indicator.
func (a *Assembler) Assemble() (block []byte, parityErrs int, ok bool) {
	if !a.completeBlock {
		return nil, 0, false
	}

	buf := make([]byte, a.blockLen)
	vbi.UnHam84Array(a.ctrlData[:], int(a.ctrlLen))
	copy(buf[:a.ctrlLen], a.ctrlData[:a.ctrlLen])

	errs := vbi.UnHamParityArray(buf[a.ctrlLen:], a.textData[:], int(a.blockLen)-int(a.ctrlLen)*2)

	a.completeBlock = false
	return buf, errs, true
}
