package teletext

import "github.com/nxtvepg/epgrecv/vbi"

// MipEpgID is the application identifier packet 8/30-derived magazine
// inventory pages (MIP, ETS 300 707 Annex) use to mark a page as carrying
// Nextview EPG data.
const MipEpgID = 0x04

// DecodeMipPacket scans one MIP page packet (raw magazine field 0..7, packet
// number 6..14, 40-byte payload of Hamming-8/4-coded application ID
// nibbles) for an entry matching MipEpgID, and returns the page address it
// names. ok is false if this packet number carries no MIP entries or none
// matched.
//
// The three packet-number ranges correspond to three different page-table
// layouts within the MIP (one entry per page 0xNN within the magazine,
// addressed by a different formula per range), ported byte-for-byte from
// the reference decoder's table layout.
func DecodeMipPacket(magazine uint8, pkgNo uint8, payload []byte) (pageAddr uint16, ok bool) {
	magShift := uint16(magazine) << 8

	switch {
	case pkgNo >= 6 && pkgNo <= 8:
		for i := 0; i < 20 && 2*i+1 < len(payload); i++ {
			id, idOK := vbi.UnHam84Byte(payload[2*i])
			if idOK && id == MipEpgID {
				page := uint16(0xA0+int(pkgNo-6)*0x20+(i/10)*0x10+(i%10)) | magShift
				return page, true
			}
		}
	case pkgNo >= 9 && pkgNo <= 13:
		for i := 0; i < 18 && 2*i+1 < len(payload); i++ {
			id, idOK := vbi.UnHam84Byte(payload[2*i])
			if idOK && id == MipEpgID {
				page := uint16(0x0A+int(pkgNo-9)*0x30+(i/6)*0x10+(i%6)) | magShift
				return page, true
			}
		}
	case pkgNo == 14:
		for i := 0; i < 6 && 2*i+1 < len(payload); i++ {
			id, idOK := vbi.UnHam84Byte(payload[2*i])
			if idOK && id == MipEpgID {
				page := uint16(0xFA+i) | magShift
				return page, true
			}
		}
	}
	return 0, false
}

// IsMipPage reports whether a page number's low byte (0xFD) marks it as a
// magazine inventory page.
func IsMipPage(pageNo uint16) bool {
	return pageNo&0xff == 0xfd
}
