package vbi

// VPSDataLen is the number of bi-phase-coded data bytes decoded from a
// VPS line (ETS 300 231), following the run-in and start code.
const VPSDataLen = 12

// DecodeVPS recovers the CNI carried on VBI line 9 when a VPS signal is
// present; the PIL date/time fields in the same data are not returned. It
// returns ok == false if the run-in/start-code pattern (0x55 0x55 0x51
// 0x99) is not found or a bi-phase bit error aborts decoding early.
//
// VPS uses a slower bit rate than teletext (vpsStep) and bi-phase
// ("Manchester-like") coding: a 1 bit is transmitted as two samples
// differing in level ('10'), a 0 bit as '01'; two consecutive
// equal-level samples signal a bit error.
func DecodeVPS(line []byte) (cni uint16, ok bool) {
	_, off := autoThreshold(line)
	dpos := 0

	if vpsScan(line, &dpos, off) != 0x55 ||
		vpsScan(line, &dpos, off) != 0x55 ||
		vpsScan(line, &dpos, off) != 0x51 ||
		vpsScan(line, &dpos, off) != 0x99 {
		return 0, false
	}

	var data [VPSDataLen]byte
	i := 0
	for ; i < VPSDataLen; i++ {
		var b byte
		j := 0
		for ; j < 8; j++ {
			idx1 := dpos >> fpShift
			idx2 := (dpos + vpsStep) >> fpShift
			if idx1 < 0 || idx2 >= len(line) {
				return 0, false
			}
			bit1 := (line[idx1] + off) & 0x80
			bit2 := (line[idx2] + off) & 0x80
			if bit1 == bit2 {
				break // bit error: both halves sampled the same level
			}
			b |= bit1 >> uint(j)
			dpos += vpsStep * 2
		}
		data[i] = b
		if j < 8 {
			break
		}
	}
	if i < VPSDataLen {
		// need at least bytes 11 and 12 (index 10,11 with our 0-based,
		// offset by the 3 already-consumed run-in/start bytes in the
		// original 1-indexed layout: data[11],data[13],data[14])
		return 0, false
	}

	// CNI packing per ETS 300 231 clause 8.2.3, indices relative to the
	// original 1-based byte-13/14/11 layout (here data[10],data[11],data[8]
	// since our array starts right after the start code, i.e. original
	// index 3 == data[0]):
	b11 := data[8]
	b13 := data[10]
	b14 := data[11]
	c := (uint16(b13&0x3) << 10) | (uint16(b14&0xc0) << 2) | uint16(b11&0xc0) | uint16(b14&0x3f)
	if c == 0 || c&0xfff == 0xfff {
		return 0, false
	}
	return c, true
}
