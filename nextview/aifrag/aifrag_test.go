package aifrag

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nxtvepg/epgrecv/vbi"
)

// ham84Pair returns the two raw Hamming-8/4 bytes (low nibble, high
// nibble) that decode back to b.
func ham84Pair(b byte) (lo, hi byte) {
	return vbi.Ham84Encode(b & 0xf), vbi.Ham84Encode(b >> 4)
}

// buildAiBlock returns the raw (head, body) bytes of one complete AI
// block: a 14-byte decoded header, one extra control byte, and two
// parity-encoded text bytes decoding to 'A' and 'B' - 15 control
// elements, 32 bytes total.
func buildAiBlock() (head, body []byte) {
	// block_len-4 = h[0]>>5 | h[1]<<3 = 4 | 24 = 28 -> block_len = 32
	// ctrl_len-2  = h[3] | (h[4]&3)<<8 = 13          -> ctrl_len  = 15
	// block type  = h[4]>>2 = 0 (TypeAI); both version fields 0
	h := [14]byte{0x80, 0x03, 0x00 /* checksum, filled below */, 0x0D, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	const extraCtrlByte = 0x00

	var sum uint32
	for i, b := range h {
		if i == 2 {
			continue
		}
		sum += uint32(b&0xf) + uint32(b>>4)
	}
	sum += uint32(extraCtrlByte&0xf) + uint32(extraCtrlByte>>4)
	h[2] = byte((0x100 - (sum & 0xff)) & 0xff)

	var raw [30]byte
	for i, b := range h {
		raw[2*i], raw[2*i+1] = ham84Pair(b)
	}
	raw[28], raw[29] = ham84Pair(extraCtrlByte)

	textRaw := []byte{0xC1, 0xC2} // parity-encoded, decode to 'A', 'B'

	body = append(append([]byte{}, raw[4:30]...), textRaw...)
	return raw[0:4], body
}

// TestAssemblerCompletesAiBlockInOneShot feeds one complete AI block
// through BlockStart in a single call, exercising the header decode,
// checksum validation and text parity decode paths together.
func TestAssemblerCompletesAiBlockInOneShot(t *testing.T) {
	head, body := buildAiBlock()

	a := New()
	a.BlockStart(head, body)

	block, parityErrs, ok := a.Assemble()
	require.True(t, ok)
	require.Equal(t, 0, parityErrs)
	require.Len(t, block, 32)
	require.Equal(t, byte(0x80), block[0])
	require.Equal(t, byte('A'), block[15])
	require.Equal(t, byte('B'), block[16])
}

func TestAssemblerAssembleFailsWithoutCompleteBlock(t *testing.T) {
	a := New()
	block, _, ok := a.Assemble()
	require.False(t, ok)
	require.Nil(t, block)
}

// TestAssemblerRestartDiscardsCompletedBlock checks that a block ready
// for delivery is no longer available once Restart has been called,
// matching the contract that the caller (ctl.Controller) calls Restart
// once it has taken a block, before it polls for the next one.
func TestAssemblerRestartDiscardsCompletedBlock(t *testing.T) {
	head, body := buildAiBlock()

	a := New()
	a.BlockStart(head, body)
	a.Restart()

	_, _, ok := a.Assemble()
	require.False(t, ok)
}

func TestAssemblerBreakAbortsActiveBlockWithoutLosingBuffer(t *testing.T) {
	head, body := buildAiBlock()

	a := New()
	// feed enough of the body to complete the header (activating the
	// block) but stop short of the trailing text bytes, then break
	// mid-reception
	a.BlockStart(head, body[:len(body)-2])
	require.True(t, a.activeBlock)

	a.Break(StreamAI)
	require.False(t, a.activeBlock)
	require.False(t, a.haveHead)

	_, _, ok := a.Assemble()
	require.False(t, ok)
}
