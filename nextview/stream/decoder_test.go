package stream

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nxtvepg/epgrecv/nextview/wire"
	"github.com/nxtvepg/epgrecv/vbi"
)

// TestDecoderAssemblesSingleBiBlock builds one 40-byte EPG data packet
// containing a single, complete, self-contained 4-byte (decoded) BI
// block starting right at the byte the block-pointer nibble names, and
// checks the decoder assembles and checksum-verifies it in one pass.
//
// Decoded control bytes are [app_id_lo|blockLenBits<<4, blockLenBits,
// chksum, 0]; c1..c4 (the nibbles the decoder reads to learn app_id and
// block_len before the rest of the block is even decoded) are literally
// the same raw hamming bytes as blockBuf[0..3], so the header and the
// block body overlap by construction.
func TestDecoderAssemblesSingleBiBlock(t *testing.T) {
	const (
		c1 = 0 // app_id low nibble
		c2 = 8 // bit0 -> app_id bit4 (0); bits1-3 -> block_len bits0-2 (4)
		c3 = 0 // block_len bits3-6
		c4 = 0 // block_len bits7-10
	)
	decoded := [4]byte{c1 | c2<<4, c3 | c4<<4, 0, 0}
	decoded[2] = wire.ComputeChecksum(decoded[:])

	hamBi := make([]byte, 8)
	for i, b := range decoded {
		hamBi[2*i] = vbi.Ham84Encode(b & 0xf)
		hamBi[2*i+1] = vbi.Ham84Encode(b >> 4)
	}
	require.Equal(t, vbi.Ham84Encode(c1), hamBi[0])
	require.Equal(t, vbi.Ham84Encode(c2), hamBi[1])

	d := New(0x21, true)
	require.NoError(t, d.NewPage(0x0011)) // stream 1, pkgCount=1, ci=1

	pkt := make([]byte, 40)
	pkt[0] = vbi.Ham84Encode(0)    // BP=0 -> blockPtr=1
	pkt[1] = vbi.Ham84Encode(0x0c) // BS marker
	copy(pkt[2:], hamBi)

	blocks := d.DecodePacket(1, pkt)
	require.Len(t, blocks, 1)
	require.Equal(t, wire.TypeBI, blocks[0].Type)
	require.Equal(t, uint8(0), blocks[0].AppID)
}

func TestNewPageRejectsBadStreamNumber(t *testing.T) {
	d := New(0x21, true)
	err := d.NewPage(0x0200) // stream nibble = 2, invalid
	require.ErrorIs(t, err, ErrBadStream)
}

func TestNewPageRejectsTooManyPackets(t *testing.T) {
	d := New(0x21, true)
	// (sub&0x3000)>>9 | (sub&0x70)>>4 must exceed 25
	err := d.NewPage(0x3070)
	require.ErrorIs(t, err, ErrTooManyPackets)
}

func TestDecodePacketIgnoresPacketBeyondPageCount(t *testing.T) {
	d := New(0x21, true)
	require.NoError(t, d.NewPage(0x0001)) // pkgCount=0
	blocks := d.DecodePacket(1, make([]byte, 40))
	require.Nil(t, blocks)
}
