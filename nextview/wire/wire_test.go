package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeChecksumZeroForEmptyPayload(t *testing.T) {
	require.Equal(t, uint8(0), ComputeChecksum(nil))
}

func TestComputeChecksumKnownVector(t *testing.T) {
	// two bytes with nibble sum 0x12 -> chksum = (0x100-0x12)&0xff = 0xEE
	data := []byte{0x11, 0x1f}
	require.Equal(t, uint8(0xee), ComputeChecksum(data))
}

func TestDecodeBlockLenAccountsForHeaderItself(t *testing.T) {
	// all-zero nibbles -> blockLen == 4 (length field covers itself + 2 header bytes)
	require.Equal(t, uint16(4), DecodeBlockLen(0, 0, 0))
}

func TestTypeNameUnknown(t *testing.T) {
	require.Equal(t, "?", TypeName(0xff))
	require.Equal(t, "AI", TypeName(TypeAI))
}
