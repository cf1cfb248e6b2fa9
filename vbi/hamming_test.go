package vbi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHam84RoundTrip(t *testing.T) {
	for n := byte(0); n < 16; n++ {
		b := Ham84Encode(n)
		got, ok := UnHam84Byte(b)
		require.True(t, ok, "nibble %x", n)
		require.Equal(t, n, got)
	}
}

func TestHam84SingleBitCorrection(t *testing.T) {
	for n := byte(0); n < 16; n++ {
		codeword := Ham84Encode(n)
		for bit := 0; bit < 8; bit++ {
			flipped := codeword ^ (1 << uint(bit))
			got, ok := UnHam84Byte(flipped)
			require.True(t, ok, "nibble %x bit %d", n, bit)
			require.Equal(t, n, got, "nibble %x bit %d", n, bit)
		}
	}
}

// TestHam84KnownVectors checks the scenario-test values from the spec:
// unham_84(0x15) = (0, ok); unham_84(0x14) = (0, ok) (1-bit corrected);
// unham_84(0x16) = (_, fail) (2-bit error, uncorrectable).
func TestHam84KnownVectors(t *testing.T) {
	v, ok := UnHam84Byte(0x15)
	require.True(t, ok)
	require.Equal(t, byte(0), v)

	v, ok = UnHam84Byte(0x14)
	require.True(t, ok)
	require.Equal(t, byte(0), v)

	_, ok = UnHam84Byte(0x16)
	require.False(t, ok)
}

func TestHam84ArrayAllOrNothing(t *testing.T) {
	buf := []byte{Ham84Encode(0x1), Ham84Encode(0x2), Ham84Encode(0x3), Ham84Encode(0x4)}
	ok := UnHam84Array(buf, 2)
	require.True(t, ok)
	require.Equal(t, byte(0x1|0x2<<4), buf[0])
	require.Equal(t, byte(0x3|0x4<<4), buf[1])

	bad := []byte{0x16, Ham84Encode(0x2), Ham84Encode(0x3), Ham84Encode(0x4)}
	require.False(t, UnHam84Array(bad, 2))
}

func TestUnHamParityByte(t *testing.T) {
	// 'A' = 0x41 has 2 set bits (even); the odd-parity bit must be set
	// to make the total bit count odd.
	odd := byte(0x41) | 0x80
	v, ok := UnHamParityByte(odd)
	require.True(t, ok)
	require.Equal(t, byte(0x41), v)

	_, ok = UnHamParityByte(byte(0x41))
	require.False(t, ok)
}

func TestUnHamParityArrayCopiesThrough(t *testing.T) {
	src := []byte{byte(0x41) | 0x80, 0x41, byte(0x20) | 0x80}
	dst := make([]byte, 3)
	errs := UnHamParityArray(dst, src, 3)
	require.Equal(t, 2, errs)
	require.Equal(t, []byte{0x41, 0x41, 0x20}, dst)
}
