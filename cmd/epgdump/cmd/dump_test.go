package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHexDumpRendersOffsetHexAndAscii(t *testing.T) {
	out := hexDump([]byte("Hi!"))
	require.Contains(t, out, "0000")
	require.Contains(t, out, "48 69 21")
	require.Contains(t, out, "Hi!")
}

func TestHexDumpEscapesNonPrintableBytes(t *testing.T) {
	out := hexDump([]byte{0x00, 0x1f, 0x41})
	require.Contains(t, out, "00 1f 41")
	require.Contains(t, out, "..A")
}

func TestHexDumpHandlesMultipleLines(t *testing.T) {
	data := make([]byte, 20)
	for i := range data {
		data[i] = byte(i)
	}
	out := hexDump(data)
	require.Contains(t, out, "0000")
	require.Contains(t, out, "0010")
}
