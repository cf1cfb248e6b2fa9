package block

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nxtvepg/epgrecv/nextview/wire"
)

func commonHeader(version uint8) []byte {
	h := make([]byte, commonHeaderLen)
	h[5] = version
	return h
}

func TestDecodeBiReturnsAppID(t *testing.T) {
	blk := &wire.Block{Type: wire.TypeBI, AppID: 7}
	rec, err := Decode(blk, AlphabetLatin1)
	require.NoError(t, err)
	require.Equal(t, BI{AppID: 7}, rec)
}

func TestDecodeAiParsesNetworkTable(t *testing.T) {
	text := []byte("Demo Channel")
	payload := []byte{
		1,    // netwopCount
		0,    // defaultAlpha
		3, 1, // ver1, ver2
	}
	entry := make([]byte, 14)
	binary.BigEndian.PutUint16(entry[0:2], 0x0DE1) // cni
	binary.BigEndian.PutUint16(entry[2:4], 60)     // lto
	entry[4] = 2                                   // dayCount
	binary.BigEndian.PutUint16(entry[5:7], 100)    // startNo
	binary.BigEndian.PutUint16(entry[7:9], 200)    // stopNo
	binary.BigEndian.PutUint16(entry[9:11], 300)   // startNoSwo
	binary.BigEndian.PutUint16(entry[11:13], 400)  // stopNoSwo
	entry[13] = 0                                  // alphabet group
	payload = append(payload, entry...)
	payload = append(payload, 12, 0, 0) // name: length 12, offset 0 (into text)

	ctrl := append(commonHeader(0), payload...)
	blk := &wire.Block{Type: wire.TypeAI, Ctrl: ctrl, Text: text}

	rec, err := Decode(blk, AlphabetLatin1)
	require.NoError(t, err)
	ai, ok := rec.(AI)
	require.True(t, ok)
	require.Equal(t, uint8(1), ai.NetwopCount)
	require.Len(t, ai.Netwops, 1)
	require.Equal(t, uint16(0x0DE1), ai.Netwops[0].CNI)
	require.Equal(t, uint16(100), ai.Netwops[0].StartNo)
	require.Equal(t, "Demo Channel", ai.Netwops[0].Name)
}

func TestDecodePiParsesFixedFieldsAndTitle(t *testing.T) {
	text := []byte("News")
	payload := make([]byte, 20)
	payload[0] = 3                                      // netwop index
	binary.BigEndian.PutUint16(payload[1:3], 42)        // block_no
	binary.BigEndian.PutUint32(payload[3:7], 1000)      // start_time
	binary.BigEndian.PutUint32(payload[7:11], 2000)     // stop_time
	binary.BigEndian.PutUint32(payload[11:15], 0x1234)  // pil
	payload[15] = 0x01                                  // feature flags low
	payload[17] = 4                                     // parental rating
	payload[18] = 2                                     // editorial rating
	payload[19] = 1                                      // stream

	payload = append(payload, 0) // theme count = 0
	payload = append(payload, 0) // sortcrit count = 0
	payload = append(payload, 0) // descriptor count = 0
	payload = append(payload, 4, 0, 0)  // title: len 4, offset 0
	payload = append(payload, 0, 0, 0)  // short info: absent
	payload = append(payload, 0, 0, 0)  // long info: absent

	ctrl := append(commonHeader(5), payload...)
	blk := &wire.Block{Type: wire.TypePI, Ctrl: ctrl, Text: text}

	rec, err := Decode(blk, AlphabetLatin1)
	require.NoError(t, err)
	pi, ok := rec.(PI)
	require.True(t, ok)
	require.Equal(t, uint8(3), pi.NetwopIndex)
	require.Equal(t, uint16(42), pi.BlockNo)
	require.Equal(t, int64(1000), pi.StartTime)
	require.Equal(t, uint8(4), pi.ParentalRating)
	require.Equal(t, "News", pi.Title)
	require.Equal(t, uint8(5), pi.Version)
}

func TestDecodeAiMissingNetwopReturnsShortCtrlError(t *testing.T) {
	payload := []byte{1, 0, 0, 0} // claims 1 netwop but supplies no entry
	ctrl := append(commonHeader(0), payload...)
	blk := &wire.Block{Type: wire.TypeAI, Ctrl: ctrl}

	_, err := Decode(blk, AlphabetLatin1)
	require.ErrorIs(t, err, ErrShortCtrl)
}

func TestDecodeStringPassesThroughLowBytesAndMapsCyrillic(t *testing.T) {
	require.Equal(t, "AB", DecodeString([]byte{'A', 'B'}, AlphabetCyrillic))
	require.Equal(t, string(rune(0x0410)), DecodeString([]byte{0xA0}, AlphabetCyrillic))
}
