package acq

import (
	"testing"

	"github.com/nxtvepg/epgrecv/vbi"
	"github.com/stretchr/testify/require"
)

func TestRouterAcceptsEpgPageHeaderAndBody(t *testing.T) {
	rb := NewRingBuffer()
	rt := NewRouter(rb)
	rt.SetEpgPageNo(0x1DF)

	body := make([]byte, 40)

	accepted := rt.AddPacket(0x1DF, 0x1234, 0, body)
	require.True(t, accepted)

	accepted = rt.AddPacket(0x1DF, 0, 5, body)
	require.True(t, accepted)

	pkt, ok := rb.Next()
	require.True(t, ok)
	require.Equal(t, uint8(0), pkt.Pkgno)
	require.Equal(t, uint16(0x1DF), pkt.PageNo)

	pkt, ok = rb.Next()
	require.True(t, ok)
	require.Equal(t, uint8(5), pkt.Pkgno)
}

func TestRouterClosesEpgPageOnMagazineSiblingHeader(t *testing.T) {
	rb := NewRingBuffer()
	rt := NewRouter(rb)
	rt.SetEpgPageNo(0x1DF)
	body := make([]byte, 40)

	require.True(t, rt.AddPacket(0x1DF, 0, 0, body))
	require.True(t, rt.isEpgPage)

	// a different page header in the same magazine closes the EPG page
	rt.AddPacket(0x1AA, 0, 0, body)
	require.False(t, rt.isEpgPage)

	// so a body packet that follows is no longer accepted
	accepted := rt.AddPacket(0x1AA, 0, 1, body)
	require.False(t, accepted)
}

func TestRouterIgnoresBodyPacketsAboveRange(t *testing.T) {
	rb := NewRingBuffer()
	rt := NewRouter(rb)
	rt.SetEpgPageNo(0x1DF)
	body := make([]byte, 40)

	rt.AddPacket(0x1DF, 0, 0, body)
	accepted := rt.AddPacket(0x1DF, 0, 26, body)
	require.False(t, accepted)
}

func TestRouterTracksMipPages(t *testing.T) {
	rb := NewRingBuffer()
	rt := NewRouter(rb)
	body := make([]byte, 40)

	rt.AddPacket(0x1FD, 0, 0, body) // magazine 1's 0xFD page: MIP inventory
	require.Equal(t, uint32(1<<1), rt.mipPages)

	mipBody := make([]byte, 40)
	// pkgno 6, entry i=0: id at offset 0,1
	mipBody[0] = vbi.Ham84Encode(4) // MipEpgID
	rt.AddPacket(0x100, 6, 6, mipBody)

	require.Equal(t, uint32(0x1A0), rt.MipPageNo())
}

func TestScanResultCNIPreference(t *testing.T) {
	s := ScanResult{VpsCni: 0x1234, PdcCni: 0x5678}
	cni, wait := s.CNI()
	require.Equal(t, uint16(0x1234), cni)
	require.False(t, wait)

	s = ScanResult{PdcCni: 0x5678}
	cni, wait = s.CNI()
	require.Equal(t, uint16(0x5678), cni)
	require.False(t, wait)

	s = ScanResult{Ni: 0xABCD, NiRepCount: 1}
	_, wait = s.CNI()
	require.True(t, wait)

	s = ScanResult{Ni: 0xABCD, NiRepCount: 3}
	cni, wait = s.CNI()
	require.Equal(t, uint16(0xABCD), cni)
	require.False(t, wait)
}
