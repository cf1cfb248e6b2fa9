package epgdb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nxtvepg/epgrecv/nextview/block"
)

func sampleAI(netwopCount uint8) block.AI {
	netwops := make([]block.Netwop, netwopCount)
	for i := range netwops {
		netwops[i] = block.Netwop{CNI: uint16(0xD000 + i), StartNo: 0, StopNo: 0xffff}
	}
	return block.AI{NetwopCount: netwopCount, Netwops: netwops}
}

func TestAddPIRejectsUnknownNetwop(t *testing.T) {
	db := New(time.Hour)
	require.NoError(t, db.AddAI(sampleAI(1)))

	err := db.AddPI(block.PI{NetwopIndex: 5, BlockNo: 1, StartTime: 100, StopTime: 200})
	require.ErrorIs(t, err, ErrInvariant)
}

func TestAddPIMovesOverlappingPIToObsolete(t *testing.T) {
	db := New(time.Hour)
	require.NoError(t, db.AddAI(sampleAI(1)))

	first := block.PI{NetwopIndex: 0, BlockNo: 1, StartTime: 1000, StopTime: 2000, Title: "first"}
	require.NoError(t, db.AddPI(first))

	second := block.PI{NetwopIndex: 0, BlockNo: 2, StartTime: 1500, StopTime: 2500, Title: "second"}
	require.NoError(t, db.AddPI(second))

	require.Nil(t, db.GetPI(1, 0))
	obsolete := db.GetFirstObsoletePI()
	require.NotNil(t, obsolete)
	require.Equal(t, "first", obsolete.Title)

	got := db.GetPI(2, 0)
	require.NotNil(t, got)
	require.Equal(t, "second", got.Title)
}

func TestAddPISupersedesSameBlockNoOnlyWithNewerVersion(t *testing.T) {
	db := New(time.Hour)
	require.NoError(t, db.AddAI(sampleAI(1)))

	v1 := block.PI{NetwopIndex: 0, BlockNo: 1, StartTime: 1000, StopTime: 2000, Version: 1, Title: "v1"}
	require.NoError(t, db.AddPI(v1))

	stale := block.PI{NetwopIndex: 0, BlockNo: 1, StartTime: 1000, StopTime: 2000, Version: 1, Title: "stale-retransmit"}
	require.NoError(t, db.AddPI(stale))
	require.Equal(t, "v1", db.GetPI(1, 0).Title)

	v2 := block.PI{NetwopIndex: 0, BlockNo: 1, StartTime: 1000, StopTime: 2000, Version: 2, Title: "v2"}
	require.NoError(t, db.AddPI(v2))
	require.Equal(t, "v2", db.GetPI(1, 0).Title)
}

func TestAddAIDropsPIOnRemovedNetwop(t *testing.T) {
	db := New(time.Hour)
	require.NoError(t, db.AddAI(sampleAI(2)))
	require.NoError(t, db.AddPI(block.PI{NetwopIndex: 1, BlockNo: 1, StartTime: 1000, StopTime: 2000}))

	require.NoError(t, db.AddAI(sampleAI(1)))
	require.Nil(t, db.GetPI(1, 1))
	require.NotNil(t, db.GetFirstObsoletePI())
}

func TestAddPIRejectedWhileLocked(t *testing.T) {
	db := New(time.Hour)
	require.NoError(t, db.AddAI(sampleAI(1)))
	db.Lock()
	err := db.AddPI(block.PI{NetwopIndex: 0, BlockNo: 1, StartTime: 1000, StopTime: 2000})
	require.ErrorIs(t, err, ErrLocked)
	db.Unlock()
}

func TestPurgeExpiredRemovesOldStopTimes(t *testing.T) {
	db := New(time.Minute)
	require.NoError(t, db.AddAI(sampleAI(1)))

	now := time.Unix(100000, 0)
	require.NoError(t, db.AddPI(block.PI{NetwopIndex: 0, BlockNo: 1, StartTime: 90000, StopTime: 90500}))
	require.NoError(t, db.AddPI(block.PI{NetwopIndex: 0, BlockNo: 2, StartTime: 99900, StopTime: 200000}))

	purged := db.PurgeExpired(now)
	require.Equal(t, 1, purged)
	require.Nil(t, db.GetPI(1, 0))
	require.NotNil(t, db.GetPI(2, 0))
}

func TestGetPiBlockCountWraparound(t *testing.T) {
	require.Equal(t, uint32(10), GetPiBlockCount(5, 14))
	require.Equal(t, uint32(0), GetPiBlockCount(0, 0xffff))
	require.Equal(t, uint32(0), GetPiBlockCount(5, 4))
	require.Equal(t, uint32(8), GetPiBlockCount(0xfffb, 2))
}

func TestGetPiBlockIndexWraparound(t *testing.T) {
	require.Equal(t, uint32(9), GetPiBlockIndex(5, 14))
	require.Equal(t, uint32(0x10000-5+2), GetPiBlockIndex(5, 2))
}

func TestGetProgIdxRequiresLockAndAI(t *testing.T) {
	db := New(time.Hour)
	require.NoError(t, db.AddAI(sampleAI(1)))
	require.NoError(t, db.AddPI(block.PI{NetwopIndex: 0, BlockNo: 10, StartTime: 1000, StopTime: 2000}))

	require.Equal(t, uint32(0xffff), db.GetProgIdx(10, 0, time.Unix(1500, 0)))

	db.Lock()
	defer db.Unlock()
	require.Equal(t, uint32(0), db.GetProgIdx(10, 0, time.Unix(1500, 0)))
	require.Equal(t, uint32(1), db.GetProgIdx(10, 0, time.Unix(500, 0)))
}

func TestAddOIGetOIRoundTrips(t *testing.T) {
	db := New(time.Hour)
	require.NoError(t, db.AddOI(block.OI{BlockNo: 3, Text: "overview"}))
	require.NoError(t, db.AddOI(block.OI{BlockNo: 1, Text: "first"}))

	require.Equal(t, "overview", db.GetOI(3).Text)
	require.Equal(t, "first", db.GetOI(1).Text)
	require.Nil(t, db.GetOI(2))
}

func TestAllPIReturnsSnapshotSortedByStartTime(t *testing.T) {
	db := New(time.Hour)
	require.NoError(t, db.AddAI(sampleAI(1)))

	require.NoError(t, db.AddPI(block.PI{NetwopIndex: 0, BlockNo: 2, StartTime: 2000, StopTime: 3000, Title: "later"}))
	require.NoError(t, db.AddPI(block.PI{NetwopIndex: 0, BlockNo: 1, StartTime: 1000, StopTime: 2000, Title: "earlier"}))

	all := db.AllPI()
	require.Len(t, all, 2)
	require.Equal(t, "earlier", all[0].Title)
	require.Equal(t, "later", all[1].Title)

	// the slice itself is a fresh copy, even though (like GetPI) its
	// elements still point at the database's own records
	all[0] = &block.PI{Title: "replaced"}
	require.Equal(t, "earlier", db.AllPI()[0].Title)
}

func TestNetworkNameLooksUpCurrentAI(t *testing.T) {
	db := New(time.Hour)
	require.Equal(t, "", db.NetworkName(0))

	ai := sampleAI(2)
	ai.Netwops[1].Name = "Channel One"
	require.NoError(t, db.AddAI(ai))

	require.Equal(t, "Channel One", db.NetworkName(1))
	require.Equal(t, "", db.NetworkName(5))
}

func TestAddLIKeyedByBlockAndNetwop(t *testing.T) {
	db := New(time.Hour)
	require.NoError(t, db.AddLI(block.LI{BlockNo: 4, NetwopIndex: 0x8000, ThisNetwork: true}))
	got := db.GetLI(4, 0x8000)
	require.NotNil(t, got)
	require.True(t, got.ThisNetwork)
	require.Nil(t, db.GetLI(4, 0))
}
