package epgfilter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nxtvepg/epgrecv/epgdb"
	"github.com/nxtvepg/epgrecv/nextview/block"
)

func TestMatchesNetwopAxis(t *testing.T) {
	fc := New()
	fc.SetNetwop(3)
	fc.Enable(AxisNetwop)

	require.True(t, Matches(nil, fc, &block.PI{NetwopIndex: 3}))
	require.False(t, Matches(nil, fc, &block.PI{NetwopIndex: 4}))
}

func TestMatchesNetwopPrefilterOnlyWhenNetwopDisabled(t *testing.T) {
	fc := New()
	fc.SetNetwopPrefilter(3)
	fc.Enable(AxisNetwopPrefilter)
	require.True(t, Matches(nil, fc, &block.PI{NetwopIndex: 3}))

	fc.SetNetwop(9)
	fc.Enable(AxisNetwop)
	require.False(t, Matches(nil, fc, &block.PI{NetwopIndex: 3}))
	require.True(t, Matches(nil, fc, &block.PI{NetwopIndex: 9}))
}

func TestMatchesParentalRatingZeroNeverMatches(t *testing.T) {
	fc := New()
	fc.SetParentalRating(6)
	fc.Enable(AxisParentalRating)

	require.False(t, Matches(nil, fc, &block.PI{ParentalRating: 0}))
	require.True(t, Matches(nil, fc, &block.PI{ParentalRating: 6}))
	require.False(t, Matches(nil, fc, &block.PI{ParentalRating: 7}))
}

func TestMatchesThemesAndAcrossClassesOrWithin(t *testing.T) {
	fc := New()
	fc.SetThemeRange(0x40, 0x40, 1) // class 1 = {0x40}
	fc.SetThemeRange(0x41, 0x42, 2) // class 2 = {0x41, 0x42}
	fc.Enable(AxisThemes)

	require.False(t, Matches(nil, fc, &block.PI{Themes: []uint8{0x40}}))
	require.True(t, Matches(nil, fc, &block.PI{Themes: []uint8{0x40, 0x42}}))
}

func TestMatchesSeriesOrThemes(t *testing.T) {
	fc := New()
	fc.SetSeries(0, 0x10, true)
	fc.Enable(AxisSeries)

	require.True(t, Matches(nil, fc, &block.PI{NetwopIndex: 0, Themes: []uint8{0x90}}))
	require.False(t, Matches(nil, fc, &block.PI{NetwopIndex: 0, Themes: []uint8{0x91}}))

	// a non-series-coded theme still matches via the themes axis, even
	// though the series axis (evaluated first) didn't match
	fc.SetThemeRange(0x20, 0x20, 1)
	fc.Enable(AxisThemes)
	require.True(t, Matches(nil, fc, &block.PI{NetwopIndex: 0, Themes: []uint8{0x20}}))
}

func TestMatchesFeaturesIsOrAcrossTuples(t *testing.T) {
	fc := New()
	fc.AddFeatureTuple(0x01, 0xff)
	fc.AddFeatureTuple(0x02, 0xff)
	fc.Enable(AxisFeatures)

	require.True(t, Matches(nil, fc, &block.PI{FeatureFlags: 0x01}))
	require.True(t, Matches(nil, fc, &block.PI{FeatureFlags: 0x02}))
	require.False(t, Matches(nil, fc, &block.PI{FeatureFlags: 0x03}))
}

func TestMatchesSubstringChecksAllThreeTextFields(t *testing.T) {
	fc := New()
	fc.SetSubstring("news", true)
	fc.Enable(AxisSubstring)

	require.True(t, Matches(nil, fc, &block.PI{Title: "Evening News"}))
	require.True(t, Matches(nil, fc, &block.PI{ShortInfo: "Top NEWS today"}))
	require.False(t, Matches(nil, fc, &block.PI{Title: "Weather"}))
}

func TestMatchesCustomAxis(t *testing.T) {
	fc := New()
	fc.SetCustom(func(pi *block.PI) bool { return pi.BlockNo%2 == 0 })
	fc.Enable(AxisCustom)

	require.True(t, Matches(nil, fc, &block.PI{BlockNo: 4}))
	require.False(t, Matches(nil, fc, &block.PI{BlockNo: 5}))
}

func TestCloneIsIndependent(t *testing.T) {
	fc := New()
	fc.SetNetwop(1)
	fc.Enable(AxisNetwop)

	clone := fc.Clone()
	clone.SetNetwop(2)

	require.True(t, Matches(nil, fc, &block.PI{NetwopIndex: 1}))
	require.False(t, Matches(nil, fc, &block.PI{NetwopIndex: 2}))
	require.True(t, Matches(nil, clone, &block.PI{NetwopIndex: 2}))
}

func TestProgIdxAxisConsultsDatabase(t *testing.T) {
	db := epgdb.New(time.Hour)
	require.NoError(t, db.AddAI(sampleAIForFilter(1)))
	require.NoError(t, db.AddPI(block.PI{NetwopIndex: 0, BlockNo: 10, StartTime: 1000, StopTime: 2000}))
	db.Lock()
	defer db.Unlock()

	fc := New()
	fc.SetProgIdxRange(0, 0)
	fc.Enable(AxisProgIdx)

	require.True(t, Matches(db, fc, &block.PI{NetwopIndex: 0, BlockNo: 10}))
}

func sampleAIForFilter(n uint8) block.AI {
	netwops := make([]block.Netwop, n)
	for i := range netwops {
		netwops[i] = block.Netwop{StartNo: 0, StopNo: 0xffff}
	}
	return block.AI{NetwopCount: n, Netwops: netwops}
}
