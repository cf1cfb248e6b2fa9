// Package epgfilter implements the multi-axis PI predicate pipeline
// (ETS 300 707 clause 11 consumer side): a Filter is a set of
// independently toggleable axes plus per-axis parameters, and Matches
// is a pure, side-effect-free function of (filter, PI) pairs so a
// caller may clone a filter and mutate the clone without disturbing
// an in-flight scan (spec.md §4.9, "Match function is pure").
package epgfilter

import (
	"strings"
	"time"

	"github.com/nxtvepg/epgrecv/epgdb"
	"github.com/nxtvepg/epgrecv/nextview/block"
)

// Axis is one bit of the enabled-filters bit set.
type Axis uint32

const (
	AxisNetwop Axis = 1 << iota
	AxisNetwopPrefilter
	AxisTimeBegin
	AxisTimeEnd
	AxisParentalRating
	AxisEditorialRating
	AxisProgIdx
	AxisFeatures
	AxisThemes
	AxisSeries
	AxisSortcrit
	AxisLanguages
	AxisSubtitles
	AxisSubstring
	AxisCustom
	AxisExpireTime
)

const maxNetwop = 64
const maxFeatureTuples = 8

type featureTuple struct {
	flag, mask uint32
}

// Filter holds every axis's parameters. The zero value matches
// everything (no axis enabled).
type Filter struct {
	enabled Axis

	netwop       [maxNetwop]bool
	netwopPre    [maxNetwop]bool
	timeBegin    int64
	timeEnd      int64
	parentalMax  uint8
	editorialMin uint8
	progIdxFirst uint32
	progIdxLast  uint32

	features     []featureTuple
	usedThemes   uint8
	themeClass   map[uint8]uint8 // theme -> bitmask of classes it belongs to
	series       map[[2]uint8]bool // (netwop, series code) -> enabled

	usedSortcrit uint8
	sortcritCl   map[uint8]uint8

	langBits  map[uint8]map[uint8]bool // netwop -> descriptor id -> enabled
	subtBits  map[uint8]map[uint8]bool

	substr     string
	ignoreCase bool

	expireThreshold int64

	custom func(*block.PI) bool
}

// New returns a filter with every axis disabled.
func New() *Filter {
	return &Filter{
		themeClass: make(map[uint8]uint8),
		series:     make(map[[2]uint8]bool),
		sortcritCl: make(map[uint8]uint8),
		langBits:   make(map[uint8]map[uint8]bool),
		subtBits:   make(map[uint8]map[uint8]bool),
	}
}

// Clone returns an independent copy; mutating it never affects fc
// (spec.md §4.9, "filter contexts can be cloned ... without affecting
// in-flight queries").
func (fc *Filter) Clone() *Filter {
	cp := *fc
	cp.features = append([]featureTuple(nil), fc.features...)
	cp.themeClass = cloneU8Map(fc.themeClass)
	cp.series = make(map[[2]uint8]bool, len(fc.series))
	for k, v := range fc.series {
		cp.series[k] = v
	}
	cp.sortcritCl = cloneU8Map(fc.sortcritCl)
	cp.langBits = cloneNestedMap(fc.langBits)
	cp.subtBits = cloneNestedMap(fc.subtBits)
	return &cp
}

func cloneU8Map(m map[uint8]uint8) map[uint8]uint8 {
	cp := make(map[uint8]uint8, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

func cloneNestedMap(m map[uint8]map[uint8]bool) map[uint8]map[uint8]bool {
	cp := make(map[uint8]map[uint8]bool, len(m))
	for k, v := range m {
		inner := make(map[uint8]bool, len(v))
		for ik, iv := range v {
			inner[ik] = iv
		}
		cp[k] = inner
	}
	return cp
}

func (fc *Filter) Enable(axes Axis)  { fc.enabled |= axes }
func (fc *Filter) Disable(axes Axis) { fc.enabled &^= axes }

func (fc *Filter) SetNetwop(netwop uint8) {
	if int(netwop) < maxNetwop {
		fc.netwop[netwop] = true
	}
}

func (fc *Filter) SetNetwopPrefilter(netwop uint8) {
	if int(netwop) < maxNetwop {
		fc.netwopPre[netwop] = true
	}
}

func (fc *Filter) SetTimeRange(begin, end int64) {
	fc.timeBegin, fc.timeEnd = begin, end
}

func (fc *Filter) SetParentalRating(max uint8)   { fc.parentalMax = max }
func (fc *Filter) SetEditorialRating(min uint8)  { fc.editorialMin = min }
func (fc *Filter) SetProgIdxRange(first, last uint32) {
	fc.progIdxFirst, fc.progIdxLast = first, last
}

func (fc *Filter) AddFeatureTuple(flag, mask uint32) {
	if len(fc.features) < maxFeatureTuples {
		fc.features = append(fc.features, featureTuple{flag: flag, mask: mask})
	}
}

// SetThemeRange marks themes [first, last] as members of the classes
// named in classBits (spec.md §4.9, "8 classes, each with 256-bit
// theme set").
func (fc *Filter) SetThemeRange(first, last, classBits uint8) {
	for t := int(first); t <= int(last); t++ {
		fc.themeClass[uint8(t)] |= classBits
	}
	fc.usedThemes |= classBits
}

func (fc *Filter) SetSeries(netwop, series uint8, enable bool) {
	fc.series[[2]uint8{netwop, series}] = enable
}

func (fc *Filter) SetSortcritRange(first, last, classBits uint8) {
	for t := int(first); t <= int(last); t++ {
		fc.sortcritCl[uint8(t)] |= classBits
	}
	fc.usedSortcrit |= classBits
}

func (fc *Filter) SetLanguageDescriptor(netwop, descID uint8) {
	if fc.langBits[netwop] == nil {
		fc.langBits[netwop] = make(map[uint8]bool)
	}
	fc.langBits[netwop][descID] = true
}

func (fc *Filter) SetSubtitleDescriptor(netwop, descID uint8) {
	if fc.subtBits[netwop] == nil {
		fc.subtBits[netwop] = make(map[uint8]bool)
	}
	fc.subtBits[netwop][descID] = true
}

func (fc *Filter) SetSubstring(needle string, ignoreCase bool) {
	fc.substr = needle
	fc.ignoreCase = ignoreCase
}

func (fc *Filter) SetExpireThreshold(t int64) { fc.expireThreshold = t }

// SetCustom installs an arbitrary predicate for the Custom axis
// (spec.md §4.9, "function pointer + opaque data"; expressed in Go as
// a closure rather than a function-pointer/void* pair).
func (fc *Filter) SetCustom(pred func(*block.PI) bool) { fc.custom = pred }

func containsTheme(themes []uint8, t uint8) bool {
	for _, x := range themes {
		if x == t {
			return true
		}
	}
	return false
}

func substrMatch(haystack, needle string, ignoreCase bool) bool {
	if needle == "" {
		return true
	}
	if ignoreCase {
		return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
	}
	return strings.Contains(haystack, needle)
}

// Matches evaluates every enabled axis against pi; db is consulted
// only by the Prog-idx axis, which needs the database's current
// "what's running now" state. series and themes are combined with OR,
// as are the title/short/long-info substring checks within the
// Substring axis; every other enabled axis is combined with AND
// (spec.md §4.9, "Combination").
func Matches(db *epgdb.DB, fc *Filter, pi *block.PI) bool {
	if fc.enabled&AxisExpireTime != 0 && pi.StopTime < fc.expireThreshold {
		return false
	}

	if fc.enabled&AxisNetwop != 0 {
		if int(pi.NetwopIndex) >= maxNetwop || !fc.netwop[pi.NetwopIndex] {
			return false
		}
	} else if fc.enabled&AxisNetwopPrefilter != 0 {
		if int(pi.NetwopIndex) >= maxNetwop || !fc.netwopPre[pi.NetwopIndex] {
			return false
		}
	}

	if fc.enabled&AxisTimeBegin != 0 && pi.StartTime < fc.timeBegin {
		return false
	}
	if fc.enabled&AxisTimeEnd != 0 && pi.StartTime >= fc.timeEnd {
		return false
	}
	if fc.enabled&AxisParentalRating != 0 {
		if pi.ParentalRating == 0 || pi.ParentalRating > fc.parentalMax {
			return false
		}
	}
	if fc.enabled&AxisEditorialRating != 0 && pi.EditorialRating < fc.editorialMin {
		return false
	}
	if fc.enabled&AxisProgIdx != 0 && db != nil {
		idx := db.GetProgIdx(pi.BlockNo, pi.NetwopIndex, time.Now())
		if idx < fc.progIdxFirst || idx > fc.progIdxLast {
			return false
		}
	}
	if fc.enabled&AxisFeatures != 0 {
		ok := false
		for _, tup := range fc.features {
			if pi.FeatureFlags&tup.mask == tup.flag {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}

	seriesMatched := false
	if fc.enabled&AxisSeries != 0 {
		for _, t := range pi.Themes {
			if t > 0x80 && fc.series[[2]uint8{pi.NetwopIndex, t - 0x80}] {
				seriesMatched = true
				break
			}
		}
		if !seriesMatched && fc.enabled&AxisThemes == 0 {
			return false
		}
	}
	if fc.enabled&AxisThemes != 0 && !seriesMatched {
		for class := uint8(1); class != 0; class <<= 1 {
			if fc.usedThemes&class == 0 {
				continue
			}
			hit := false
			for _, t := range pi.Themes {
				if fc.themeClass[t]&class != 0 {
					if t < 0x80 || fc.enabled&AxisSeries == 0 {
						hit = true
						break
					}
				}
			}
			if !hit {
				return false
			}
		}
	}

	if fc.enabled&AxisSortcrit != 0 {
		for class := uint8(1); class != 0; class <<= 1 {
			if fc.usedSortcrit&class == 0 {
				continue
			}
			hit := false
			for _, s := range pi.Sortcrits {
				if fc.sortcritCl[s]&class != 0 {
					hit = true
					break
				}
			}
			if !hit {
				return false
			}
		}
	}

	if fc.enabled&AxisLanguages != 0 {
		bits := fc.langBits[pi.NetwopIndex]
		hit := false
		for _, d := range pi.Descriptors {
			if bits[d] {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if fc.enabled&AxisSubtitles != 0 {
		bits := fc.subtBits[pi.NetwopIndex]
		hit := false
		for _, d := range pi.Descriptors {
			if bits[d] {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}

	if fc.enabled&AxisSubstring != 0 {
		if !substrMatch(pi.Title, fc.substr, fc.ignoreCase) &&
			!substrMatch(pi.ShortInfo, fc.substr, fc.ignoreCase) &&
			!substrMatch(pi.LongInfo, fc.substr, fc.ignoreCase) {
			return false
		}
	}

	if fc.enabled&AxisCustom != 0 && fc.custom != nil && !fc.custom(pi) {
		return false
	}

	return true
}
