package epgfilter

import "time"

// AttribKind mirrors the Nextview EV_ATTRIB_KIND_* navigation opcode
// space (ETS 300 707 §11.12.4.1) as carried in an NI block's opcode
// stack. Theme and sortcrit opcodes occupy 8 consecutive values each,
// one per filter class.
type AttribKind uint8

const (
	AttribProgNoStart AttribKind = iota
	AttribProgNoStop
	AttribNetwop
	AttribTheme // + 0..7
	_
	_
	_
	_
	_
	_
	_
	AttribSortcrit // + 0..7
	_
	_
	_
	_
	_
	_
	_
	AttribEditorial
	AttribParental
	AttribFeatures
	AttribRelDate
	AttribStartTime
	AttribStopTime
	AttribLanguage
	AttribSubtLang
)

const themeClassCount = 8

// dateFlags tracks which time-slot fragments a NI opcode stack has
// supplied so far; unset fragments get their ETS-defined default at
// FinishNI time.
type dateFlags uint8

const (
	dateNone dateFlags = 0
	dateStart dateFlags = 1 << iota
	dateStop
	dateRelDate
)

// NIState accumulates the time-slot fragments of an NI opcode stack
// (start/stop minute-of-day, relative day offset) across several
// ApplyNI calls; they cannot be folded into the filter context until
// FinishNI because a later opcode can still change how an earlier one
// is interpreted (spec.md §4.9, "resolved at finish_ni()").
type NIState struct {
	flags           dateFlags
	startMoD        int
	stopMoD         int
	relDate         int
}

// InitNI resets fc to empty and prepares a fresh NIState for a new
// opcode stack.
func InitNI(fc *Filter) *NIState {
	*fc = *New()
	return &NIState{}
}

// bcdToMinuteOfDay decodes a BCD HHMM time-of-day value the way
// EpgBlockBcdToMoD does, with 0xffff passed through unchanged as the
// sentinel for "now" (spec.md §9: `start time 0xFFFF` ⇒ `now`).
func bcdToMinuteOfDay(data uint32) int {
	if data == 0xffff {
		return 0xffff
	}
	hour := int((data>>12)&0xf)*10 + int((data>>8)&0xf)
	minute := int((data>>4)&0xf)*10 + int(data&0xf)
	return hour*60 + minute
}

// ApplyNI folds one navigation-attribute opcode into fc (or, for the
// three time-slot opcodes, into st) per EpgDbFilterApplyNi.
func ApplyNI(fc *Filter, st *NIState, kind AttribKind, data uint32) {
	switch {
	case kind == AttribProgNoStart:
		if fc.enabled&AxisProgIdx == 0 {
			fc.progIdxLast = data & 0xff
		}
		fc.progIdxFirst = data & 0xff
		fc.enabled |= AxisProgIdx

	case kind == AttribProgNoStop:
		if fc.enabled&AxisProgIdx == 0 {
			fc.progIdxFirst = 0
		}
		fc.progIdxLast = data & 0xff
		fc.enabled |= AxisProgIdx

	case kind == AttribNetwop:
		fc.SetNetwop(uint8(data & 0xff))
		fc.enabled |= AxisNetwop

	case kind >= AttribTheme && kind < AttribTheme+themeClassCount:
		class := uint8(1) << (kind - AttribTheme)
		theme := uint8(data & 0xff)
		fc.themeClass[theme] |= class
		fc.usedThemes |= class
		fc.enabled |= AxisThemes

	case kind >= AttribSortcrit && kind < AttribSortcrit+themeClassCount:
		class := uint8(1) << (kind - AttribSortcrit)
		crit := uint8(data & 0xff)
		fc.sortcritCl[crit] |= class
		fc.usedSortcrit |= class
		fc.enabled |= AxisSortcrit

	case kind == AttribEditorial:
		fc.editorialMin = uint8(data & 0xff)
		fc.enabled |= AxisEditorialRating

	case kind == AttribParental:
		fc.parentalMax = uint8(data & 0xff)
		fc.enabled |= AxisParentalRating

	case kind == AttribFeatures:
		fc.AddFeatureTuple(data&0xfff, data>>12)
		fc.enabled |= AxisFeatures

	case kind == AttribRelDate:
		st.relDate = int(data & 0xff)
		st.flags |= dateRelDate

	case kind == AttribStartTime:
		st.startMoD = bcdToMinuteOfDay(data)
		st.flags |= dateStart

	case kind == AttribStopTime:
		st.stopMoD = bcdToMinuteOfDay(data)
		st.flags |= dateStop

	case kind == AttribLanguage:
		fc.SetLanguageDescriptor(uint8(data&0xff), uint8((data>>8)&0xff))
		fc.enabled |= AxisLanguages

	case kind == AttribSubtLang:
		fc.SetSubtitleDescriptor(uint8(data&0xff), uint8((data>>8)&0xff))
		fc.enabled |= AxisSubtitles
	}
}

// FinishNI resolves st's fragments into fc's Time-begin/Time-end axis,
// following EpgDbFilterFinishNi's default-fill and midnight-crossing
// rules. lto is the network's local time offset in minutes, exactly
// as stored in an AI Netwop's LTO field; now is the acquisition
// clock's current time.
func FinishNI(fc *Filter, st *NIState, lto int, now time.Time) {
	if st.flags == dateNone {
		return
	}
	nowUnix := now.Unix()
	const day = 60 * 60 * 24
	nowMoD := int(((nowUnix + int64(lto)*60) % day) / 60)
	if nowMoD < 0 {
		nowMoD += 24 * 60
	}

	if st.flags&dateRelDate == 0 {
		st.relDate = 0
	}
	if st.flags&dateStart == 0 {
		st.startMoD = nowMoD
	} else if st.startMoD == 0xffff {
		st.startMoD = nowMoD
		if st.flags&dateStop != 0 {
			st.stopMoD += nowMoD
		}
	}
	if st.flags&dateStop == 0 {
		st.stopMoD = 23*60 + 59
	}

	if st.startMoD > st.stopMoD {
		st.stopMoD += 24 * 60
	} else if st.stopMoD <= nowMoD && st.relDate == 0 {
		st.relDate++
	}

	base := nowUnix - nowUnix%day - int64(lto)*60
	fc.timeBegin = base + int64(st.startMoD)*60 + int64(st.relDate)*day
	fc.timeEnd = base + int64(st.stopMoD)*60 + int64(st.relDate)*day
	fc.enabled |= AxisTimeBegin | AxisTimeEnd
}
