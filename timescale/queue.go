// Package timescale maintains a compact coverage queue for the
// timescale popup window: a run-length-encoded view of which PI
// time ranges have been received per network, used to paint the
// "what we have" bar without walking the full programme database.
// Grounded on epgdb/epgtscqueue.c.
package timescale

import (
	"time"

	"github.com/nxtvepg/epgrecv/epgdb"
	"github.com/nxtvepg/epgrecv/nextview/block"
)

// Mode distinguishes a provider's initial full-coverage dump
// (delivered once after a channel change, can be dropped wholesale
// when a later one arrives) from the incremental updates that follow
// it as new PI streams in (EpgTscQueue's PI_TSC_MODE_*).
type Mode uint8

const (
	ModeInitial Mode = iota
	ModeIncremental
)

// Flag bits carried per coverage element (EpgTscQueue_AddPi's `flags`
// parameter; the original's exact PI_TSC_MASK_* bit numbering is not
// present anywhere in the retrieved pack, only the names, so these
// are assigned fresh but keep the same seven named conditions).
type Flag uint8

const (
	FlagCurVersion Flag = 1 << iota
	FlagIsLast
	FlagDefective
	FlagExpired
	FlagStream1
	FlagHasShortInfo
	FlagHasLongInfo
)

// Elem is one coverage run: [baseTime+StartOffMins, +DurationMins)
// minutes on one network, possibly the concatenation of several
// back-to-back PI (ConcatCount > 1) that shared identical flags.
type Elem struct {
	StartOffMins uint32
	DurationMins uint32
	Netwop       uint8
	BlockIdx     uint8 // position among the netwop's first 256 PI, or 0xff
	ConcatCount  uint16
	Flags        Flag
}

// Buffer is one contiguous chunk of Elem entries sharing a base time,
// for one provider and one Mode. Buffers are chained oldest-to-newest
// in Queue; a Buffer is "locked" once it has been handed to a reader
// (e.g. sent across the epgrecvd/epgdump control channel) so the
// writer must start a new one rather than mutate it further.
type Buffer struct {
	ProvCNI  uint16
	Mode     Mode
	BaseTime int64 // unix seconds; Elem offsets are relative to this
	Locked   bool
	Elems    []Elem
}

// Queue is a provider's sequence of coverage buffers, oldest first.
type Queue struct {
	buffers []*Buffer

	writeProvCNI uint16
	writeMode    Mode
}

// New returns an empty timescale queue.
func New() *Queue { return &Queue{} }

// HasElems reports whether the queue holds any buffer.
func (q *Queue) HasElems() bool { return len(q.buffers) > 0 }

// UnlockBuffers clears every buffer's lock, called once a batch of
// acquired blocks has been fully processed so a new provider/version
// cycle can safely discard or reuse them.
func (q *Queue) UnlockBuffers() {
	for _, b := range q.buffers {
		b.Locked = false
	}
}

// ClearUnprocessed discards every unlocked buffer, used when
// switching away from a provider before its queued data was consumed.
func (q *Queue) ClearUnprocessed() {
	kept := q.buffers[:0]
	for _, b := range q.buffers {
		if b.Locked {
			kept = append(kept, b)
		}
	}
	q.buffers = kept
}

// ClearIncremental discards every incremental-mode buffer for
// provCni, used when a fresh initial dump supersedes them.
func (q *Queue) ClearIncremental(provCni uint16) {
	kept := q.buffers[:0]
	for _, b := range q.buffers {
		if b.ProvCNI == provCni && b.Mode == ModeIncremental {
			continue
		}
		kept = append(kept, b)
	}
	q.buffers = kept
}

// PopOldest removes and returns the oldest (head) buffer, for
// transmission to a reader; nil if the queue is empty.
func (q *Queue) PopOldest() *Buffer {
	if len(q.buffers) == 0 {
		return nil
	}
	b := q.buffers[0]
	q.buffers = q.buffers[1:]
	b.Locked = true
	return b
}

// currentBuffer returns the newest buffer if it matches the current
// write parameters, else creates and appends a new one.
func (q *Queue) currentBuffer() *Buffer {
	if n := len(q.buffers); n > 0 {
		last := q.buffers[n-1]
		if last.ProvCNI == q.writeProvCNI && last.Mode == q.writeMode && !last.Locked {
			return last
		}
	}
	b := &Buffer{ProvCNI: q.writeProvCNI, Mode: q.writeMode}
	q.buffers = append(q.buffers, b)
	return b
}

// adjustBaseTime re-bases every existing element in b when a new
// entry starts earlier than the buffer's current base time, shifting
// by a day more than strictly required so it rarely has to happen
// again (epgtscqueue.c's EpgTscQueue_AdjustBaseTime).
func adjustBaseTime(b *Buffer, startTime int64) {
	diffMins := uint32((b.BaseTime - startTime + 24*60*60) / 60)
	for i := range b.Elems {
		b.Elems[i].StartOffMins += diffMins
	}
	b.BaseTime -= int64(diffMins) * 60
}

// append adds one [startTime, stopTime) coverage run to the queue,
// merging it into the previous element when it continues exactly
// where that one left off on the same network with the same flags
// (ignoring FlagIsLast, which only the final element in a run needs
// to carry) — EpgTscQueue_Append.
func (q *Queue) append(startTime, stopTime int64, netwop uint8, flags Flag, blockIdx uint32) {
	b := q.currentBuffer()

	if b.BaseTime == 0 {
		b.BaseTime = startTime - 10*24*60*60
	}

	if n := len(b.Elems); n > 0 {
		last := &b.Elems[n-1]
		contEnd := b.BaseTime + 60*int64(last.StartOffMins+last.DurationMins)
		if startTime == contEnd && netwop == last.Netwop &&
			(flags&^FlagIsLast) == (last.Flags&^FlagIsLast) {
			last.DurationMins += uint32((stopTime - startTime) / 60)
			last.Flags |= flags & FlagIsLast
			last.ConcatCount++
			return
		}
	}

	if startTime < b.BaseTime {
		adjustBaseTime(b, startTime)
	}

	idx := uint8(0xff)
	if blockIdx <= 0xff {
		idx = uint8(blockIdx)
	}
	b.Elems = append(b.Elems, Elem{
		StartOffMins: uint32((startTime - b.BaseTime) / 60),
		DurationMins: uint32((stopTime - startTime) / 60),
		Netwop:       netwop,
		BlockIdx:     idx,
		ConcatCount:  1,
		Flags:        flags,
	})
}

// AddPI folds one accepted PI's coverage into the queue, deriving its
// flags the way EpgTscQueue_AddPi does: current-version, last-block,
// defective (overlaps something in the obsolete list), expired,
// stream-1, and short/long-info-present.
func AddPI(q *Queue, db *epgdb.DB, provCNI uint16, ai *block.AI, pi *block.PI, now time.Time) {
	if ai == nil || pi.NetwopIndex >= ai.NetwopCount {
		return
	}
	netwop := ai.Netwops[pi.NetwopIndex]

	q.writeProvCNI = provCNI
	q.writeMode = ModeIncremental

	var flags Flag = FlagCurVersion
	blockIdx := epgdb.GetPiBlockIndex(netwop.StartNo, pi.BlockNo)

	if pi.BlockNo == netwop.StopNoSwo {
		flags |= FlagIsLast
	}
	if db != nil && db.SearchObsoletePI(pi.NetwopIndex, pi.StartTime, pi.StopTime) != nil {
		flags |= FlagDefective
	}
	if pi.StopTime < now.Unix() {
		flags |= FlagExpired
	}
	if pi.Stream == 1 {
		flags |= FlagStream1
	}
	if pi.ShortInfo != "" {
		flags |= FlagHasShortInfo
	}
	if pi.LongInfo != "" {
		flags |= FlagHasLongInfo
	}

	q.append(pi.StartTime, pi.StopTime, pi.NetwopIndex, flags, blockIdx)
}
