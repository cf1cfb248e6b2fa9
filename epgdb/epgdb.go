// Package epgdb is the in-memory programme database (ETS 300 707
// clause 11, "Nextview Object Model" consumer side): it holds the
// decoded AI/BI/PI/OI/NI/MI/LI/TI records for one provider and
// answers the queries the filter engine and UI layers need.
//
// Package shape follows the teacher's preference for an explicit
// handle threaded through call chains (spec.md §9, "Global mutable
// state") rather than a package-level singleton: every exported
// function is a method on *DB.
package epgdb

import (
	"errors"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nxtvepg/epgrecv/nextview/block"
)

// ErrLocked is returned by a write method called while a read lock is
// held.
var ErrLocked = errors.New("epgdb: database is read-locked")

// ErrInvariant is returned when an insertion would violate a database
// invariant (spec.md §8, "Database order"), e.g. a PI naming a netwop
// the current AI doesn't have.
var ErrInvariant = errors.New("epgdb: invariant violation")

// DB is one provider's programme database. Zero value is ready to use.
type DB struct {
	ai *block.AI
	bi *block.BI

	piByTime []*block.PI // sorted by (StartTime, NetwopIndex)
	piByNet  map[uint8][]*block.PI
	obsolete []*block.PI

	oi []*block.OI
	ni []*block.NI
	mi []*block.MI
	li map[uint32]*block.LI
	ti map[uint32]*block.TI

	lockLevel  int
	expireWait time.Duration
}

// New returns an empty database with the given PI expiry grace
// period (spec.md §4.8, "Expiry").
func New(expireDelay time.Duration) *DB {
	return &DB{
		piByNet:    make(map[uint8][]*block.PI),
		li:         make(map[uint32]*block.LI),
		ti:         make(map[uint32]*block.TI),
		expireWait: expireDelay,
	}
}

// Lock increments the reentrant read-lock counter. Mutators (the Add*
// methods and PurgeExpired) refuse to run while it is above 0. Of the
// queries, only GetProgIdx requires it to be above 0; the other Get*
// methods answer whether or not the lock is held.
func (db *DB) Lock()   { db.lockLevel++ }
func (db *DB) Unlock() { db.lockLevel-- }
func (db *DB) IsLocked() bool {
	return db.lockLevel > 0
}

func (db *DB) requireUnlocked(op string) error {
	if db.lockLevel != 0 {
		log.WithField("op", op).Debug("epgdb: write attempted while locked")
		return ErrLocked
	}
	return nil
}

// AddAI replaces the current AI unconditionally. Netwop table changes
// that shrink netwopCount move every PI whose netwop is now
// out-of-range into the obsolete list (spec.md §4.8).
func (db *DB) AddAI(ai block.AI) error {
	if err := db.requireUnlocked("AddAI"); err != nil {
		return err
	}
	db.ai = &ai

	kept := db.piByTime[:0]
	for _, pi := range db.piByTime {
		if uint8(pi.NetwopIndex) >= ai.NetwopCount {
			db.obsolete = append(db.obsolete, pi)
			delete(db.piByNet, pi.NetwopIndex)
			continue
		}
		kept = append(kept, pi)
	}
	db.piByTime = kept
	for n := range db.piByNet {
		if n >= ai.NetwopCount {
			delete(db.piByNet, n)
		}
	}
	return nil
}

// AddBI replaces the current BI unconditionally.
func (db *DB) AddBI(bi block.BI) error {
	if err := db.requireUnlocked("AddBI"); err != nil {
		return err
	}
	db.bi = &bi
	return nil
}

// overlaps reports whether two PI time intervals [start,stop) overlap.
func overlaps(a, b *block.PI) bool {
	return a.StartTime < b.StopTime && b.StartTime < a.StopTime
}

// AddPI inserts one PI, moving any PI on the same network whose
// interval overlaps it (wholly or partially) to the obsolete list, and
// replacing any existing PI with the same (block_no, netwop) whose
// version is older than the incoming one (or is 0). If the stored PI's
// version is equal or newer, the incoming PI is discarded and the
// stored one kept (spec.md §4.8, invariant 1 and 3).
func (db *DB) AddPI(pi block.PI) error {
	if err := db.requireUnlocked("AddPI"); err != nil {
		return err
	}
	if db.ai == nil {
		return fmt.Errorf("%w: no AI in database", ErrInvariant)
	}
	if uint8(pi.NetwopIndex) >= db.ai.NetwopCount {
		return fmt.Errorf("%w: netwop %d >= netwopCount %d", ErrInvariant, pi.NetwopIndex, db.ai.NetwopCount)
	}

	netList := db.piByNet[pi.NetwopIndex]
	kept := netList[:0]
	for _, old := range netList {
		if old.BlockNo == pi.BlockNo {
			if old.Version >= pi.Version && old.Version != 0 {
				// an equal-or-newer version of the same block already
				// present: the incoming copy is discarded entirely
				log.WithFields(log.Fields{"netwop": pi.NetwopIndex, "block_no": pi.BlockNo}).
					Debug("epgdb: discarding PI superseded by existing version")
				return nil
			}
			db.obsolete = append(db.obsolete, old)
			db.removeFromTimeIndex(old)
			continue
		}
		if overlaps(old, &pi) {
			db.obsolete = append(db.obsolete, old)
			db.removeFromTimeIndex(old)
			continue
		}
		kept = append(kept, old)
	}

	piCopy := pi
	kept = insertByBlockNo(kept, &piCopy, db.ai.Netwops[pi.NetwopIndex].StartNo)
	db.piByNet[pi.NetwopIndex] = kept

	db.insertByTime(&piCopy)
	return nil
}

func (db *DB) removeFromTimeIndex(victim *block.PI) {
	for i, p := range db.piByTime {
		if p == victim {
			db.piByTime = append(db.piByTime[:i], db.piByTime[i+1:]...)
			return
		}
	}
}

func (db *DB) insertByTime(pi *block.PI) {
	idx := sort.Search(len(db.piByTime), func(i int) bool {
		o := db.piByTime[i]
		if o.StartTime != pi.StartTime {
			return o.StartTime > pi.StartTime
		}
		return o.NetwopIndex > pi.NetwopIndex
	})
	db.piByTime = append(db.piByTime, nil)
	copy(db.piByTime[idx+1:], db.piByTime[idx:])
	db.piByTime[idx] = pi
}

// insertByBlockNo inserts pi into a netwop's PI sequence in order of
// block_no, wraparound-adjusted relative to startNo (spec.md §4.8
// invariant 4).
func insertByBlockNo(seq []*block.PI, pi *block.PI, startNo uint16) []*block.PI {
	adj := func(blockNo uint16) uint32 {
		if blockNo >= startNo {
			return uint32(blockNo - startNo)
		}
		return uint32(0x10000) + uint32(blockNo) - uint32(startNo)
	}
	target := adj(pi.BlockNo)
	idx := sort.Search(len(seq), func(i int) bool {
		return adj(seq[i].BlockNo) > target
	})
	seq = append(seq, nil)
	copy(seq[idx+1:], seq[idx:])
	seq[idx] = pi
	return seq
}

// AddOI inserts an OI block in block_no order.
func (db *DB) AddOI(oi block.OI) error {
	if err := db.requireUnlocked("AddOI"); err != nil {
		return err
	}
	idx := sort.Search(len(db.oi), func(i int) bool { return db.oi[i].BlockNo >= oi.BlockNo })
	cp := oi
	if idx < len(db.oi) && db.oi[idx].BlockNo == oi.BlockNo {
		db.oi[idx] = &cp
		return nil
	}
	db.oi = append(db.oi, nil)
	copy(db.oi[idx+1:], db.oi[idx:])
	db.oi[idx] = &cp
	return nil
}

// AddNI inserts an NI block in block_no order.
func (db *DB) AddNI(ni block.NI) error {
	if err := db.requireUnlocked("AddNI"); err != nil {
		return err
	}
	idx := sort.Search(len(db.ni), func(i int) bool { return db.ni[i].BlockNo >= ni.BlockNo })
	cp := ni
	if idx < len(db.ni) && db.ni[idx].BlockNo == ni.BlockNo {
		db.ni[idx] = &cp
		return nil
	}
	db.ni = append(db.ni, nil)
	copy(db.ni[idx+1:], db.ni[idx:])
	db.ni[idx] = &cp
	return nil
}

// AddMI inserts an MI block in block_no order.
func (db *DB) AddMI(mi block.MI) error {
	if err := db.requireUnlocked("AddMI"); err != nil {
		return err
	}
	idx := sort.Search(len(db.mi), func(i int) bool { return db.mi[i].BlockNo >= mi.BlockNo })
	cp := mi
	if idx < len(db.mi) && db.mi[idx].BlockNo == mi.BlockNo {
		db.mi[idx] = &cp
		return nil
	}
	db.mi = append(db.mi, nil)
	copy(db.mi[idx+1:], db.mi[idx:])
	db.mi[idx] = &cp
	return nil
}

// liKey folds a netwop index ("this network" is keyed 0x8000 per
// spec.md §3) together with the block_no into one map key.
func liKey(blockNo, netwop uint16) uint32 {
	return uint32(netwop)<<16 | uint32(blockNo)
}

// AddLI stores an LI block keyed by (block_no, netwop).
func (db *DB) AddLI(li block.LI) error {
	if err := db.requireUnlocked("AddLI"); err != nil {
		return err
	}
	cp := li
	db.li[liKey(li.BlockNo, li.NetwopIndex)] = &cp
	return nil
}

// AddTI stores a TI block keyed by (block_no, netwop).
func (db *DB) AddTI(ti block.TI) error {
	if err := db.requireUnlocked("AddTI"); err != nil {
		return err
	}
	cp := ti
	db.ti[liKey(ti.BlockNo, ti.NetwopIndex)] = &cp
	return nil
}

// GetAI returns the current AI, or nil if none has been received.
func (db *DB) GetAI() *block.AI { return db.ai }

// GetBI returns the current BI, or nil if none has been received.
func (db *DB) GetBI() *block.BI { return db.bi }

// GetPI looks up one PI by (block_no, netwop).
func (db *DB) GetPI(blockNo uint16, netwop uint8) *block.PI {
	for _, pi := range db.piByNet[netwop] {
		if pi.BlockNo == blockNo {
			return pi
		}
	}
	return nil
}

// GetOI looks up an OI by block_no.
func (db *DB) GetOI(blockNo uint16) *block.OI {
	i := sort.Search(len(db.oi), func(i int) bool { return db.oi[i].BlockNo >= blockNo })
	if i < len(db.oi) && db.oi[i].BlockNo == blockNo {
		return db.oi[i]
	}
	return nil
}

// GetNI looks up an NI by block_no.
func (db *DB) GetNI(blockNo uint16) *block.NI {
	i := sort.Search(len(db.ni), func(i int) bool { return db.ni[i].BlockNo >= blockNo })
	if i < len(db.ni) && db.ni[i].BlockNo == blockNo {
		return db.ni[i]
	}
	return nil
}

// GetMI looks up an MI by block_no.
func (db *DB) GetMI(blockNo uint16) *block.MI {
	i := sort.Search(len(db.mi), func(i int) bool { return db.mi[i].BlockNo >= blockNo })
	if i < len(db.mi) && db.mi[i].BlockNo == blockNo {
		return db.mi[i]
	}
	return nil
}

// GetLI looks up an LI by (block_no, netwop).
func (db *DB) GetLI(blockNo, netwop uint16) *block.LI {
	return db.li[liKey(blockNo, netwop)]
}

// GetTI looks up a TI by (block_no, netwop).
func (db *DB) GetTI(blockNo, netwop uint16) *block.TI {
	return db.ti[liKey(blockNo, netwop)]
}

// ObsoleteCount returns the number of PI records currently held in the
// obsolete list, for acquisition statistics.
func (db *DB) ObsoleteCount() int { return len(db.obsolete) }

// AllPI returns a snapshot of every live PI, sorted by (StartTime,
// NetwopIndex), for callers that need to walk the whole schedule
// (epgfilter.Matches scans, epgdump listings) rather than look up one
// record at a time.
func (db *DB) AllPI() []*block.PI {
	out := make([]*block.PI, len(db.piByTime))
	copy(out, db.piByTime)
	return out
}

// NetworkName returns the service name the current AI assigns to
// netwop, or "" if there is no AI yet or the index is out of range.
func (db *DB) NetworkName(netwop uint8) string {
	if db.ai == nil || int(netwop) >= len(db.ai.Netwops) {
		return ""
	}
	return db.ai.Netwops[netwop].Name
}

// GetFirstObsoletePI and GetNextObsoletePI walk the obsolete list.
func (db *DB) GetFirstObsoletePI() *block.PI {
	if len(db.obsolete) == 0 {
		return nil
	}
	return db.obsolete[0]
}

func (db *DB) GetNextObsoletePI(cur *block.PI) *block.PI {
	for i, pi := range db.obsolete {
		if pi == cur && i+1 < len(db.obsolete) {
			return db.obsolete[i+1]
		}
	}
	return nil
}

// SearchObsoletePI finds an obsolete PI on netwop whose interval
// overlaps [start, stop).
func (db *DB) SearchObsoletePI(netwop uint8, start, stop int64) *block.PI {
	probe := &block.PI{StartTime: start, StopTime: stop}
	for _, pi := range db.obsolete {
		if pi.NetwopIndex == netwop && overlaps(pi, probe) {
			return pi
		}
	}
	return nil
}

// PurgeExpired removes every PI (live or obsolete) whose stop_time is
// more than the expiry grace period in the past relative to now
// (spec.md §4.8, "Expiry"). While a read lock is held it purges nothing
// and returns 0.
func (db *DB) PurgeExpired(now time.Time) int {
	if db.requireUnlocked("PurgeExpired") != nil {
		return 0
	}
	cutoff := now.Add(-db.expireWait).Unix()
	purged := 0

	live := db.piByTime[:0]
	for _, pi := range db.piByTime {
		if pi.StopTime < cutoff {
			purged++
			continue
		}
		live = append(live, pi)
	}
	db.piByTime = live

	for n, seq := range db.piByNet {
		kept := seq[:0]
		for _, pi := range seq {
			if pi.StopTime >= cutoff {
				kept = append(kept, pi)
			}
		}
		db.piByNet[n] = kept
	}

	keptObsolete := db.obsolete[:0]
	for _, pi := range db.obsolete {
		if pi.StopTime >= cutoff {
			keptObsolete = append(keptObsolete, pi)
		} else {
			purged++
		}
	}
	db.obsolete = keptObsolete

	return purged
}

// GetPiBlockCount returns the modulo-65536 count of block numbers in
// [startNo, stopNo], with the special case that the full-range pair
// (0, 0xffff) counts as zero (spec.md glossary).
func GetPiBlockCount(startNo, stopNo uint16) uint32 {
	if stopNo >= startNo {
		if startNo == 0 && stopNo == 0xffff {
			return 0
		}
		return uint32(stopNo) - uint32(startNo) + 1
	}
	if stopNo+1 == startNo {
		return 0
	}
	return 0x10000 + uint32(stopNo) - uint32(startNo) + 1
}

// GetPiBlockIndex returns blockNo's wraparound-adjusted distance from
// startNo.
func GetPiBlockIndex(startNo, blockNo uint16) uint32 {
	if blockNo >= startNo {
		return uint32(blockNo - startNo)
	}
	return 0x10000 + uint32(blockNo) - uint32(startNo)
}

// GetProgIdx returns blockNo's position relative to the PI currently
// running on netwop: 0 if the network's first stored PI is that
// current programme (or, failing that, 1 for "next"), counting
// forward from there. Returns 0xffff if it cannot be determined
// (spec.md §4.8).
func (db *DB) GetProgIdx(blockNo uint16, netwop uint8, now time.Time) uint32 {
	const notFound = 0xffff
	if !db.IsLocked() || db.ai == nil || netwop >= db.ai.NetwopCount {
		return notFound
	}
	seq := db.piByNet[netwop]
	if len(seq) == 0 {
		return notFound
	}
	first := seq[0]
	nowIdx := uint32(1)
	if first.StartTime <= now.Unix() {
		nowIdx = 0
	}

	startNo := db.ai.Netwops[netwop].StartNo
	firstIdx := GetPiBlockIndex(startNo, first.BlockNo)
	blockIdx := GetPiBlockIndex(startNo, blockNo)

	if blockIdx >= firstIdx {
		return blockIdx - firstIdx + nowIdx
	}
	log.WithFields(log.Fields{"block_no": blockNo, "netwop": netwop}).
		Debug("epgdb: GetProgIdx: block should already have expired")
	return notFound
}
