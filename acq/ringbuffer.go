// Package acq implements the acquisition-side ring buffer that decouples
// the real-time VBI/teletext capture path from the (slower, GC-bearing)
// Nextview stream decoder, plus the page-routing logic that decides which
// incoming teletext packets belong to the EPG page, a magazine inventory
// page, or packet 8/30 CNI scanning.
package acq

import (
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// BufCount is the ring buffer's slot count. Sized generously above one
// VBI frame's worth of packets (25 lines/field * 2 fields) so a brief
// scheduling delay on the consumer side never drops data.
const BufCount = 512

// Packet is one teletext packet as queued between the capture and
// consumer sides: either a page-header packet (Pkgno == 0, with PageNo
// and Sub populated) or a body packet (PageNo/Sub are unused).
type Packet struct {
	PageNo uint16
	Sub    uint16
	Pkgno  uint8
	Data   [teletextPacketLen]byte
}

const teletextPacketLen = 40

// RingBuffer is a single-writer/single-reader ring buffer of Packet
// values. WriterIdx is only ever advanced by the producer (Add), ReaderIdx
// only by the consumer (Next/Drain); this separation is what allows the
// two sides to run on different goroutines (or, via the shm variant, in
// different OS processes) without a buffer-wide lock.
type RingBuffer struct {
	mu        sync.Mutex // serializes Add() calls only; reader side is single-goroutine by contract
	slots     [BufCount]Packet
	writerIdx uint32
	readerIdx uint32

	overflow  uint64
	TtxPkgCount  uint64
	EpgPkgCount  uint64
	EpgPageCount uint64
}

// NewRingBuffer returns an empty ring buffer.
func NewRingBuffer() *RingBuffer {
	return &RingBuffer{}
}

// Reset clears the buffer for a fresh acquisition start, matching
// EpgDbAcqStart's "must not modify the writer index, which belongs to
// another process/thread" discipline: only the reader index is snapped
// forward to the writer's current position, discarding anything queued
// for a now-irrelevant page/channel.
func (r *RingBuffer) Reset() {
	atomic.StoreUint32(&r.readerIdx, atomic.LoadUint32(&r.writerIdx))
}

// Add appends one packet to the buffer. It returns false (and bumps the
// overflow counter, logging once per full lap) if the buffer is full,
// i.e. the writer has caught up to the reader.
func (r *RingBuffer) Add(pageNo, sub uint16, pkgno uint8, data []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	w := r.writerIdx
	next := (w + 1) % BufCount
	if next == atomic.LoadUint32(&r.readerIdx) {
		if r.overflow%BufCount == 0 {
			log.Warn("acq: ring buffer overflow, dropping packets")
		}
		r.overflow++
		return false
	}

	slot := &r.slots[w]
	slot.PageNo = pageNo
	slot.Sub = sub
	slot.Pkgno = pkgno
	copy(slot.Data[:], data)

	atomic.StoreUint32(&r.writerIdx, next)
	r.overflow = 0
	return true
}

// HasPackets reports whether at least one packet is queued for the
// consumer.
func (r *RingBuffer) HasPackets() bool {
	return atomic.LoadUint32(&r.readerIdx) != atomic.LoadUint32(&r.writerIdx)
}

// Next returns the next queued packet and advances the reader index. ok is
// false if the buffer is empty.
func (r *RingBuffer) Next() (Packet, bool) {
	ri := atomic.LoadUint32(&r.readerIdx)
	if ri == atomic.LoadUint32(&r.writerIdx) {
		return Packet{}, false
	}
	pkt := r.slots[ri]
	atomic.StoreUint32(&r.readerIdx, (ri+1)%BufCount)
	return pkt, true
}

// OverflowCount returns the number of packets dropped since the last
// successful Add, used by ctl/stats as the OverflowError quality counter.
func (r *RingBuffer) OverflowCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.overflow
}
