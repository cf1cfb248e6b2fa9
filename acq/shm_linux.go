//go:build linux

package acq

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// shmPacket is the POD (no pointers, no Go-runtime-managed fields) layout
// shared across the process boundary; it mirrors Packet's field layout
// without anything the Go runtime couldn't reconstruct from raw bytes.
type shmPacket struct {
	pageNo uint16
	sub    uint16
	pkgno  uint8
	_      [3]byte // pad to a 4-byte-aligned data field
	data   [teletextPacketLen]byte
}

// shmLayout is the memory layout of a cross-process ring buffer: plain
// uint32 read/write indices (no mutex — shared memory correctness here
// relies on the same single-writer/single-reader discipline as
// RingBuffer, not on mutual exclusion) followed by the slot array.
type shmLayout struct {
	writerIdx uint32
	readerIdx uint32
	slots     [BufCount]shmPacket
}

// ShmRingBuffer is a SysV-shared-memory-backed ring buffer for the
// deployment where VBI capture runs as a separate OS process from the
// Nextview decoder (the original decoder's two-process model: a
// time-critical teletext slave and the database/UI master talking over a
// fixed-size shared segment). Unlike RingBuffer, it has no mutex: shared
// memory gives both sides the same bytes, not a shared Go runtime, so
// synchronization is index-based exactly as in the single-process
// variant, with atomic stores standing in for C's memory-order-relaxed
// writer/reader index convention.
type ShmRingBuffer struct {
	id  int
	mem *shmLayout
}

// CreateShmRingBuffer allocates a SysV shared-memory segment sized for one
// shmLayout and returns a ring buffer view backed by it.
func CreateShmRingBuffer(key int) (*ShmRingBuffer, error) {
	size := int(unsafe.Sizeof(shmLayout{}))

	id, _, errno := unix.Syscall(unix.SYS_SHMGET, uintptr(key), uintptr(size), uintptr(unix.IPC_CREAT|0o600))
	if errno != 0 {
		return nil, fmt.Errorf("acq: shmget: %w", errno)
	}

	addr, _, errno := unix.Syscall(unix.SYS_SHMAT, id, 0, 0)
	if errno != 0 {
		return nil, fmt.Errorf("acq: shmat: %w", errno)
	}

	return &ShmRingBuffer{id: int(id), mem: (*shmLayout)(unsafe.Pointer(addr))}, nil
}

// Add appends one packet, matching RingBuffer.Add's full-buffer policy.
func (s *ShmRingBuffer) Add(pageNo, sub uint16, pkgno uint8, data []byte) bool {
	w := atomic.LoadUint32(&s.mem.writerIdx)
	next := (w + 1) % BufCount
	if next == atomic.LoadUint32(&s.mem.readerIdx) {
		return false
	}

	slot := &s.mem.slots[w]
	slot.pageNo = pageNo
	slot.sub = sub
	slot.pkgno = pkgno
	copy(slot.data[:], data)

	atomic.StoreUint32(&s.mem.writerIdx, next)
	return true
}

// Next returns the next queued packet and advances the reader index.
func (s *ShmRingBuffer) Next() (Packet, bool) {
	r := atomic.LoadUint32(&s.mem.readerIdx)
	if r == atomic.LoadUint32(&s.mem.writerIdx) {
		return Packet{}, false
	}
	raw := s.mem.slots[r]
	atomic.StoreUint32(&s.mem.readerIdx, (r+1)%BufCount)
	return Packet{PageNo: raw.pageNo, Sub: raw.sub, Pkgno: raw.pkgno, Data: raw.data}, true
}

// Close detaches the segment and marks it for destruction once the last
// attacher detaches.
func (s *ShmRingBuffer) Close() error {
	if _, _, errno := unix.Syscall(unix.SYS_SHMDT, uintptr(unsafe.Pointer(s.mem)), 0, 0); errno != 0 {
		return fmt.Errorf("acq: shmdt: %w", errno)
	}
	if _, _, errno := unix.Syscall(unix.SYS_SHMCTL, uintptr(s.id), uintptr(unix.IPC_RMID), 0); errno != 0 {
		return fmt.Errorf("acq: shmctl(IPC_RMID): %w", errno)
	}
	return nil
}
