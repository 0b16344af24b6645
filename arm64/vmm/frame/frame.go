// ARM64 processor support
// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package frame is the bring-up frame allocator (spec.md §5): a
// monotonically-increasing bump allocator over a fixed physical range,
// with no free operation. Bring-up consumes frames strictly once, for
// root and intermediate page tables; nothing in this subsystem ever
// gives a frame back, so first-fit alloc/free bookkeeping (free lists,
// defrag, used-block map) has no job to do here and a single cursor
// guarded by a mutex is all the allocator keeps.
package frame

import "sync"

// Size is the fixed frame size this allocator hands out: one 4 KiB page,
// matching the translation granule spec.md §2 fixes for this subsystem.
const Size = 1 << 12

// BumpAllocator satisfies ptable.FrameAllocator. It is safe for
// concurrent use, though bring-up itself is single-threaded (spec.md
// §5); the mutex exists because internal/dma.go's allocator carries one
// and nothing here contraindicates keeping the same discipline.
type BumpAllocator struct {
	mu    sync.Mutex
	next  uintptr
	limit uintptr
	count int
}

// NewBumpAllocator creates an allocator over the page-aligned physical
// range [start, start+size). start and size must both be frame-aligned;
// New does not round, since a misaligned bring-up frame pool is an
// invariant violation the caller's linker script or board config should
// not produce, not a runtime condition this constructor should paper
// over.
func NewBumpAllocator(start uintptr, size int) *BumpAllocator {
	return &BumpAllocator{
		next:  start,
		limit: start + uintptr(size),
	}
}

// AllocFrame returns the next unused frame's physical address, or
// ok=false once the pool is exhausted (spec.md's ErrOutOfFrames
// condition, surfaced to ptable.Builder through this return value).
func (a *BumpAllocator) AllocFrame() (pa uintptr, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.next >= a.limit {
		return 0, false
	}

	pa = a.next
	a.next += Size
	a.count++

	return pa, true
}

// Allocated reports how many frames have been handed out so far, used by
// bringup diagnostics to report pool consumption on a fatal path.
func (a *BumpAllocator) Allocated() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.count
}

// Remaining reports how many whole frames are still available.
func (a *BumpAllocator) Remaining() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return int((a.limit - a.next) / Size)
}
